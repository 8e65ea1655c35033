package registry

import (
	"errors"
	"time"
)

// Status is the live availability state of a capability server.
type Status string

const (
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusDegraded   Status = "degraded"
	StatusOverloaded Status = "overloaded"
)

var ErrServerNotFound = errors.New("server not found")

// Capability describes one class of operations a server can take. Immutable
// after registration.
type Capability struct {
	Name        string
	Description string
	// ToolPatterns are matched against the operation name; "*" matches all.
	ToolPatterns []string
	DomainHints  []string
	// ComplexityMin/Max bound the numeric complexity score this capability
	// is suited for, within [0,1].
	ComplexityMin float64
	ComplexityMax float64
	// AverageExecutionTime is the declared expected runtime in milliseconds.
	AverageExecutionTime float64
	// SuccessRate is the declared baseline success rate.
	SuccessRate float64
}

// Health is the live telemetry record for one server. ResponseTime and
// SuccessRate are exponential moving averages updated after every dispatch.
type Health struct {
	ServerID        string
	Status          Status
	LastHealthCheck time.Time
	ResponseTime    float64 // ms, EMA
	SuccessRate     float64 // [0,1], EMA
	CurrentLoad     float64 // [0,1]
	ErrorCount      int
	Capabilities    []Capability
}
