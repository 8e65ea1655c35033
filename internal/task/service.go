// Package task defines the boundary to the internal coordination service
// that executes requests against same-process capability servers.
package task

import (
	"context"
	"encoding/json"
	"time"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/mcpgate/mcpgate/internal/task Service

// Kind selects the coordination service's execution semantics.
type Kind string

const (
	// KindProcessing runs targets under ordinary execution semantics.
	KindProcessing Kind = "processing"
	// KindValidation runs targets under agreement-arbitration semantics;
	// consensus resolution belongs to the coordination service.
	KindValidation Kind = "validation"
)

// Payload is the operation context forwarded to the coordination service.
type Payload struct {
	RequestID string         `json:"request_id,omitempty"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params,omitempty"`
	Priority  string         `json:"priority,omitempty"`
}

// Options carries the routing decision's execution parameters.
type Options struct {
	TargetServers []string `json:"target_servers"`
	Strategy      string   `json:"strategy"`
}

// ServerResult is one server's contribution to a task result.
type ServerResult struct {
	ServerID string          `json:"server_id"`
	Data     json.RawMessage `json:"data"`
}

// Result is the coordination service's answer for one task.
type Result struct {
	Success       bool           `json:"success"`
	Results       []ServerResult `json:"results"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// ServerRegistration announces one internal server to the coordination
// service at startup.
type ServerRegistration struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Service is the coordination collaborator contract.
type Service interface {
	ExecuteTask(ctx context.Context, kind Kind, payload Payload, opts Options) (*Result, error)
	PerformHealthCheck(ctx context.Context) (map[string]bool, error)
	RegisterServer(ctx context.Context, reg ServerRegistration) error
}
