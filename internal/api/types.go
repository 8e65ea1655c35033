package api

import (
	"encoding/json"
	"time"
)

// RouteRequest is the POST /v1/route body: one operation to route and
// execute.
type RouteRequest struct {
	Operation  string         `json:"operation"`
	Args       map[string]any `json:"args,omitempty"`
	Complexity string         `json:"complexity,omitempty"`
	Priority   string         `json:"priority,omitempty"`
	Persona    string         `json:"persona,omitempty"`
	Flags      []string       `json:"flags,omitempty"`
	// MaxExecutionTimeMS is the caller's execution budget in milliseconds.
	MaxExecutionTimeMS int64 `json:"max_execution_time_ms,omitempty"`
}

// RouteResponse reports the decision taken and the merged execution result.
type RouteResponse struct {
	RequestID string        `json:"request_id"`
	Decision  DecisionView  `json:"decision"`
	Result    ExecutionView `json:"result"`
}

// DecisionView is the wire form of a routing decision.
type DecisionView struct {
	TargetServers   []string `json:"target_servers"`
	Strategy        string   `json:"strategy"`
	TimeoutMS       int64    `json:"timeout_ms"`
	Priority        string   `json:"priority"`
	FallbackServers []string `json:"fallback_servers,omitempty"`
}

// ExecutionView is the wire form of an execution result.
type ExecutionView struct {
	Success    bool                       `json:"success"`
	Data       map[string]json.RawMessage `json:"data"`
	Error      string                     `json:"error,omitempty"`
	DurationMS int64                      `json:"duration_ms"`
}

// ServerView is one registry entry in GET /v1/servers.
type ServerView struct {
	ServerID        string    `json:"server_id"`
	Status          string    `json:"status"`
	ResponseTimeMS  float64   `json:"response_time_ms"`
	SuccessRate     float64   `json:"success_rate"`
	CurrentLoad     float64   `json:"current_load"`
	ErrorCount      int       `json:"error_count"`
	LastHealthCheck time.Time `json:"last_health_check"`
	Capabilities    []string  `json:"capabilities"`
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ServersOnline int    `json:"servers_online"`
	ServersTotal  int    `json:"servers_total"`
}

type errorResponse struct {
	Error string `json:"error"`
}
