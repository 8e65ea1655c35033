package events

// PerfMetric is the payload for TypePerfMetric events.
type PerfMetric struct {
	Operation  string  `json:"operation"`
	DurationMS float64 `json:"duration_ms"`
}

// PerfAlert is the payload for TypePerfAlert events.
type PerfAlert struct {
	Severity  string  `json:"severity"` // "warning" or "critical"
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// ServerEvent is the payload for server.connected / server.disconnected and
// the breaker transition events.
type ServerEvent struct {
	ServerID string `json:"server_id"`
	Detail   string `json:"detail,omitempty"`
}
