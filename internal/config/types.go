package config

import "time"

// Config represents the complete mcpgate configuration.
type Config struct {
	Service     ServiceConfig         `yaml:"service"`
	API         APIConfig             `yaml:"api,omitempty"`
	Routing     RoutingConfig         `yaml:"routing"`
	Breaker     BreakerConfig         `yaml:"circuit_breaker"`
	Coordinator CoordinatorConfig     `yaml:"coordinator"`
	Journal     JournalConfig         `yaml:"journal,omitempty"`
	Servers     map[string]ServerConf `yaml:"servers"`

	// SourceDigest is the BLAKE3 digest of the loaded file, filled in by
	// Load. Logged at startup and checked against --verify-hash to detect
	// out-of-band edits to the server inventory between restarts.
	SourceDigest string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	LogLevel       string        `yaml:"log_level"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// RoutingConfig defines decision-engine tuning.
type RoutingConfig struct {
	// DefaultServer is the designated orchestrator used when no candidate
	// matches and as the fixed fallback target.
	DefaultServer string `yaml:"default_server"`
	// MonitorServer is force-included for high/critical priority operations.
	MonitorServer string `yaml:"monitor_server"`

	// Decision-latency thresholds for performance alerts.
	TargetLatency   time.Duration `yaml:"target_latency"`
	WarnLatency     time.Duration `yaml:"warn_latency"`
	CriticalLatency time.Duration `yaml:"critical_latency"`

	// DefaultTimeout is the per-operation execution budget when the caller
	// supplies none; MaxTimeout caps the computed value.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`

	// CacheTTL bounds how long a routing decision may be reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BreakerConfig defines circuit breaker settings shared by all external
// server connections.
type BreakerConfig struct {
	Threshold  int           `yaml:"threshold"`
	ResetAfter time.Duration `yaml:"reset_after"`
}

// CoordinatorConfig locates the internal task coordination service.
type CoordinatorConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// JournalConfig defines the advisory audit journal. Routing state itself is
// never persisted; the journal is write-only observability.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Transport selects how an external server is reached.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "websocket"
	TransportLocal     Transport = "local"
)

// ServerConf defines a single capability server.
type ServerConf struct {
	// Kind tags the payload mapping used at the server boundary
	// (documentation, ui-generation, reasoning, browser-automation, ...).
	Kind string `yaml:"kind"`
	// Internal servers execute through the coordination service and have no
	// connection record.
	Internal     bool             `yaml:"internal,omitempty"`
	Transport    Transport        `yaml:"transport,omitempty"`
	URL          string           `yaml:"url,omitempty"`
	APIKey       string           `yaml:"api_key,omitempty"`
	Timeout      time.Duration    `yaml:"timeout,omitempty"`
	Description  string           `yaml:"description,omitempty"`
	Capabilities []CapabilityConf `yaml:"capabilities"`
}

// CapabilityConf declares what operations a server can take.
type CapabilityConf struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description,omitempty"`
	Tools         []string `yaml:"tools,omitempty"`   // tool patterns; "*" matches all
	Domains       []string `yaml:"domains,omitempty"` // domain hints
	ComplexityMin float64  `yaml:"complexity_min,omitempty"`
	ComplexityMax float64  `yaml:"complexity_max,omitempty"`
}
