package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timing and threshold values. The latency thresholds bound the
// routing decision computation itself, not server execution.
const (
	DefaultHealthInterval   = 30 * time.Second
	DefaultTargetLatency    = 50 * time.Millisecond
	DefaultWarnLatency      = 80 * time.Millisecond
	DefaultCriticalLatency  = 100 * time.Millisecond
	DefaultExecTimeout      = 5 * time.Second
	DefaultMaxTimeout       = 30 * time.Second
	DefaultCacheTTL         = 60 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerReset     = 60 * time.Second
)

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.SourceDigest = DigestBytes(data)

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "mcpgate"
	}
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = "INFO"
	}
	if c.Service.HealthInterval <= 0 {
		c.Service.HealthInterval = DefaultHealthInterval
	}

	if c.Routing.TargetLatency <= 0 {
		c.Routing.TargetLatency = DefaultTargetLatency
	}
	if c.Routing.WarnLatency <= 0 {
		c.Routing.WarnLatency = DefaultWarnLatency
	}
	if c.Routing.CriticalLatency <= 0 {
		c.Routing.CriticalLatency = DefaultCriticalLatency
	}
	if c.Routing.DefaultTimeout <= 0 {
		c.Routing.DefaultTimeout = DefaultExecTimeout
	}
	if c.Routing.MaxTimeout <= 0 {
		c.Routing.MaxTimeout = DefaultMaxTimeout
	}
	if c.Routing.CacheTTL <= 0 {
		c.Routing.CacheTTL = DefaultCacheTTL
	}

	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = DefaultBreakerThreshold
	}
	if c.Breaker.ResetAfter <= 0 {
		c.Breaker.ResetAfter = DefaultBreakerReset
	}

	if c.Coordinator.Timeout <= 0 {
		c.Coordinator.Timeout = DefaultExecTimeout
	}

	for id, srv := range c.Servers {
		if !srv.Internal && srv.Transport == "" {
			srv.Transport = TransportHTTP
		}
		if srv.Internal {
			srv.Transport = TransportLocal
		}
		for i := range srv.Capabilities {
			cap := &srv.Capabilities[i]
			if cap.ComplexityMax <= 0 {
				cap.ComplexityMax = 1.0
			}
		}
		c.Servers[id] = srv
	}
}

// Validate checks config invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server must be configured")
	}

	if c.Routing.DefaultServer == "" {
		return fmt.Errorf("routing.default_server is required")
	}
	if _, ok := c.Servers[c.Routing.DefaultServer]; !ok {
		return fmt.Errorf("routing.default_server %q is not a configured server", c.Routing.DefaultServer)
	}
	if c.Routing.MonitorServer != "" {
		if _, ok := c.Servers[c.Routing.MonitorServer]; !ok {
			return fmt.Errorf("routing.monitor_server %q is not a configured server", c.Routing.MonitorServer)
		}
	}

	for id, srv := range c.Servers {
		if srv.Kind == "" {
			return fmt.Errorf("server %q: kind is required", id)
		}
		if !srv.Internal {
			switch srv.Transport {
			case TransportHTTP, TransportWebSocket:
			default:
				return fmt.Errorf("server %q: unsupported transport %q", id, srv.Transport)
			}
			if srv.URL == "" {
				return fmt.Errorf("server %q: url is required for external servers", id)
			}
		}
		for _, cap := range srv.Capabilities {
			if cap.Name == "" {
				return fmt.Errorf("server %q: capability name is required", id)
			}
			if cap.ComplexityMin < 0 || cap.ComplexityMax > 1 || cap.ComplexityMin > cap.ComplexityMax {
				return fmt.Errorf("server %q capability %q: complexity range [%v,%v] must be within [0,1]",
					id, cap.Name, cap.ComplexityMin, cap.ComplexityMax)
			}
		}
	}

	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api.enabled is true")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal.enabled is true")
	}

	return nil
}
