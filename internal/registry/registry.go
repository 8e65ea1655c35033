package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/log"
)

// EMA smoothing factors. responseTime keeps 80% of history per sample,
// successRate keeps 90%.
const (
	latencyAlpha = 0.8
	successAlpha = 0.9

	defaultResponseTime = 100.0
	defaultSuccessRate  = 0.95
)

// Registry is the capability and health table for all known servers.
// Entries are never removed; unreachable servers are marked offline.
type Registry struct {
	mu      sync.Mutex
	servers map[string]*Health
	hub     *events.Hub
	logger  *slog.Logger
}

func New(hub *events.Hub) *Registry {
	return &Registry{
		servers: make(map[string]*Health),
		hub:     hub,
		logger:  log.WithComponent("registry"),
	}
}

// Register creates the health entry for a server. Duplicate registration is
// an error; capabilities are immutable after this call.
func (r *Registry) Register(serverID string, capabilities []Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[serverID]; exists {
		return fmt.Errorf("server %q already registered", serverID)
	}

	caps := make([]Capability, len(capabilities))
	copy(caps, capabilities)

	r.servers[serverID] = &Health{
		ServerID:        serverID,
		Status:          StatusOnline,
		LastHealthCheck: time.Now().UTC(),
		ResponseTime:    defaultResponseTime,
		SuccessRate:     defaultSuccessRate,
		CurrentLoad:     0,
		Capabilities:    caps,
	}

	r.logger.Info("server registered", "server_id", serverID, "capabilities", len(caps))
	return nil
}

// Get returns a copy of one server's health record.
func (r *Registry) Get(serverID string) (Health, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.servers[serverID]
	if !ok {
		return Health{}, fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	return *h, nil
}

// Snapshot returns copies of every health record, sorted by server id for
// deterministic iteration.
func (r *Registry) Snapshot() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Health, 0, len(r.servers))
	for _, h := range r.servers {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// UpdateAfterExecution folds one dispatch outcome into the EMA telemetry of
// every server that took part. Unknown ids are skipped with a warning rather
// than failing the whole batch.
func (r *Registry) UpdateAfterExecution(serverIDs []string, success bool, duration time.Duration) {
	durationMS := float64(duration.Milliseconds())
	sample := 0.0
	if success {
		sample = 1.0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range serverIDs {
		h, ok := r.servers[id]
		if !ok {
			r.logger.Warn("telemetry update for unknown server", "server_id", id)
			continue
		}
		h.ResponseTime = latencyAlpha*h.ResponseTime + (1-latencyAlpha)*durationMS
		h.SuccessRate = successAlpha*h.SuccessRate + (1-successAlpha)*sample
		if !success {
			h.ErrorCount++
		}
	}
}

// SetAvailability flips a server between online and offline, driven by
// connection supervisor events and the health monitor.
func (r *Registry) SetAvailability(serverID string, available bool) error {
	r.mu.Lock()
	h, ok := r.servers[serverID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}

	previous := h.Status
	if available {
		// Degraded and overloaded are telemetry states, not reachability; only
		// an offline server comes back online here.
		if h.Status == StatusOffline {
			h.Status = StatusOnline
		}
	} else {
		h.Status = StatusOffline
	}
	h.LastHealthCheck = time.Now().UTC()
	changed := h.Status != previous
	status := h.Status
	r.mu.Unlock()

	if changed && r.hub != nil {
		eventType := events.TypeServerConnected
		if status == StatusOffline {
			eventType = events.TypeServerDisconnected
		}
		r.hub.Publish(eventType, events.ServerEvent{ServerID: serverID})
	}
	if changed {
		r.logger.Info("server availability changed", "server_id", serverID, "status", string(status))
	}
	return nil
}

// SetStatus records a non-binary status (degraded, overloaded) from the
// health monitor.
func (r *Registry) SetStatus(serverID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.servers[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	h.Status = status
	h.LastHealthCheck = time.Now().UTC()
	return nil
}

// SetLoad records the current load fraction for a server, clamped to [0,1].
func (r *Registry) SetLoad(serverID string, load float64) error {
	if load < 0 {
		load = 0
	}
	if load > 1 {
		load = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.servers[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	h.CurrentLoad = load
	return nil
}
