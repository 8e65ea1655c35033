// Package health runs the periodic telemetry refresh for every registered
// capability server.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpgate/mcpgate/internal/connection"
	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/log"
	"github.com/mcpgate/mcpgate/internal/registry"
	"github.com/mcpgate/mcpgate/internal/task"
)

const (
	// degradedSuccessRate is the success EMA below which an online server is
	// marked degraded.
	degradedSuccessRate = 0.5
	// overloadedLoad is the load fraction at which a server is marked
	// overloaded.
	overloadedLoad = 1.0
)

// Monitor refreshes registry telemetry on a fixed interval: the coordination
// service answers for internal servers, connection state for external ones.
// A failed tick keeps the previous snapshot and never stops the loop.
type Monitor struct {
	registry   *registry.Registry
	supervisor *connection.Supervisor
	tasks      task.Service
	hub        *events.Hub
	interval   time.Duration
	logger     *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMonitor(reg *registry.Registry, sup *connection.Supervisor, tasks task.Service, hub *events.Hub, interval time.Duration) *Monitor {
	return &Monitor{
		registry:   reg,
		supervisor: sup,
		tasks:      tasks,
		hub:        hub,
		interval:   interval,
		logger:     log.WithComponent("health"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the monitor loop. An immediate first tick seeds statuses
// before the first interval elapses.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("health monitor started", "interval", m.interval)
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop gracefully stops the monitor.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick refreshes every server's status once.
func (m *Monitor) tick(ctx context.Context) {
	checked := 0

	// External servers: connection and breaker state decide availability.
	if m.supervisor != nil {
		for serverID, st := range m.supervisor.States() {
			available := st.Connected && st.BreakerState != connection.BreakerOpen
			if err := m.registry.SetAvailability(serverID, available); err != nil {
				m.logger.Warn("availability update failed", "server_id", serverID, "error", err)
				continue
			}
			checked++
		}
	}

	// Internal servers: ask the coordination service.
	if m.tasks != nil {
		statuses, err := m.tasks.PerformHealthCheck(ctx)
		if err != nil {
			// Keep the previous snapshot until the next successful tick.
			m.logger.Warn("coordination health check failed", "error", err)
		} else {
			for serverID, healthy := range statuses {
				if err := m.registry.SetAvailability(serverID, healthy); err != nil {
					m.logger.Warn("availability update failed", "server_id", serverID, "error", err)
					continue
				}
				checked++
			}
		}
	}

	// Telemetry-derived states: an online server drowning in errors is
	// degraded, one running at capacity is overloaded. Either takes the
	// server out of candidate selection until the telemetry improves.
	for _, h := range m.registry.Snapshot() {
		switch h.Status {
		case registry.StatusOnline:
			if h.SuccessRate < degradedSuccessRate {
				_ = m.registry.SetStatus(h.ServerID, registry.StatusDegraded)
			} else if h.CurrentLoad >= overloadedLoad {
				_ = m.registry.SetStatus(h.ServerID, registry.StatusOverloaded)
			}
		case registry.StatusDegraded:
			if h.SuccessRate >= degradedSuccessRate {
				_ = m.registry.SetStatus(h.ServerID, registry.StatusOnline)
			}
		case registry.StatusOverloaded:
			if h.CurrentLoad < overloadedLoad {
				_ = m.registry.SetStatus(h.ServerID, registry.StatusOnline)
			}
		}
	}

	if m.hub != nil {
		m.hub.Publish(events.TypeHealthTick, map[string]any{
			"checked": checked,
			"at":      time.Now().UTC(),
		})
	}
	m.logger.Debug("health tick complete", "checked", checked)
}
