package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/log"
)

var ErrUnknownServer = errors.New("no connection for server")

// AvailabilityFunc is notified when a server's reachability flips; wired to
// the registry's SetAvailability at startup.
type AvailabilityFunc func(serverID string, available bool)

// Conn supervises the single long-lived connection to one external server:
// the transport plus the circuit breaker wrapped around it.
type Conn struct {
	serverID  string
	transport Transport
	breaker   *Breaker
	hub       *events.Hub
	logger    *slog.Logger

	mu         sync.Mutex
	retryCount int
	lastError  error
}

func NewConn(serverID string, transport Transport, breaker *Breaker, hub *events.Hub) *Conn {
	return &Conn{
		serverID:  serverID,
		transport: transport,
		breaker:   breaker,
		hub:       hub,
		logger:    log.WithServer(serverID).With("component", "connection"),
	}
}

// Execute issues one request through the breaker and transport. A rejected
// call (circuit open) never touches the transport.
func (c *Conn) Execute(ctx context.Context, operation string, params map[string]any) (json.RawMessage, error) {
	halfOpened, err := c.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", c.serverID, err)
	}
	if halfOpened {
		c.logger.Info("circuit breaker half-open, probing server")
		c.publish(events.TypeBreakerHalfOpen, "")
	}

	if !c.transport.Connected() {
		if err := c.transport.Connect(ctx); err != nil {
			c.recordFailure(err)
			return nil, fmt.Errorf("connect %s: %w", c.serverID, err)
		}
	}

	result, err := c.transport.Call(ctx, operation, params)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	c.recordSuccess()
	return result, nil
}

func (c *Conn) recordSuccess() {
	if closed := c.breaker.RecordSuccess(); closed {
		c.logger.Info("circuit breaker closed")
		c.publish(events.TypeBreakerClosed, "")
	}

	c.mu.Lock()
	c.retryCount = 0
	c.lastError = nil
	c.mu.Unlock()
}

func (c *Conn) recordFailure(err error) {
	c.mu.Lock()
	c.retryCount++
	c.lastError = err
	c.mu.Unlock()

	if opened := c.breaker.RecordFailure(); opened {
		c.logger.Warn("circuit breaker opened", "error", err)
		c.publish(events.TypeBreakerOpen, err.Error())
	}
}

func (c *Conn) publish(eventType events.Type, detail string) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(eventType, events.ServerEvent{ServerID: c.serverID, Detail: detail})
}

// State is a point-in-time view of one connection for health monitoring.
type State struct {
	ServerID     string
	Connected    bool
	BreakerState BreakerState
	FailureCount int
	RetryCount   int
	LastError    string
}

func (c *Conn) state() State {
	c.mu.Lock()
	retry := c.retryCount
	lastErr := ""
	if c.lastError != nil {
		lastErr = c.lastError.Error()
	}
	c.mu.Unlock()

	return State{
		ServerID:     c.serverID,
		Connected:    c.transport.Connected(),
		BreakerState: c.breaker.State(),
		FailureCount: c.breaker.FailureCount(),
		RetryCount:   retry,
		LastError:    lastErr,
	}
}

// Supervisor owns every external server connection.
type Supervisor struct {
	mu           sync.Mutex
	conns        map[string]*Conn
	availability AvailabilityFunc
	logger       *slog.Logger
}

func NewSupervisor(availability AvailabilityFunc) *Supervisor {
	return &Supervisor{
		conns:        make(map[string]*Conn),
		availability: availability,
		logger:       log.WithComponent("supervisor"),
	}
}

// Add registers the connection for one external server.
func (s *Supervisor) Add(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.serverID] = conn
}

// Execute dispatches one request to the named external server.
func (s *Supervisor) Execute(ctx context.Context, serverID, operation string, params map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	conn, ok := s.conns[serverID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}

	result, err := conn.Execute(ctx, operation, params)
	if err != nil && s.availability != nil && conn.breaker.State() == BreakerOpen {
		s.availability(serverID, false)
	}
	if err == nil && s.availability != nil {
		s.availability(serverID, true)
	}
	return result, err
}

// Has reports whether serverID is supervised (i.e. external).
func (s *Supervisor) Has(serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[serverID]
	return ok
}

// ConnectAll eagerly establishes streaming transports at startup. Failures
// are logged and retried lazily on first use.
func (s *Supervisor) ConnectAll(ctx context.Context) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.transport.Connect(ctx); err != nil {
			s.logger.Warn("initial connect failed", "server_id", c.serverID, "error", err)
			continue
		}
		if s.availability != nil {
			s.availability(c.serverID, true)
		}
	}
}

// States snapshots every connection for the health monitor.
func (s *Supervisor) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]State, len(s.conns))
	for id, c := range s.conns {
		out[id] = c.state()
	}
	return out
}

// CloseAll tears down every transport at shutdown.
func (s *Supervisor) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conns {
		if err := c.transport.Close(); err != nil {
			s.logger.Warn("close transport", "server_id", id, "error", err)
		}
	}
}
