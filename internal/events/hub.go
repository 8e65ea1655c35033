package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies an event emitted by the gateway.
type Type string

const (
	TypeServerConnected    Type = "server.connected"
	TypeServerDisconnected Type = "server.disconnected"
	TypeBreakerOpen        Type = "breaker.open"
	TypeBreakerHalfOpen    Type = "breaker.half_open"
	TypeBreakerClosed      Type = "breaker.closed"
	TypePerfMetric         Type = "perf.metric"
	TypePerfAlert          Type = "perf.alert"
	TypeHealthTick         Type = "health.tick"
	TypeRouteDecided       Type = "route.decided"
)

type Event struct {
	ID   int64     `json:"id"`
	Type Type      `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Observer receives events synchronously, in publish order. Implementations
// must not block; long work belongs on the observer's own goroutine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Hub dispatches typed events to registered observers and keeps a small ring
// buffer so late clients can replay recent history.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	observers map[int]Observer
	nextObsID int
	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring:      make([]Event, capacity),
		observers: make(map[int]Observer),
		subs:      make(map[int]chan Event),
	}
}

// Publish marshals data and delivers the event to every observer before
// returning. Channel subscribers are fed best-effort.
func (h *Hub) Publish(eventType Type, data any) {
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	observers := make([]Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		observers = append(observers, obs)
	}
	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()

	// Dispatch outside the lock so observers may call back into the hub.
	for _, obs := range observers {
		obs.OnEvent(ev)
	}
}

// Register adds a synchronous observer and returns an unregister func.
func (h *Hub) Register(obs Observer) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextObsID
	h.nextObsID++
	h.observers[id] = obs

	return func() {
		h.mu.Lock()
		delete(h.observers, id)
		h.mu.Unlock()
	}
}

// Subscribe returns a buffered channel of events and a cancel func. Used by
// the watch TUI and the events API endpoint.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
