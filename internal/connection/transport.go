package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// maxResponseBytes caps the response body read from a capability server.
const maxResponseBytes = 4 * 1024 * 1024

// Transport carries one request to an external capability server.
// Connected reports transport-level connectivity, independent of the
// circuit breaker wrapped around it.
type Transport interface {
	Connect(ctx context.Context) error
	Call(ctx context.Context, operation string, params map[string]any) (json.RawMessage, error)
	Connected() bool
	Close() error
}

// wireRequest is the JSON envelope sent to external servers on both
// transports.
type wireRequest struct {
	ID        string         `json:"id,omitempty"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params"`
}

// wireResponse is the JSON envelope expected back.
type wireResponse struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// httpTransport reaches a server in request/response style. It is
// connectionless; Connected tracks the outcome of the last exchange.
type httpTransport struct {
	url       string
	apiKey    string
	client    *http.Client
	connected atomic.Bool
}

// NewHTTPTransport builds a request/response transport for url. A zero
// timeout leaves deadline control entirely to the caller's context.
func NewHTTPTransport(url, apiKey string, timeout time.Duration) Transport {
	t := &httpTransport{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
	t.connected.Store(true)
	return t
}

func (t *httpTransport) Connect(_ context.Context) error {
	// Nothing to establish; each call is its own exchange.
	t.connected.Store(true)
	return nil
}

func (t *httpTransport) Call(ctx context.Context, operation string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(wireRequest{Operation: operation, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.connected.Store(false)
		return nil, fmt.Errorf("call %s: %w", t.url, err)
	}
	defer resp.Body.Close()
	t.connected.Store(true)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("remote error: %s", wire.Error)
	}
	return wire.Result, nil
}

func (t *httpTransport) Connected() bool { return t.connected.Load() }

func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// wsTransport holds one persistent streaming connection. Calls are
// serialized on the socket; a transport error drops the connection and the
// next call redials.
type wsTransport struct {
	url    string
	apiKey string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// NewWebSocketTransport builds a persistent streaming transport for url.
func NewWebSocketTransport(url, apiKey string) Transport {
	return &wsTransport{url: url, apiKey: apiKey}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked(ctx)
}

func (t *wsTransport) connectLocked(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}

	header := http.Header{}
	if t.apiKey != "" {
		header.Set("Authorization", "Bearer "+t.apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.conn = conn
	return nil
}

func (t *wsTransport) Call(ctx context.Context, operation string, params map[string]any) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}

	t.nextID++
	req := wireRequest{
		ID:        fmt.Sprintf("%d", t.nextID),
		Operation: operation,
		Params:    params,
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		_ = t.conn.SetReadDeadline(deadline)
	}

	if err := t.conn.WriteJSON(req); err != nil {
		t.dropLocked()
		return nil, fmt.Errorf("write: %w", err)
	}

	var wire wireResponse
	if err := t.conn.ReadJSON(&wire); err != nil {
		t.dropLocked()
		return nil, fmt.Errorf("read: %w", err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("remote error: %s", wire.Error)
	}
	return wire.Result, nil
}

func (t *wsTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *wsTransport) dropLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}
