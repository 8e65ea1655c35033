package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps response bodies read from the coordination service.
const maxBodyBytes = 8 * 1024 * 1024

// Client is the HTTP implementation of Service, talking to the coordination
// service over its REST boundary.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Service = (*Client)(nil)

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type executeTaskRequest struct {
	Kind    Kind    `json:"task_kind"`
	Payload Payload `json:"payload"`
	Options Options `json:"options"`
}

// ExecuteTask submits one task and waits for its result.
func (c *Client) ExecuteTask(ctx context.Context, kind Kind, payload Payload, opts Options) (*Result, error) {
	if kind != KindProcessing && kind != KindValidation {
		return nil, fmt.Errorf("unsupported task kind %q", kind)
	}

	var result Result
	err := c.do(ctx, http.MethodPost, "/v1/tasks", executeTaskRequest{
		Kind:    kind,
		Payload: payload,
		Options: opts,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("execute task: %w", err)
	}
	return &result, nil
}

// PerformHealthCheck asks the coordination service for internal-server
// liveness.
func (c *Client) PerformHealthCheck(ctx context.Context) (map[string]bool, error) {
	var out map[string]bool
	if err := c.do(ctx, http.MethodGet, "/v1/health/servers", nil, &out); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return out, nil
}

// RegisterServer announces one internal server at startup.
func (c *Client) RegisterServer(ctx context.Context, reg ServerRegistration) error {
	if reg.ID == "" {
		return fmt.Errorf("server registration requires an id")
	}
	if err := c.do(ctx, http.MethodPost, "/v1/servers", reg, nil); err != nil {
		return fmt.Errorf("register server %s: %w", reg.ID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("coordination service returned HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
