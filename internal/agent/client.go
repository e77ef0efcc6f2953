package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client is a thin wrapper over the tracker session endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.ServerURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type sessionReply struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Data      struct {
		RuntimeSeconds   int64  `json:"runtime_seconds"`
		RuntimeFormatted string `json:"runtime_formatted"`
	} `json:"data"`
	Error string `json:"error"`
}

// StartSession registers a new session and returns its id.
func (c *Client) StartSession(ctx context.Context, deviceID string) (string, error) {
	reply, err := c.postJSON(ctx, "/api/session/start", map[string]string{"device_id": deviceID})
	if err != nil {
		return "", err
	}
	if reply.SessionID == "" {
		return "", fmt.Errorf("start session: server returned no session_id")
	}
	return reply.SessionID, nil
}

func (c *Client) Heartbeat(ctx context.Context, sessionID string) error {
	_, err := c.postJSON(ctx, "/api/session/heartbeat", map[string]string{"session_id": sessionID})
	return err
}

// StopSession closes the session and returns the server's formatted
// runtime for the final log line.
func (c *Client) StopSession(ctx context.Context, sessionID string) (string, error) {
	reply, err := c.postJSON(ctx, "/api/session/stop", map[string]string{"session_id": sessionID})
	if err != nil {
		return "", err
	}
	return reply.Data.RuntimeFormatted, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body map[string]string) (sessionReply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return sessionReply{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return sessionReply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return sessionReply{}, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return sessionReply{}, fmt.Errorf("read response for %s: %w", path, err)
	}

	var reply sessionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return sessionReply{}, fmt.Errorf("decode response for %s (status %d): %w", path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		msg := reply.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return sessionReply{}, fmt.Errorf("POST %s: %s (status %d)", path, msg, resp.StatusCode)
	}
	return reply, nil
}
