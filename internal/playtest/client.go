package playtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var (
	errConflict  = errors.New("match already decided")
	errThrottled = errors.New("decision throttled")
)

// HTTPClient talks to the game API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

func (c *HTTPClient) createGame(ctx context.Context) (Game, error) {
	var g Game
	_, err := c.do(ctx, http.MethodPost, "/games", nil, &g)
	return g, err
}

func (c *HTTPClient) game(ctx context.Context, id string) (Game, error) {
	var g Game
	_, err := c.do(ctx, http.MethodGet, "/games/"+id, nil, &g)
	return g, err
}

func (c *HTTPClient) decide(ctx context.Context, id string, seq int, winnerID string) (Game, error) {
	var g Game
	body := map[string]any{"match": seq, "winner_id": winnerID}
	status, err := c.do(ctx, http.MethodPost, "/games/"+id+"/decisions", body, &g)
	switch status {
	case http.StatusConflict:
		return g, fmt.Errorf("%w: %w", errConflict, err)
	case http.StatusTooManyRequests:
		return g, fmt.Errorf("%w: %w", errThrottled, err)
	}
	return g, err
}

func (c *HTTPClient) endGame(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/games/"+id, nil, nil)
	return err
}

func (c *HTTPClient) leaderboard(ctx context.Context, n int) ([]Entry, error) {
	var rows []Entry
	_, err := c.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(n), nil, &rows)
	return rows, err
}
