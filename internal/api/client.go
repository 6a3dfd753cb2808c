package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vitae/internal/history"
)

const defaultClientTimeout = 10 * time.Second

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient constructs a client for the given bind address. The address may
// be a bare host:port or a full http URL.
func NewClient(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: defaultClientTimeout},
	}
}

// Status fetches the daemon-wide snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Health probes daemon liveness.
func (c *Client) Health(ctx context.Context) error {
	var out HealthResponse
	return c.do(ctx, http.MethodGet, "/api/health", nil, &out)
}

// Queue lists work items, optionally filtered by status.
func (c *Client) Queue(ctx context.Context, statuses ...string) ([]ItemSummary, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var out QueueListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Item fetches one work item.
func (c *Client) Item(ctx context.Context, id string) (ItemSummary, error) {
	var out ItemSummary
	err := c.do(ctx, http.MethodGet, "/api/queue/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Cancel requests cancellation of a work item.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/queue/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// Enqueue submits a document for processing.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	var out EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/api/items", req, &out)
	return out, err
}

// Reviews lists review items. When pendingOnly is false, decided reviews are
// included.
func (c *Client) Reviews(ctx context.Context, pendingOnly bool) ([]ReviewSummary, error) {
	path := "/api/reviews"
	if !pendingOnly {
		path += "?include=completed"
	}
	var out ReviewListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

// Decide submits a manual review decision.
func (c *Client) Decide(ctx context.Context, reviewID string, req DecisionRequest) (ReviewSummary, error) {
	var out ReviewSummary
	err := c.do(ctx, http.MethodPost, "/api/reviews/"+url.PathEscape(reviewID)+"/decision", req, &out)
	return out, err
}

// HistoryItems lists archived work items, most recent first.
func (c *Client) HistoryItems(ctx context.Context, limit int) ([]*history.ItemRecord, error) {
	var out []*history.ItemRecord
	err := c.do(ctx, http.MethodGet, historyPath("/api/history/items", limit), nil, &out)
	return out, err
}

// HistoryReviews lists archived review records, most recent first.
func (c *Client) HistoryReviews(ctx context.Context, limit int) ([]*history.ReviewRecord, error) {
	var out []*history.ReviewRecord
	err := c.do(ctx, http.MethodGet, historyPath("/api/history/reviews", limit), nil, &out)
	return out, err
}

func historyPath(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return fmt.Sprintf("%s?limit=%d", path, limit)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.base == "" {
		return fmt.Errorf("api client: no daemon address configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api client: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("api client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api client: decode response: %w", err)
	}
	return nil
}
