package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/trust/internal/adapters/auth"
)

// submitResult classifies one POST /trust/events exchange.
type submitResult int

const (
	resultFailed submitResult = iota
	resultCreated
	resultDuplicate
	resultBusy
)

// client wraps http.Client with the load tester's identity.
type client struct {
	http    *http.Client
	baseURL string
	cfg     *Config
}

func newClient(cfg *Config) *client {
	return &client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
	}
}

func (c *client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	} else {
		req.Header.Set(auth.HeaderUserID, c.cfg.Operator)
		req.Header.Set(auth.HeaderRoles, strings.Join(c.cfg.Roles, ","))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getJSON decodes a 200 response of path into v.
func (c *client) getJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// submit posts sub once. retryAfter is the server's hint on busy responses.
func (c *client) submit(ctx context.Context, sub Submission) (submitResult, time.Duration, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return resultFailed, 0, fmt.Errorf("marshal submission: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/trust/events", bytes.NewReader(body))
	if err != nil {
		return resultFailed, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return resultFailed, 0, fmt.Errorf("POST /trust/events: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		return resultCreated, 0, nil
	case http.StatusOK:
		return resultDuplicate, 0, nil
	case http.StatusServiceUnavailable:
		wait := time.Second
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s >= 0 {
			wait = time.Duration(s) * time.Second
		}
		return resultBusy, wait, nil
	default:
		return resultFailed, 0, fmt.Errorf("POST /trust/events %s: status %d", sub.EventID, resp.StatusCode)
	}
}

func historyPath(userID string, limit int) string {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("limit", strconv.Itoa(limit))
	return "/trust/history?" + q.Encode()
}

func scorePath(userID string) string {
	return "/trust/score?user_id=" + url.QueryEscape(userID)
}
