// Package raidclient is an HTTP client for the raid endpoints.
package raidclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"city-raid/internal/api"
	"city-raid/internal/sequencer"
	"city-raid/internal/service"
)

// DefaultIdentityHeader matches the server's default identity header.
const DefaultIdentityHeader = "X-Profile-Login"

// APIError is a problem response returned by the server.
type APIError struct {
	Status    int
	Code      service.Code
	Detail    string
	Retryable bool
	Meta      map[string]any
	Fields    []service.FieldError
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("raid api: %d %s: %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("raid api: %d %s", e.Status, e.Code)
}

// Is matches service errors by code, so errors.Is(err, service.ErrDailyLimitExceeded)
// works across the wire.
func (e *APIError) Is(target error) bool {
	var se *service.Error
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

// Client calls the raid API as one profile.
type Client struct {
	baseURL *url.URL
	login   string
	header  string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithIdentityHeader sets the header that carries the caller login.
func WithIdentityHeader(name string) Option {
	return func(c *Client) { c.header = name }
}

// New creates a Client for baseURL acting as login.
func New(baseURL, login string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: u,
		login:   login,
		header:  DefaultIdentityHeader,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ sequencer.RaidAPI = (*Client)(nil)

// Preview calls POST /raid/preview.
func (c *Client) Preview(ctx context.Context, targetLogin string) (*api.PreviewResponse, error) {
	var out api.PreviewResponse
	if err := c.do(ctx, http.MethodPost, "/raid/preview", api.PreviewRequest{TargetLogin: targetLogin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute calls POST /raid/execute.
func (c *Client) Execute(ctx context.Context, req api.ExecuteRequest) (*api.ExecuteResponse, error) {
	var out api.ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/raid/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveLoadout calls POST /raid/loadout.
func (c *Client) SaveLoadout(ctx context.Context, req api.LoadoutRequest) (*api.LoadoutResponse, error) {
	var out api.LoadoutResponse
	if err := c.do(ctx, http.MethodPost, "/raid/loadout", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History calls GET /raid/history. A limit of 0 uses the server default.
func (c *Client) History(ctx context.Context, limit int) (*api.HistoryResponse, error) {
	path := "/raid/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out api.HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rd)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.login != "" {
		req.Header.Set(c.header, c.login)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeProblem(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type problem struct {
	Code      service.Code         `json:"code"`
	Detail    string               `json:"detail"`
	Retryable bool                 `json:"retryable"`
	Meta      map[string]any       `json:"meta"`
	Errors    []service.FieldError `json:"errors"`
}

// decodeProblem reads a problem body. Bodies that are not problems, such as
// a proxy error page, keep the status and an empty code.
func decodeProblem(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var p problem
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&p); err != nil {
		apiErr.Detail = resp.Status
		return apiErr
	}
	apiErr.Code = p.Code
	apiErr.Detail = p.Detail
	apiErr.Retryable = p.Retryable
	apiErr.Meta = p.Meta
	apiErr.Fields = p.Errors
	return apiErr
}
