// Package client is an HTTP client for the ManTripAttendance resource.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mantrip/internal/attendance/models"
	"mantrip/pkg/requestcontext"
)

const (
	defaultTimeout = 10 * time.Second
	resourcePath   = "/api/attendance"

	// RequestIDHeader carries the caller's correlation id to the resource.
	RequestIDHeader = "X-Request-ID"
)

// Client calls the attendance resource over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the resource rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("attendance base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse attendance base URL: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Success          bool            `json:"success"`
	Data             json.RawMessage `json:"data"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// List returns every record.
func (c *Client) List(ctx context.Context) ([]*models.Record, error) {
	var records []*models.Record
	if err := c.do(ctx, "list", http.MethodGet, resourcePath, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Create stores a new record and returns the server copy.
func (c *Client) Create(ctx context.Context, req models.CreateRequest) (*models.Record, error) {
	var record *models.Record
	if err := c.do(ctx, "create", http.MethodPost, resourcePath, req, &record); err != nil {
		return nil, err
	}
	return requireRecord("create", record)
}

// Update changes a record's attended flag and returns the server copy.
func (c *Client) Update(ctx context.Context, id string, req models.UpdateRequest) (*models.Record, error) {
	var record *models.Record
	if err := c.do(ctx, "update", http.MethodPatch, resourcePath+"/"+url.PathEscape(id), req, &record); err != nil {
		return nil, err
	}
	return requireRecord("update", record)
}

// requireRecord rejects a successful envelope that carries no stored record.
func requireRecord(operation string, record *models.Record) (*models.Record, error) {
	if record == nil || record.ID == "" {
		return nil, newRemoteError(ErrorBadData, operation, "response carried no record", nil)
	}
	return record, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, resourcePath+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return newRemoteError(ErrorInternal, operation, "encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return newRemoteError(ErrorInternal, operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return newRemoteError(ErrorTimeout, operation, "request timed out", err)
		}
		return newRemoteError(ErrorOutage, operation, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			re := newRemoteError(ErrorOutage, operation, resp.Status, nil)
			re.StatusCode = resp.StatusCode
			return re
		}
		re := newRemoteError(ErrorBadData, operation, "decode response", err)
		re.StatusCode = resp.StatusCode
		return re
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		category := ErrorRejected
		if resp.StatusCode >= http.StatusInternalServerError {
			category = ErrorOutage
		}
		message := env.ErrorDescription
		if message == "" {
			message = resp.Status
		}
		re := newRemoteError(category, operation, message, nil)
		re.StatusCode = resp.StatusCode
		re.Code = env.Error
		return re
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newRemoteError(ErrorBadData, operation, "decode data", err)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
