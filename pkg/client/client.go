// Package client is the request layer for the deployment platform API. Every
// call attaches the current bearer token when one is available and turns any
// failure into a *RequestError carrying one human-readable message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jvreagan/shipyard/pkg/credentials"
	"github.com/jvreagan/shipyard/pkg/logging"
)

const (
	// DefaultBaseURL is used when New is given an empty base URL.
	DefaultBaseURL = "http://localhost:9000"

	// DefaultTimeout bounds each request made with the default HTTP client.
	DefaultTimeout = 15 * time.Second

	// FallbackMessage is used when an error response carries no usable message.
	FallbackMessage = "Request failed"

	requestIDHeader = "X-Request-ID"
)

// Client provides typed access to the platform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	source     credentials.Source
	logger     *slog.Logger
	userAgent  string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLogger sets the logger used for per-request debug records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New constructs a Client for base. A nil source behaves like
// credentials.None.
func New(base string, source credentials.Source, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if source == nil {
		source = credentials.None()
	}

	c := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		source:     source,
		logger:     logging.GetLogger(),
		userAgent:  "shipyard",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestError is the single error shape returned by the request layer.
// Status is zero when no response was received.
type RequestError struct {
	Status    int
	Message   string
	RequestID string
	Err       error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ErrNotFound is wrapped by the RequestError returned when a successful
// response carries no record.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is a RequestError for an HTTP 404 or for a
// response without a record.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var re *RequestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// Call performs one request and returns the raw JSON body. body, when not
// nil, is encoded as JSON.
func (c *Client) Call(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	requestID := uuid.NewString()
	fail := func(status int, msg string, err error) (json.RawMessage, error) {
		return nil, &RequestError{Status: status, Message: msg, RequestID: requestID, Err: err}
	}

	token, err := c.source.Token(ctx)
	if err != nil {
		return fail(0, fmt.Sprintf("failed to obtain credentials: %v", err), err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fail(0, fmt.Sprintf("encode request body: %v", err), err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fail(0, fmt.Sprintf("create request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed",
			"method", method, "endpoint", endpoint, "request_id", requestID,
			"duration", time.Since(start), "error", logging.SanitizeString(err.Error()))
		return fail(0, err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.logger.Debug("api request",
		"method", method, "endpoint", endpoint, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start),
		"authenticated", token != "")
	if err != nil {
		return fail(resp.StatusCode, fmt.Sprintf("read response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, extractError(data), nil)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return fail(resp.StatusCode, "invalid response body", nil)
	}
	return json.RawMessage(data), nil
}

// extractError picks the first non-empty of the body's message and error
// fields, falling back to FallbackMessage.
func extractError(data []byte) string {
	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, &payload) != nil {
		return FallbackMessage
	}
	for _, v := range []any{payload.Message, payload.Error} {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return FallbackMessage
}

// envelope is the {data: ...} wrapper around every success payload.
type envelope[T any] struct {
	Data T `json:"data"`
}

// do performs a call and decodes the envelope's data into a T.
func do[T any](ctx context.Context, c *Client, method, endpoint string, body any) (T, error) {
	var zero T
	raw, err := c.Call(ctx, method, endpoint, body)
	if err != nil {
		return zero, err
	}
	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, &RequestError{Message: "invalid response body", Err: err}
	}
	return env.Data, nil
}

// record is do for endpoints that answer with a single record. A null or
// missing data field becomes a "<what> not found" error.
func record[T any](ctx context.Context, c *Client, method, endpoint, what string) (*T, error) {
	v, err := do[*T](ctx, c, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, notFound(what)
	}
	return v, nil
}

func notFound(what string) error {
	return &RequestError{Status: http.StatusOK, Message: what + " not found", Err: ErrNotFound}
}
