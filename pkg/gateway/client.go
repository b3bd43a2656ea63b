// Package gateway is the HTTP/JSON client for the flight tracking backend.
//
// Every backend response is wrapped in the envelope
//
//	{"success": true, "message": "...", "data": ...}
//
// Failures of any kind (transport, non-2xx, malformed body) are reported as
// *flight.RemoteError. Requests are rate limited, carry an X-Request-ID and
// are retried with exponential backoff when they are idempotent and the
// failure is temporary.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

const (
	// DefaultBaseURL is the public deployment of the backend
	DefaultBaseURL = "https://flight-tracking-backend.vercel.app/api"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second

	// DefaultRequestsPerSecond keeps a busy UI from flooding the backend
	DefaultRequestsPerSecond = 10.0

	// RequestIDHeader carries a unique ID per attempt for backend log correlation
	RequestIDHeader = "X-Request-ID"
)

// Config contains configuration for the gateway client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string

	// ReadRetry applies to GET requests, WriteRetry to everything else
	ReadRetry  RetryConfig
	WriteRetry RetryConfig
}

// RequestObserver receives the outcome of every HTTP attempt, e.g. for
// metrics. statusCode is 0 when no response was received.
type RequestObserver interface {
	ObserveRequest(operation string, statusCode int, duration time.Duration)
}

// Client talks to the flight tracking backend.
type Client struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	readRetry   RetryConfig
	writeRetry  RetryConfig
	logger      *slog.Logger
	observer    RequestObserver
}

// NewClient creates a gateway client. Zero fields of cfg take defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "flighttrack/1.0"
	}
	if cfg.ReadRetry == (RetryConfig{}) {
		cfg.ReadRetry = DefaultRetryConfig()
	}
	if cfg.WriteRetry == (RetryConfig{}) {
		cfg.WriteRetry = NoRetry()
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		readRetry:   cfg.ReadRetry,
		writeRetry:  cfg.WriteRetry,
		logger:      slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (c *Client) SetLogger(l *slog.Logger) { c.logger = l }

// SetObserver installs an observer notified after every HTTP attempt.
func (c *Client) SetObserver(o RequestObserver) { c.observer = o }

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// envelope is the backend's response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// request describes one backend call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
}

// call performs req, retrying per the client's policy, and decodes the
// envelope's data into T. It also returns the envelope message.
func call[T any](ctx context.Context, c *Client, req request) (T, string, error) {
	var zero T

	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return zero, "", &flight.RemoteError{Operation: req.op, Err: fmt.Errorf("encode request: %w", err)}
		}
		payload = b
	}

	retry := c.writeRetry
	if req.method == http.MethodGet {
		retry = c.readRetry
	}

	env, err := RetryWithBackoffResult(ctx, retry, c.logger, func() (*envelope, error) {
		return c.attempt(ctx, req, payload)
	})
	if err != nil {
		return zero, "", err
	}

	var out T
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return zero, env.text(), &flight.RemoteError{
				Operation:  req.op,
				StatusCode: http.StatusOK,
				Message:    "malformed response data",
				Err:        err,
			}
		}
	}
	return out, env.text(), nil
}

// attempt performs a single HTTP exchange.
func (c *Client) attempt(ctx context.Context, req request, payload []byte) (*envelope, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &flight.RemoteError{Operation: req.op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, &flight.RemoteError{Operation: req.op, Err: fmt.Errorf("create request: %w", err)}
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(req.op, 0, start)
		return nil, &flight.RemoteError{Operation: req.op, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.observe(req.op, resp.StatusCode, start)
	if err != nil {
		return nil, &flight.RemoteError{Operation: req.op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("backend request",
		"op", req.op, "method", req.method, "path", req.path,
		"status", resp.StatusCode, "request_id", requestID, "duration", time.Since(start))

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && env.text() != "" {
			msg = env.text()
		}
		return nil, &flight.RemoteError{
			Operation:  req.op,
			StatusCode: resp.StatusCode,
			Message:    msg,
			RetryAfter: parseRetryAfter(resp.Header),
		}
	}

	if decodeErr != nil {
		return nil, &flight.RemoteError{
			Operation:  req.op,
			StatusCode: resp.StatusCode,
			Message:    "malformed response",
			Err:        decodeErr,
		}
	}
	if env.Success != nil && !*env.Success {
		return nil, &flight.RemoteError{
			Operation:  req.op,
			StatusCode: resp.StatusCode,
			Message:    env.text(),
		}
	}
	return &env, nil
}

func (c *Client) observe(op string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(op, status, time.Since(start))
	}
}

// flightPath builds an escaped path segment for a flight number.
func flightPath(format, flightNumber string) string {
	return fmt.Sprintf(format, url.PathEscape(flight.NormalizeFlightNumber(flightNumber)))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
