package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/ratewatch/internal/reducer"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; the daemon talks to a single host for hours
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// DefaultFetchTimeout bounds a single /rate_limit request when the caller
// does not configure one.
const DefaultFetchTimeout = 10 * time.Second

// FetchFunc fetches the current rate-limit snapshot from the provider.
//
// This is the seam between the poll loop and the network: the default
// implementation is [Client.Fetch], and tests substitute deterministic
// functions. Failed provider responses are reported as a [*StatusError] so
// callers can recover throttle evidence with errors.As.
type FetchFunc func(ctx context.Context, token string) (*reducer.Response, error)

// Details carries the evidence extracted from a failed provider response:
// the HTTP status, the JSON message body when one decodes, and the
// rate-limit headers. Pointer fields are nil when the header was absent
// or unparseable.
type Details struct {
	// StatusCode is the HTTP status of the failed response.
	StatusCode int

	// Message is the "message" field of the JSON error body, if any.
	Message string

	// Remaining is the x-ratelimit-remaining header.
	Remaining *int

	// Reset is the x-ratelimit-reset header, epoch seconds.
	Reset *int64

	// RetryAfter is the retry-after header, in seconds.
	RetryAfter *int
}

// StatusError is returned by [Client.Fetch] when the provider answers with
// a non-2xx status. It keeps the throttle evidence attached so the backoff
// controller can classify the failure.
type StatusError struct {
	Details Details
}

func (e *StatusError) Error() string {
	if e.Details.Message != "" {
		return fmt.Sprintf("rate_limit request failed: HTTP %d: %s", e.Details.StatusCode, e.Details.Message)
	}
	return fmt.Sprintf("rate_limit request failed: HTTP %d", e.Details.StatusCode)
}

// Client fetches /rate_limit snapshots from a GitHub-style API.
//
// The client applies a per-request timeout via context, limits response
// bodies to 1MB, and keeps connections pooled between polls. The zero
// value is not usable; construct with [NewClient].
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewClient creates a rate-limit [Client] for the given API base URL.
//
// A non-positive timeout falls back to [DefaultFetchTimeout]. Connection
// pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Client{
		httpClient: &http.Client{
			// no default timeout - the per-request context carries it
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false, // explicitly enable connection reuse
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
	}
}

// Fetch retrieves and decodes the provider's /rate_limit document.
//
// Transport and decode failures return ordinary errors. Non-2xx responses
// return a [*StatusError] carrying the status, rate-limit headers and any
// JSON message body. The request is bounded by the client's timeout
// regardless of the parent context's deadline.
func (c *Client) Fetch(ctx context.Context, token string) (*reducer.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rate_limit", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Details: extractDetails(resp.StatusCode, resp.Header, body)}
	}

	var decoded reducer.Response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rate_limit response: %w", err)
	}
	if len(decoded.Resources) == 0 && decoded.Rate == nil {
		return nil, errors.New("rate_limit response has no resources")
	}
	return &decoded, nil
}

// extractDetails pulls throttle evidence out of a failed response. Headers
// that are absent or malformed leave the corresponding field nil rather
// than failing the extraction.
func extractDetails(status int, header http.Header, body []byte) Details {
	d := Details{StatusCode: status}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		d.Message = payload.Message
	}

	if v := header.Get("x-ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.Remaining = &n
		}
	}
	if v := header.Get("x-ratelimit-reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.Reset = &n
		}
	}
	if v := header.Get("retry-after"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.RetryAfter = &n
		}
	}
	return d
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil client. After Close, the client
// remains usable; new connections are established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
