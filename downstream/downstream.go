// Package downstream calls the protected service relative to a base address
// and normalizes every reply into a Result.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/udhos/tokenproxy/metrics"
)

// CorrelationHeader carries the request correlation id.
const CorrelationHeader = "X-Correlation-ID"

// HTTPDoer is interface for http client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options define client options.
type Options struct {
	// BaseURL is the service base address. Required.
	BaseURL string

	// HTTPClient sends requests, usually an *authclient.Client.
	// If nil, http.DefaultClient is used.
	HTTPClient HTTPDoer

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Client calls the downstream service.
type Client struct {
	base    *url.URL
	options Options
}

// Result is the normalized outcome of one call.
type Result[T any] struct {
	// Data is present only for 2xx replies with a non-blank body.
	Data *T

	StatusCode int

	// RawBody is always captured, for diagnostics and passthrough.
	RawBody string
}

// IsSuccess reports whether the status is 2xx.
func (r Result[T]) IsSuccess() bool {
	return isSuccess(r.StatusCode)
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// New creates a client.
func New(options Options) (*Client, error) {
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	base, err := url.Parse(options.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("downstream base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("downstream base url: missing scheme or host: %s", options.BaseURL)
	}
	// keep last path segment when resolving relative endpoints
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return &Client{base: base, options: options}, nil
}

// BuildURL resolves endpoint against the base address.
// A single leading slash is stripped, so "foo" and "/foo" resolve identically.
func (c *Client) BuildURL(endpoint string) (string, error) {
	rel, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	return c.base.ResolveReference(rel).String(), nil
}

// Get sends GET base/endpoint and decodes a successful reply into T.
func Get[T any](ctx context.Context, c *Client, endpoint string) (Result[T], error) {
	return call[T](ctx, c, http.MethodGet, endpoint, nil)
}

// Post sends body as JSON to base/endpoint and decodes a successful reply into TOut.
func Post[TOut, TIn any](ctx context.Context, c *Client, endpoint string, body TIn) (Result[TOut], error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return Result[TOut]{}, fmt.Errorf("encode request body: %w", err)
	}
	return call[TOut](ctx, c, http.MethodPost, endpoint, buf)
}

func call[T any](ctx context.Context, c *Client, method, endpoint string, body []byte) (Result[T], error) {
	var result Result[T]

	u, errURL := c.BuildURL(endpoint)
	if errURL != nil {
		return result, errURL
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, errReq := http.NewRequestWithContext(ctx, method, u, reader)
	if errReq != nil {
		return result, fmt.Errorf("downstream request: %w", errReq)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := CorrelationID(ctx); id != "" {
		req.Header.Set(CorrelationHeader, id)
	}

	resp, errDo := c.options.HTTPClient.Do(req)
	if errDo != nil {
		c.options.Metrics.RecordDownstream(method, 0)
		return result, fmt.Errorf("downstream %s %s: %w", method, u, errDo)
	}
	defer resp.Body.Close()

	c.options.Metrics.RecordDownstream(method, resp.StatusCode)

	raw, errBody := io.ReadAll(resp.Body)
	if errBody != nil {
		return result, fmt.Errorf("downstream %s %s: read body: %w", method, u, errBody)
	}

	result.StatusCode = resp.StatusCode
	result.RawBody = string(raw)

	if !isSuccess(resp.StatusCode) || strings.TrimSpace(result.RawBody) == "" {
		return result, nil
	}

	// encoding/json matches field names case-insensitively
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return result, fmt.Errorf("downstream %s %s: decode body: %w", method, u, err)
	}
	result.Data = &data

	return result, nil
}

type contextKey string

const contextKeyCorrelationID contextKey = "correlation_id"

// WithCorrelationID stores the correlation id forwarded on downstream calls.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyCorrelationID).(string)
	return id
}
