// Package authclient sends HTTP requests carrying a bearer token from a token store.
package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/udhos/tokenproxy/metrics"
	"github.com/udhos/tokenproxy/token"
)

// HTTPDoer is interface for http client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options define client options.
type Options struct {
	// Issue requests a brand new token from the token issuer. Required.
	Issue token.RefreshFunc

	// Store holds the shared token.
	// If nil, a store with token.DefaultGracePeriod is created.
	Store *token.Store

	// HTTPClient is the HTTP client to use to make requests.
	// If nil, http.DefaultClient is used.
	HTTPClient HTTPDoer

	// IsBadTokenStatus defines custom function to check whether the
	// server response status is bad token.
	// If undefined, defaults to DefaultIsBadTokenStatus that just checks
	// for status 401.
	IsBadTokenStatus func(status int) bool

	// DisableSingleFlight makes every concurrent 401 run its own forced refresh.
	DisableSingleFlight bool

	// RefreshTimeout bounds a forced refresh shared by concurrent 401s.
	// If zero, defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logging function, if undefined defaults to log.Printf
	Logf func(format string, v ...any)

	// Enable debug logging.
	Debug bool
}

// DefaultRefreshTimeout is used when option RefreshTimeout is left undefined.
const DefaultRefreshTimeout = 30 * time.Second

// DefaultIsBadTokenStatus is used as default function when option IsBadTokenStatus
// is left undefined. DefaultIsBadTokenStatus just checks for status 401.
func DefaultIsBadTokenStatus(status int) bool {
	return status == http.StatusUnauthorized
}

// Client is context for invokations with bearer token.
type Client struct {
	options Options
	group   singleflight.Group
}

// New creates a client.
func New(options Options) *Client {
	if options.Issue == nil {
		panic("authclient.New: Issue is required")
	}
	if options.Store == nil {
		options.Store = token.NewStore(token.StoreOptions{})
	}
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.Logf == nil {
		options.Logf = log.Printf
	}
	if options.IsBadTokenStatus == nil {
		options.IsBadTokenStatus = DefaultIsBadTokenStatus
	}
	if options.RefreshTimeout == 0 {
		options.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Client{
		options: options,
	}
}

// Store returns the token store used by the client.
func (c *Client) Store() *token.Store {
	return c.options.Store
}

func (c *Client) errorf(format string, v ...any) {
	c.options.Logf("ERROR: "+format, v...)
}

func (c *Client) warnf(format string, v ...any) {
	c.options.Logf("WARN: "+format, v...)
}

func (c *Client) debugf(format string, v ...any) {
	if c.options.Debug {
		c.options.Logf("DEBUG: "+format, v...)
	}
}

// Do sends an HTTP request with the current token.
//
// If the server refuses the token, Do forces one token refresh and resends
// the request exactly once. The result of the second attempt is returned
// as is, even if it is another refusal.
// The request body, if any, is buffered so it can be resent.
func (c *Client) Do(req *http.Request) (*http.Response, error) {

	if err := rewindable(req); err != nil {
		return nil, err
	}

	ctx := req.Context()

	accessToken, errToken := c.options.Store.GetOrRefresh(ctx, c.refresh)
	if errToken != nil {
		return nil, errToken
	}

	resp, errResp := c.send(req, accessToken)
	if errResp != nil {
		return nil, errResp
	}

	if !c.options.IsBadTokenStatus(resp.StatusCode) {
		return resp, nil
	}

	//
	// the server refused our token: the clock did not predict it,
	// so fetch a new one bypassing the store validity check.
	//
	c.warnf("received status %d from %s %s, refreshing token and retrying",
		resp.StatusCode, req.Method, req.URL)
	discard(resp)

	newToken, errForce := c.forceRefresh(ctx)
	if errForce != nil {
		c.errorf("forced token refresh: %v", errForce)
		return nil, errForce
	}

	c.options.Metrics.RecordUnauthorizedRetry()

	return c.send(req, newToken)
}

func (c *Client) send(req *http.Request, accessToken string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+accessToken)
	return c.options.HTTPClient.Do(out)
}

// refresh is called by the store when the cached token is missing or expiring.
func (c *Client) refresh(ctx context.Context) (token.Token, error) {
	c.debugf("NO valid cached token, requesting new one")
	t, err := c.options.Issue(ctx)
	c.record(metrics.KindExpiry, t, err)
	return t, err
}

// forceRefresh retrieves new token and overwrites the store, guarded with singleflight.
//
// The shared call is detached from the first caller's cancellation and bounded
// by RefreshTimeout. Each caller still stops waiting when its own ctx is done.
func (c *Client) forceRefresh(ctx context.Context) (string, error) {

	if c.options.DisableSingleFlight {
		return c.forceRefreshRaw(ctx)
	}

	key := ""

	f := func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.options.RefreshTimeout)
		defer cancel()
		return c.forceRefreshRaw(shared)
	}

	var result singleflight.Result

	select {
	case result = <-c.group.DoChan(key, f):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if result.Err != nil {
		return "", result.Err
	}

	c.debugf("forced refresh: shared=%t", result.Shared)

	str, isStr := result.Val.(string)
	if !isStr {
		return "", fmt.Errorf("non-string result: type:%[1]T value:%[1]v", result.Val)
	}

	return str, nil
}

// forceRefreshRaw retrieves new token and overwrites the store.
// The issuer call runs under the store semaphore, so it never overlaps
// an expiry refresh.
func (c *Client) forceRefreshRaw(ctx context.Context) (string, error) {
	return c.options.Store.Refresh(ctx, func(ctx context.Context) (token.Token, error) {
		t, errIssue := c.options.Issue(ctx)
		c.record(metrics.KindForced, t, errIssue)
		return t, errIssue
	})
}

func (c *Client) record(kind string, t token.Token, err error) {
	switch {
	case err != nil:
		c.options.Metrics.RecordRefresh(kind, metrics.ResultFailure)
	case !t.IsSet():
		c.options.Metrics.RecordRefresh(kind, metrics.ResultEmpty)
	default:
		c.options.Metrics.RecordRefresh(kind, metrics.ResultSuccess)
	}
}

// rewindable makes sure the request body can be replayed through GetBody.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return nil
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
