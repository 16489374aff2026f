// Package transport builds the pooled outbound HTTP clients shared by all requests.
package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Defaults for the connection pool.
const (
	DefaultMaxConnsPerHost = 50
	DefaultIdleConnTimeout = 5 * time.Minute
)

// Options define transport options.
type Options struct {
	// Timeout bounds each request, including reading the response body.
	Timeout time.Duration

	// ProxyURL is the optional outbound proxy.
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// 0 defaults to DefaultMaxConnsPerHost.
	MaxConnsPerHost int

	// 0 defaults to DefaultIdleConnTimeout.
	IdleConnTimeout time.Duration
}

// NewTransport creates a pooled transport.
func NewTransport(options Options) (*http.Transport, error) {
	if options.MaxConnsPerHost == 0 {
		options.MaxConnsPerHost = DefaultMaxConnsPerHost
	}
	if options.IdleConnTimeout == 0 {
		options.IdleConnTimeout = DefaultIdleConnTimeout
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxConnsPerHost = options.MaxConnsPerHost
	t.MaxIdleConnsPerHost = options.MaxConnsPerHost
	t.IdleConnTimeout = options.IdleConnTimeout

	if options.ProxyURL == "" {
		return t, nil
	}

	proxy, errParse := url.Parse(options.ProxyURL)
	if errParse != nil {
		return nil, fmt.Errorf("proxy url: %w", errParse)
	}
	if proxy.Scheme == "" || proxy.Host == "" {
		return nil, fmt.Errorf("proxy url: missing scheme or host: %s", options.ProxyURL)
	}
	if options.ProxyUsername != "" {
		proxy.User = url.UserPassword(options.ProxyUsername, options.ProxyPassword)
	}
	t.Proxy = http.ProxyURL(proxy)

	return t, nil
}

// New creates an HTTP client over a pooled transport.
func New(options Options) (*http.Client, error) {
	t, err := NewTransport(options)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: t,
		Timeout:   options.Timeout,
	}, nil
}
