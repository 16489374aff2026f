// Package ratelimit provides sliding-window rate limiter implementations.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/udhos/tokenproxy/ratelimit/memorylimiter"
	"github.com/udhos/tokenproxy/ratelimit/redislimiter"
)

// Limiter decides whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New creates limiter from string.
//
// "" or "memory" means in-process limiter.
// "off" disables limiting.
// redis format: "redis:<host>:<port>:<password>:<key>"
// (example: redis:localhost:6379::tokenproxy)
func New(s string, permits int, window time.Duration) (Limiter, error) {
	if permits < 1 {
		return nil, fmt.Errorf("rate limit permits must be positive: %d", permits)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive: %v", window)
	}
	switch {
	case s == "" || s == "memory":
		return memorylimiter.New(permits, window), nil
	case s == "off":
		return Unlimited{}, nil
	case strings.HasPrefix(s, "redis:"):
		return redislimiter.New(strings.TrimPrefix(s, "redis:"), permits, window)
	}
	return nil, fmt.Errorf("unknown rate limiter: %s", s)
}

// Unlimited allows every request.
type Unlimited struct{}

// Allow always allows.
func (Unlimited) Allow(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// Close releases resources held by l, like the redis client.
// Limiters without resources are left alone.
func Close(l Limiter) error {
	if closer, ok := l.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
