// Package redislimiter implements a sliding-window rate limiter shared through redis.
package redislimiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter holds redis client.
type Limiter struct {
	key         string
	redisClient *redis.Client
	permits     int
	window      time.Duration
	now         func() time.Time
}

// New creates a new redis limiter.
// redisString = <host>:<port>:<password>:<key>
// redisString = localhost:6379::tokenproxy
func New(redisString string, permits int, window time.Duration) (*Limiter, error) {
	fields := strings.SplitN(redisString, ":", 4)
	if len(fields) != 4 {
		return nil, fmt.Errorf("4 fields are required, but got: %d", len(fields))
	}
	host := fields[0]
	port := fields[1]
	password := fields[2]
	key := fields[3]
	l := Limiter{
		redisClient: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
			DB:       0,
		}),
		key:     key,
		permits: permits,
		window:  window,
		now:     time.Now,
	}
	return &l, nil
}

// getKey generates a unique redis key for the window of one client.
func (l *Limiter) getKey(client string) string {
	return "github.com/udhos/tokenproxy:ratelimit:" + l.key + ":" + client
}

// slidingWindow trims entries older than the window, then adds the
// request only if the window still has room.
//
// KEYS[1] window key
// ARGV[1] now in microseconds
// ARGV[2] window in microseconds
// ARGV[3] permits
// ARGV[4] unique member
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local permits = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= permits then
	return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, math.ceil(window / 1000))
return 1
`)

// Allow records one request for client and reports whether it fits the window.
func (l *Limiter) Allow(ctx context.Context, client string) (bool, error) {
	now := l.now().UnixMicro()
	result, err := slidingWindow.Run(ctx, l.redisClient,
		[]string{l.getKey(client)},
		now, l.window.Microseconds(), l.permits, uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return result == 1, nil
}

// Close releases the redis client.
func (l *Limiter) Close() error {
	return l.redisClient.Close()
}
