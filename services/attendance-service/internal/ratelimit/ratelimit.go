package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript counts one hit and gives the counter a ttl whenever it has none, in a
// single round trip so a counter can never be left without expiry.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Limiter is a fixed-window request counter stored in redis.
// A nil Limiter, or one without a client, allows every request.
type Limiter struct {
	rdb    redis.Scripter
	scope  string
	limit  int64
	window time.Duration
}

// NewLimiter creates a Limiter that allows limit hits per key in every window.
// scope namespaces the keys so several limiters can share one redis.
func NewLimiter(rdb redis.Scripter, scope string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		scope:  scope,
		limit:  int64(limit),
		window: window,
	}
}

// Scope returns the key namespace, also used as the metrics label.
func (l *Limiter) Scope() string {
	if l == nil {
		return ""
	}
	return l.scope
}

// Allow counts one hit for key in the current window and reports whether it is within the limit.
// When redis fails the request is allowed and the error returned.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}

	count, err := hitScript.Run(ctx, l.rdb, []string{l.key(key)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return true, err
	}

	return count <= l.limit, nil
}

func (l *Limiter) key(key string) string {
	return fmt.Sprintf("rate_limit:%s:%s", l.scope, key)
}
