package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter limits requests per key in a fixed time window. It runs
// either Redis-backed for multi-instance deployments or in-process when no
// Redis address is configured.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration

	redisClient *redis.Client
	redisPrefix string

	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	slot  int64
	count int
}

// NewRedisFixedWindowLimiter creates a Redis-backed distributed limiter.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "campusai:ratelimit"
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		redisClient: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		redisPrefix: prefix,
	}, nil
}

// NewLocalFixedWindowLimiter creates an in-process limiter for single-instance
// deployments without Redis.
func NewLocalFixedWindowLimiter(limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &FixedWindowLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*localWindow),
	}, nil
}

// Allow returns true when the key is within quota.
// In Redis mode it fails closed on backend errors.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	if l.redisClient != nil {
		return l.allowRedis(key)
	}
	return l.allowLocal(key)
}

func (l *FixedWindowLimiter) allowRedis(key string) bool {
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		return true
	}
	windowSlot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.redisPrefix, key, windowSlot)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.redisClient, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return res <= int64(l.limit)
}

func (l *FixedWindowLimiter) allowLocal(key string) bool {
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		return true
	}
	slot := time.Now().UTC().UnixMilli() / windowMs

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || w.slot != slot {
		w = &localWindow{slot: slot}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.limit
}
