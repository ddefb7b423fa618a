package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

// Nil is returned by Get when a key is absent.
const Nil = redis.Nil

const namespace = "sweetshop"

var errNotInitialized = errors.New("redis client not initialized")

// windowScript increments a counter and starts its window on the first hit.
// Returns {count, pttl}.
const windowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}`

// unlockScript deletes a lock only while the caller still owns it.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`

type backend interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client is the shop's view of Redis: replay records, rate windows and job locks.
type Client struct {
	rdb    backend
	closer func() error
}

// Quota describes the state of a rate window after one hit.
type Quota struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// Key joins non-empty parts under the shop namespace.
func Key(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, namespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

// IdempotencyKey namespaces a replay record.
func IdempotencyKey(scope, id string) string { return Key("idempotency", scope, id) }

// RateLimitKey namespaces a rate window counter.
func RateLimitKey(scope string) string { return Key("rate_limit", scope) }

// LockKey namespaces a job lock.
func LockKey(name string) string { return Key("lock", name) }

// New dials Redis from config and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{rdb: rdb, closer: rdb.Close}, nil
}

func buildOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	// URL settings win; config fills the gaps.
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	setIfZero(&opts.PoolSize, cfg.PoolSize)
	setIfZero(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfZero(&opts.DialTimeout, cfg.DialTimeout)
	setIfZero(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfZero[T int | time.Duration](dst *T, v T) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.rdb == nil {
		return "", errNotInitialized
	}
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, errNotInitialized
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// Allow records one hit against scope's fixed window and reports whether it fits under limit.
// The window starts at the first hit and the counter and expiry are set atomically.
func (c *Client) Allow(ctx context.Context, scope string, limit int64, window time.Duration) (Quota, error) {
	if c == nil || c.rdb == nil {
		return Quota{}, errNotInitialized
	}
	if window <= 0 {
		return Quota{}, fmt.Errorf("rate window for %q must be positive", scope)
	}
	res, err := c.rdb.Eval(ctx, windowScript, []string{RateLimitKey(scope)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Quota{}, fmt.Errorf("rate window %q: %w", scope, err)
	}
	if len(res) != 2 {
		return Quota{}, fmt.Errorf("rate window %q: unexpected reply %v", scope, res)
	}
	q := Quota{Count: res[0], Limit: limit, Allowed: res[0] <= limit}
	if !q.Allowed && res[1] > 0 {
		q.RetryAfter = time.Duration(res[1]) * time.Millisecond
	}
	return q, nil
}

// TryLock takes the named lock for owner if nobody holds it.
func (c *Client) TryLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, LockKey(name), owner, ttl)
}

// Unlock releases the named lock if owner still holds it and reports whether it did.
func (c *Client) Unlock(ctx context.Context, name, owner string) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, errNotInitialized
	}
	n, err := c.rdb.Eval(ctx, unlockScript, []string{LockKey(name)}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("unlock %q: %w", name, err)
	}
	return n == 1, nil
}
