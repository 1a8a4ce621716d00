package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"civicpulse/internal/config"
	"civicpulse/pkg/logger"
)

// ErrLockNotAcquired is returned by WaitLock when the context ends before the lock frees up
var ErrLockNotAcquired = errors.New("lock not acquired")

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return NewRedisFromClient(client, cfg.KeyPrefix, log), nil
}

// NewRedisFromClient wraps an existing client
func NewRedisFromClient(client *redis.Client, keyPrefix string, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

// Client returns the underlying Redis client
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.key(key)).Result()
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Set stores a value in cache with optional TTL
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete removes a key from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// SetNX sets a value only if the key does not exist (for distributed locks)
func (c *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), value, ttl).Result()
}

// Pipeline returns a Redis pipeline for batch operations
func (c *RedisCache) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}

// Cache key constants for CivicPulse
const (
	// Inbound message idempotency keys
	KeyMessageSeenPrefix = "dedup:message:"

	// Rate limiting keys
	KeyRateLimitPrefix = "rate_limit:"

	// Lock keys
	KeySenderLockPrefix = "lock:sender:"
	KeyLeaderLockPrefix = "lock:leader:"
)

// MarkMessageSeen records an inbound message id. It returns true the first
// time an id is seen within ttl and false for redeliveries.
func (c *RedisCache) MarkMessageSeen(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, KeyMessageSeenPrefix+messageID, "1", ttl)
}

// releaseScript deletes a lock only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock attempts to take a lock once. On success the returned token must
// be passed to ReleaseLock.
func (c *RedisCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, lockKey, token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// WaitLock polls AcquireLock until it succeeds or ctx ends
func (c *RedisCache) WaitLock(ctx context.Context, lockKey string, ttl, poll time.Duration) (string, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		token, ok, err := c.AcquireLock(ctx, lockKey, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, lockKey, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReleaseLock releases a lock if token still owns it. A lock that expired and
// was taken by someone else is left alone.
func (c *RedisCache) ReleaseLock(ctx context.Context, lockKey, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.client, []string{c.key(lockKey)}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SenderLockKey is the lock key serializing work for one sender
func SenderLockKey(sender string) string {
	return KeySenderLockPrefix + sender
}

// LeaderLockKey is the lock key electing a single runner for a background job
func LeaderLockKey(job string) string {
	return KeyLeaderLockPrefix + job
}

// CheckRateLimit checks and increments the rate limit counter
// Returns (allowed, remaining, resetTime, error)
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	windowKey := fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, now.Unix()/int64(window.Seconds()))

	pipe := c.Pipeline()
	incr := pipe.Incr(ctx, c.key(windowKey))
	pipe.Expire(ctx, c.key(windowKey), window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := now.Add(window)

	return count <= limit, remaining, resetTime, nil
}
