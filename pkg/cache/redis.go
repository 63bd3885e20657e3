package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// genKeyPrefix deliberately does not share the entry key prefix so that
// entry-key globs never sweep up generation counters.
const genKeyPrefix = "perm-gen:"

// setIfCurrentGen writes the entry only while the pair's generation
// still matches the one the populate observed at miss time.
var setIfCurrentGen = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[2]) or '0')
if cur == tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

// RedisCache is the shared L2 tier. Generations live in Redis alongside
// the entries, so invalidation ordering holds across processes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed cache from a connection URL and
// verifies connectivity.
func NewRedisCache(redisURL, password string, db int) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db >= 0 {
		opts.DB = db
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client, mainly for tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client exposes the underlying connection so health checks and rate
// limiters can share it.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func genKey(entryKey string) string {
	return genKeyPrefix + strings.TrimPrefix(entryKey, keyPrefix+":")
}

// Get returns the live entry for the pair or ErrCacheMiss with the
// pair's current generation.
func (c *RedisCache) Get(ctx context.Context, userID int64, tenantID *int64) (*Entry, Generation, error) {
	key := Key(userID, tenantID)

	pipe := c.client.Pipeline()
	entryCmd := pipe.Get(ctx, key)
	genCmd := pipe.Get(ctx, genKey(key))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, 0, fmt.Errorf("redis get failed: %w", err)
	}

	var gen Generation
	if raw, err := genCmd.Uint64(); err == nil {
		gen = Generation(raw)
	}

	data, err := entryCmd.Result()
	if err == redis.Nil {
		return nil, gen, ErrCacheMiss
	} else if err != nil {
		return nil, gen, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		// Corrupt payload: drop it and report a miss.
		c.client.Del(ctx, key)
		return nil, gen, ErrCacheMiss
	}
	if entry.Expired(time.Now()) {
		return nil, gen, ErrCacheMiss
	}

	return &entry, gen, nil
}

// Set stores the entry with a TTL derived from its expiry, unless the
// pair has been invalidated since gen was observed.
func (c *RedisCache) Set(ctx context.Context, entry *Entry, gen Generation) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	key := Key(entry.UserID, entry.TenantID)
	err = setIfCurrentGen.Run(ctx, c.client,
		[]string{key, genKey(key)},
		uint64(gen), string(data), ttl.Milliseconds(),
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate bumps the pair's generation, then drops its entry. The
// generation bump comes first so a concurrent populate can never land
// between the delete and the bump.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64, tenantID *int64) error {
	key := Key(userID, tenantID)

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, genKey(key))
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

// InvalidatePattern scans for entry keys matching the glob and drops
// each, bumping its generation.
func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		pipe := c.client.TxPipeline()
		pipe.Incr(ctx, genKey(key))
		pipe.Del(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to invalidate key %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
