package identity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// Cache stores verified identities. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*ExternalIdentity, bool, error)
	Set(ctx context.Context, key string, ident *ExternalIdentity, ttl time.Duration) error
}

// CachingVerifier serves repeated credentials from a Cache and only asks next
// on a miss. Failed verifications are never cached.
type CachingVerifier struct {
	next  Verifier
	cache Cache
	ttl   time.Duration
}

func NewCachingVerifier(next Verifier, cache Cache, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{next: next, cache: cache, ttl: ttl}
}

func (v *CachingVerifier) Verify(ctx context.Context, credential string) (*ExternalIdentity, error) {
	key := cacheKey(credential)

	ident, ok, err := v.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("CachingVerifier.Verify: cache read failed, verifying remotely: %v", err)
	} else if ok {
		return ident, nil
	}

	ident, err = v.next.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	if err := v.cache.Set(ctx, key, ident, v.ttl); err != nil {
		log.Warnf("CachingVerifier.Verify: cache write failed: %v", err)
	}
	return ident, nil
}

// cacheKey never stores the credential itself.
func cacheKey(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return "identity:" + hex.EncodeToString(sum[:])
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*ExternalIdentity, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var ident ExternalIdentity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, false, fmt.Errorf("decode cached identity: %w", err)
	}
	return &ident, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ident *ExternalIdentity, ttl time.Duration) error {
	raw, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}
