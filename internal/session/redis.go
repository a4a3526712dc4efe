// Package session caches session lookups in redis.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/jtaw5649/barforge-registry/internal/errs"
)

const keyPrefix = "session:"

// RedisCache maps a session token hash to its user and expiry.
// It implements service.SessionCache.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache caches entries for at most ttl.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, now: time.Now}
}

// Dial connects and pings, as done once at startup.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

func key(hash []byte) string { return keyPrefix + hex.EncodeToString(hash) }

// Get returns errs.ErrNotFound on a miss.
func (c *RedisCache) Get(ctx context.Context, hash []byte) (uuid.UUID, time.Time, error) {
	val, err := c.client.Get(ctx, key(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, time.Time{}, errs.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	return decode(val)
}

// Set stores the entry until the earlier of the cache TTL and the session expiry.
func (c *RedisCache) Set(ctx context.Context, hash []byte, userID uuid.UUID, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	if c.ttl > 0 && c.ttl < ttl {
		ttl = c.ttl
	}
	return c.client.Set(ctx, key(hash), encode(userID, expiresAt), ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, hash []byte) error {
	return c.client.Del(ctx, key(hash)).Err()
}

func encode(userID uuid.UUID, expiresAt time.Time) string {
	return userID.String() + "|" + strconv.FormatInt(expiresAt.UnixNano(), 10)
}

func decode(val string) (uuid.UUID, time.Time, error) {
	idPart, expPart, ok := strings.Cut(val, "|")
	if !ok {
		return uuid.Nil, time.Time{}, fmt.Errorf("session cache: malformed entry")
	}
	id, err := uuid.FromString(idPart)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("session cache: %w", err)
	}
	ns, err := strconv.ParseInt(expPart, 10, 64)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("session cache: %w", err)
	}
	return id, time.Unix(0, ns).UTC(), nil
}
