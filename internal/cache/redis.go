package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	baseTTL    = 15 * time.Minute
	maxJitter  = 5 * time.Minute
	versionTTL = 24 * time.Hour
)

// setIfVersion stores ARGV[2] under KEYS[1] only while KEYS[2] still holds
// ARGV[1]. A missing version key reads as 0.
var setIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

// RedisCache keeps serialized carts under "cart:<owner key>" and their
// versions under "cart:version:<owner key>". Entries expire after the base TTL
// plus up to maxJitter so that carts written together do not all expire
// together.
type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	cart.Owner = owner

	return &cart, nil
}

func (r *RedisCache) Version(ctx context.Context, owner domain.Owner) (int64, error) {
	v, err := r.client.Get(ctx, versionKey(owner)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

// Set returns ErrStaleVersion without storing anything when the owner's cart
// was invalidated after version was read.
func (r *RedisCache) Set(ctx context.Context, owner domain.Owner, cart *domain.Cart, version int64) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int64N(int64(maxJitter)))
	stored, err := setIfVersion.Run(ctx, r.client,
		[]string{cacheKey(owner), versionKey(owner)},
		strconv.FormatInt(version, 10), data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Delete drops the cached cart and advances the owner's version in one
// transaction.
func (r *RedisCache) Delete(ctx context.Context, owner domain.Owner) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(owner))
		pipe.Expire(ctx, versionKey(owner), versionTTL)
		pipe.Del(ctx, cacheKey(owner))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(owner domain.Owner) string {
	return fmt.Sprintf("cart:%s", owner.Key())
}

func versionKey(owner domain.Owner) string {
	return fmt.Sprintf("cart:version:%s", owner.Key())
}
