package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 15 * time.Minute
	maxJitter  = 5 * time.Minute

	keyPrefix = "cart:"
	genPrefix = "cartgen:"

	// generation counters outlive any cart entry
	generationTTL = 24 * time.Hour

	// bump when the cached cart shape changes; older entries read as misses
	entryVersion = 1
)

type entry struct {
	Version int          `json:"v"`
	Cart    *domain.Cart `json:"cart"`
}

// RedisCache keeps carts as JSON under cart:<userID>. Entries expire after
// the base TTL plus a random jitter so carts cached together do not expire
// together.
type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewRedisCache returns a cart cache on client. A zero baseTTL means DefaultTTL.
func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = DefaultTTL
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	raw, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get cart %s: %w", userID, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cached cart %s: %w", userID, err)
	}
	if e.Version != entryVersion || e.Cart == nil {
		return nil, ErrCacheMiss
	}
	if e.Cart.Items == nil {
		e.Cart.Items = []domain.CartItem{}
	}
	return e.Cart, nil
}

func (r *RedisCache) Generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := r.client.Get(ctx, genKey(userID)).Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("redis get cart generation %s: %w", userID, err)
	}
	return gen, nil
}

// Set writes cart only while the generation of userID is still gen. The
// generation key is watched so a Delete racing with the write aborts it.
func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart, gen uint64) error {
	raw, err := json.Marshal(entry{Version: entryVersion, Cart: cart})
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", userID, err)
	}

	gk := genKey(userID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, gk).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(userID), raw, r.ttl())
			return nil
		})
		return err
	}, gk)
	switch {
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	case err != nil:
		return fmt.Errorf("redis set cart %s: %w", userID, err)
	}
	return nil
}

// Delete drops the entry and bumps the generation in one transaction.
func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	gk := genKey(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete cart %s: %w", userID, err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	return r.baseTTL + rand.N(maxJitter)
}

func cacheKey(userID string) string {
	return keyPrefix + userID
}

func genKey(userID string) string {
	return genPrefix + userID
}
