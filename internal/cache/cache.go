package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// CartCache is a cache-aside store for carts. Every Delete bumps a per-user
// generation; a reader takes the generation before loading the cart from the
// repository and hands it to Set, which refuses to write once the generation
// has moved on.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Generation(ctx context.Context, userID string) (uint64, error)
	Set(ctx context.Context, userID string, cart *domain.Cart, gen uint64) error
	Delete(ctx context.Context, userID string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale is returned by Set when the entry was invalidated after gen was read.
	ErrStale = errors.New("cache entry invalidated since read")
)

// NoopCache is used when no Redis address is configured. Every Get misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Cart, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Generation(context.Context, string) (uint64, error) {
	return 0, nil
}

func (NoopCache) Set(context.Context, string, *domain.Cart, uint64) error {
	return nil
}

func (NoopCache) Delete(context.Context, string) error {
	return nil
}
