package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, 0), mr
}

func testCart(userID string) *domain.Cart {
	cart := domain.NewCart(userID, time.Now())
	cart.ID = "cart-1"
	cart.Items = []domain.CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}
	cart.Recalculate()
	return cart
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := "user123"

	raw, err := json.Marshal(entry{Version: entryVersion, Cart: testCart(userID)})
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(raw)))

	result, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "p1", result.Items[0].ProductID)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("24.98")))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user123"

	raw, err := json.Marshal(entry{Version: entryVersion, Cart: testCart(userID)})
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(raw[0:10])))

	_, cacheError := cache.Get(context.Background(), userID)
	require.ErrorContains(t, cacheError, "decode cached cart")
	assert.NotErrorIs(t, cacheError, ErrCacheMiss)
}

func TestGet_OtherVersionIsMiss(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user123"

	// a bare cart, as written before entries were versioned
	raw, err := json.Marshal(testCart(userID))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(raw)))

	_, err = cache.Get(context.Background(), userID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	raw, err = json.Marshal(entry{Version: entryVersion + 1, Cart: testCart(userID)})
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(raw)))

	_, err = cache.Get(context.Background(), userID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "user123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_RoundTrip(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()
	userID := "user456"

	require.NoError(t, cache.Set(ctx, userID, testCart(userID), 0))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "cart-1", got.ID)
	assert.True(t, got.Items[0].Subtotal.Equal(decimal.RequireFromString("19.98")))
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user789"

	require.NoError(t, cache.Set(context.Background(), userID, domain.NewCart(userID, time.Now()), 0))

	ttl := mr.TTL(cacheKey(userID))
	assert.True(t, ttl >= DefaultTTL, "TTL should be at least base TTL")
	assert.True(t, ttl <= DefaultTTL+maxJitter, "TTL should be base + max jitter")
}

func TestSet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	err := cache.Set(context.Background(), "user1", domain.NewCart("user1", time.Now()), 0)
	require.ErrorContains(t, err, "redis set cart")
}

func TestDelete_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user999"

	require.NoError(t, mr.Set(cacheKey(userID), "{}"))
	assert.True(t, mr.Exists(cacheKey(userID)))

	require.NoError(t, cache.Delete(context.Background(), userID))
	assert.False(t, mr.Exists(cacheKey(userID)))
}

func TestDelete_BumpsGeneration(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := "user999"

	gen, err := cache.Generation(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, cache.Delete(ctx, userID))
	require.NoError(t, cache.Delete(ctx, userID))

	gen, err = cache.Generation(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	assert.True(t, mr.TTL(genKey(userID)) > 0)
}

// A reader that loaded the cart before an invalidation must not put its
// copy back into the cache.
func TestSet_StaleGenerationIsRejected(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := "user321"

	gen, err := cache.Generation(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, userID))

	err = cache.Set(ctx, userID, testCart(userID), gen)
	assert.ErrorIs(t, err, ErrStale)
	assert.False(t, mr.Exists(cacheKey(userID)))

	fresh, err := cache.Generation(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, userID, testCart(userID), fresh))
	assert.True(t, mr.Exists(cacheKey(userID)))
}

func TestDelete_NonExistentKey(t *testing.T) {
	cache, _ := setupTestRedis(t)

	// Deleting non-existent key should not error
	assert.NoError(t, cache.Delete(context.Background(), "nonexistent"))
}

func TestNoopCache(t *testing.T) {
	var c CartCache = NoopCache{}
	_, err := c.Get(context.Background(), "u")
	assert.ErrorIs(t, err, ErrCacheMiss)
	gen, err := c.Generation(context.Background(), "u")
	assert.NoError(t, err)
	assert.Zero(t, gen)
	assert.NoError(t, c.Set(context.Background(), "u", nil, gen))
	assert.NoError(t, c.Delete(context.Background(), "u"))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:test123", cacheKey("test123"))
}
