package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupTestDB(t *testing.T) *mongo.Database {
	db := setupEmptyDB(t)
	require.NoError(t, RunMigrations(db, "./migrations"))
	return db
}

// setupEmptyDB returns a fresh database without migrations applied.
func setupEmptyDB(t *testing.T) *mongo.Database {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").WithStartupTimeout(time.Minute),
		),
	)
	testcontainers.CleanupContainer(t, mongoContainer)
	require.NoError(t, err)

	// Get connection string
	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })
	return db
}

func seedProduct(t *testing.T, store ProductStore, id string, price string, stock int) {
	t.Helper()
	err := store.UpsertProduct(context.Background(), &domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
		Image: "https://img.example/" + id + ".png",
		Stock: stock,
		State: domain.ProductAvailable,
	})
	require.NoError(t, err)
}

func TestMongoRepositories(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	carts := NewMongoCartRepository(db)
	orders := NewMongoOrderRepository(db)
	products := NewMongoProductStore(db)

	t.Run("GetCart_NotFound", func(t *testing.T) {
		cart, err := carts.GetCart(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrCartNotFound)
		assert.Nil(t, cart)
	})

	t.Run("GetOrCreateCart_CreatesOnce", func(t *testing.T) {
		first, err := carts.GetOrCreateCart(ctx, "user-create")
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.Empty(t, first.Items)
		assert.True(t, first.Total.IsZero())

		second, err := carts.GetOrCreateCart(ctx, "user-create")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("GetOrCreateCart_Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]string, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				cart, err := carts.GetOrCreateCart(ctx, "user-race")
				if assert.NoError(t, err) {
					ids[i] = cart.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("SaveCart_And_ClearCart", func(t *testing.T) {
		cart, err := carts.GetOrCreateCart(ctx, "user-save")
		require.NoError(t, err)

		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: "p1",
			Quantity:  3,
			UnitPrice: decimal.RequireFromString("12.50"),
			AddedAt:   time.Now(),
		})
		cart.Recalculate()
		require.NoError(t, carts.SaveCart(ctx, cart))

		stored, err := carts.GetCart(ctx, "user-save")
		require.NoError(t, err)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, 3, stored.Items[0].Quantity)
		assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.5")))
		assert.True(t, stored.Total.Equal(decimal.RequireFromString("37.5")), "total %s", stored.Total)

		require.NoError(t, carts.ClearCart(ctx, "user-save"))
		cleared, err := carts.GetCart(ctx, "user-save")
		require.NoError(t, err)
		assert.Equal(t, cart.ID, cleared.ID)
		assert.Empty(t, cleared.Items)
		assert.True(t, cleared.Total.IsZero())
	})

	t.Run("ClearCart_NotFound", func(t *testing.T) {
		assert.ErrorIs(t, carts.ClearCart(ctx, "nobody"), ErrCartNotFound)
	})

	t.Run("DecrementStock_GuardAndState", func(t *testing.T) {
		seedProduct(t, products, "dec-1", "100", 3)

		p, err := products.DecrementStock(ctx, "dec-1", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Stock)
		assert.Equal(t, domain.ProductAvailable, p.State)

		_, err = products.DecrementStock(ctx, "dec-1", 2)
		assert.ErrorIs(t, err, ErrInsufficientStock)

		p, err = products.DecrementStock(ctx, "dec-1", 1)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Stock)
		assert.Equal(t, domain.ProductOutOfStock, p.State)

		p, err = products.IncrementStock(ctx, "dec-1", 4)
		require.NoError(t, err)
		assert.Equal(t, 4, p.Stock)
		assert.Equal(t, domain.ProductAvailable, p.State)

		_, err = products.DecrementStock(ctx, "missing", 1)
		assert.ErrorIs(t, err, ErrProductNotFound)
		_, err = products.IncrementStock(ctx, "missing", 1)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("DecrementStock_ConcurrentNeverOversells", func(t *testing.T) {
		seedProduct(t, products, "dec-race", "5", 10)

		var wg sync.WaitGroup
		var sold atomic.Int32
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := products.DecrementStock(ctx, "dec-race", 1); err == nil {
					sold.Add(1)
				}
			}()
		}
		wg.Wait()

		p, err := products.FindByID(ctx, "dec-race")
		require.NoError(t, err)
		assert.Equal(t, int32(10), sold.Load())
		assert.Equal(t, 0, p.Stock)
		assert.Equal(t, domain.ProductOutOfStock, p.State)
	})

	t.Run("FindByIDs", func(t *testing.T) {
		seedProduct(t, products, "ids-1", "1", 1)
		seedProduct(t, products, "ids-2", "2", 2)

		found, err := products.FindByIDs(ctx, []string{"ids-1", "ids-2", "ids-missing"})
		require.NoError(t, err)
		assert.Len(t, found, 2)
		assert.True(t, found["ids-2"].Price.Equal(decimal.NewFromInt(2)))
	})

	t.Run("Orders_CreateListUpdate", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Millisecond)
		mk := func(id, user string, offset time.Duration) *domain.Order {
			at := base.Add(offset)
			return &domain.Order{
				ID:     id,
				UserID: user,
				Items: []domain.OrderItem{{
					ProductID: "p1", ProductName: "P1", Quantity: 2,
					UnitPrice: decimal.NewFromInt(100), Subtotal: decimal.NewFromInt(200),
				}},
				Total:           decimal.NewFromInt(200),
				Status:          domain.OrderStatusPending,
				ShippingAddress: domain.ShippingAddress{Street: "s", City: "c", PostalCode: "1", Country: "PE"},
				Phone:           "555",
				StatusHistory:   []domain.StatusChange{{Status: domain.OrderStatusPending, At: at}},
				CreatedAt:       at,
				UpdatedAt:       at,
			}
		}
		require.NoError(t, orders.CreateOrder(ctx, mk("o-1", "alice", 0)))
		require.NoError(t, orders.CreateOrder(ctx, mk("o-2", "bob", time.Second)))
		require.NoError(t, orders.CreateOrder(ctx, mk("o-3", "alice", 2*time.Second)))

		all, err := orders.ListOrders(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "o-3", all[0].ID)
		assert.Equal(t, "o-1", all[2].ID)

		mine, err := orders.ListOrders(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "o-3", mine[0].ID)

		got, err := orders.GetOrderByID(ctx, "o-1")
		require.NoError(t, err)
		assert.True(t, got.Total.Equal(decimal.NewFromInt(200)))
		assert.Equal(t, "s", got.ShippingAddress.Street)

		updated, err := orders.UpdateStatus(ctx, "o-1", domain.OrderStatusPending, domain.OrderStatusInProduction, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusInProduction, updated.Status)
		assert.Len(t, updated.StatusHistory, 2)

		_, err = orders.UpdateStatus(ctx, "o-1", domain.OrderStatusPending, domain.OrderStatusCancelled, time.Now().UTC())
		assert.ErrorIs(t, err, ErrStatusConflict)

		_, err = orders.UpdateStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusCancelled, time.Now().UTC())
		assert.ErrorIs(t, err, ErrOrderNotFound)

		require.NoError(t, orders.DeleteOrder(ctx, "o-2"))
		_, err = orders.GetOrderByID(ctx, "o-2")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestVerifyIndexes(t *testing.T) {
	db := setupEmptyDB(t)
	ctx := context.Background()

	assert.ErrorIs(t, VerifyIndexes(ctx, db), ErrMissingIndex)

	// collection exists, index does not
	_, err := NewMongoCartRepository(db).GetOrCreateCart(ctx, "u1")
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyIndexes(ctx, db), ErrMissingIndex)

	require.NoError(t, RunMigrations(db, "./migrations"))
	assert.NoError(t, VerifyIndexes(ctx, db))
}

func TestContextCancellation(t *testing.T) {
	db := setupTestDB(t)
	carts := NewMongoCartRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond) // Ensure context is cancelled

	_, err := carts.GetCart(ctx, "user123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
