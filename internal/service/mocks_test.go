package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// faultyStore is the memory store with switchable failures.
type faultyStore struct {
	*store.MemoryStore

	mu             sync.Mutex
	saveCartErr    error
	clearCartErr   error
	createOrderErr error
	decrementErr   map[string]error // productID -> error
	deletedOrders  []string
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		MemoryStore:  store.NewMemoryStore(),
		decrementErr: map[string]error{},
	}
}

func (f *faultyStore) SaveCart(ctx context.Context, cart *domain.Cart) error {
	f.mu.Lock()
	err := f.saveCartErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.SaveCart(ctx, cart)
}

func (f *faultyStore) ClearCart(ctx context.Context, userID string) error {
	f.mu.Lock()
	err := f.clearCartErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.ClearCart(ctx, userID)
}

func (f *faultyStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	err := f.createOrderErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.CreateOrder(ctx, order)
}

func (f *faultyStore) DeleteOrder(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deletedOrders = append(f.deletedOrders, id)
	f.mu.Unlock()
	return f.MemoryStore.DeleteOrder(ctx, id)
}

func (f *faultyStore) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	f.mu.Lock()
	err := f.decrementErr[id]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryStore.DecrementStock(ctx, id, quantity)
}

func (f *faultyStore) setProduct(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, f.UpsertProduct(context.Background(), &domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Image: "https://img.example/" + id + ".png",
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}))
}

func (f *faultyStore) stockOf(t *testing.T, id string) int {
	t.Helper()
	p, err := f.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	gens    map[string]uint64
	err     error
	deletes int
	sets    int

	// beforeSet runs outside the lock ahead of every Set
	beforeSet func(userID string)
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}, gens: map[string]uint64{}}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (m *mockCache) Generation(_ context.Context, userID string) (uint64, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.gens[userID], m.err
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart, gen uint64) error {
	if m.beforeSet != nil {
		m.beforeSet(userID)
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.sets++
	if m.gens[userID] != gen {
		return cache.ErrStale
	}
	m.carts[userID] = cart.Clone()
	return m.err
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	m.gens[userID]++
	delete(m.carts, userID)
	return m.err
}

type mockPublisher struct {
	m      sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockPublisher) Events() []domain.OrderEvent {
	m.m.Lock()
	defer m.m.Unlock()
	out := make([]domain.OrderEvent, len(m.events))
	copy(out, m.events)
	return out
}

type mockIdempotency struct {
	m       sync.Mutex
	locks   map[string]bool
	values  map[string]string
	lockErr error
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{locks: map[string]bool{}, values: map[string]string{}}
}

func (m *mockIdempotency) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.lockErr != nil {
		return false, m.lockErr
	}
	if m.locks[scope+":"+key] {
		return false, nil
	}
	m.locks[scope+":"+key] = true
	return true, nil
}

func (m *mockIdempotency) Unlock(_ context.Context, scope, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.locks, scope+":"+key)
	return nil
}

func (m *mockIdempotency) Remember(_ context.Context, scope, key, value string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.values[scope+":"+key] = value
	return nil
}

func (m *mockIdempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	v, ok := m.values[scope+":"+key]
	return v, ok, nil
}
