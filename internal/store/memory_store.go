package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
)

var (
	_ repository.CartRepository  = (*MemoryStore)(nil)
	_ repository.OrderRepository = (*MemoryStore)(nil)
	_ repository.ProductStore    = (*MemoryStore)(nil)
)

// MemoryStore keeps carts, orders and products in process memory.
// It backs the memory storage driver and the service tests.
// Every value handed out is a copy, so callers can't mutate stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	carts    map[string]*domain.Cart    // userID -> cart
	orders   map[string]*domain.Order   // orderID -> order
	products map[string]*domain.Product // productID -> product
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:    make(map[string]*domain.Cart),
		orders:   make(map[string]*domain.Order),
		products: make(map[string]*domain.Product),
	}
}

func (s *MemoryStore) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.carts[userID]
	if !exists {
		return nil, repository.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (s *MemoryStore) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, exists := s.carts[userID]
	if !exists {
		cart = domain.NewCart(userID, time.Now().UTC())
		cart.ID = uuid.NewString()
		s.carts[userID] = cart
	}
	return cart.Clone(), nil
}

func (s *MemoryStore) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := cart.Clone()
	if existing, ok := s.carts[cart.UserID]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	}
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.carts[cart.UserID] = stored
	cart.ID, cart.CreatedAt, cart.UpdatedAt = stored.ID, stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) ClearCart(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, exists := s.carts[userID]
	if !exists {
		return repository.ErrCartNotFound
	}
	cart.Clear()
	cart.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *MemoryStore) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if userID != "" && order.UserID != userID {
			continue
		}
		result = append(result, order.Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	if order.Status != from {
		return nil, repository.ErrStatusConflict
	}

	order.Status = to
	order.UpdatedAt = at
	order.StatusHistory = append(order.StatusHistory, domain.StatusChange{Status: to, At: at})
	return order.Clone(), nil
}

func (s *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[id]; !exists {
		return repository.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, repository.ErrProductNotFound
	}
	p := *product
	return &p, nil
}

func (s *MemoryStore) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := s.products[id]; exists {
			p := *product
			result[id] = &p
		}
	}
	return result, nil
}

// DecrementStock checks and subtracts under the write lock, so two
// decrements of the same product can never both pass the check.
func (s *MemoryStore) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, repository.ErrProductNotFound
	}
	if product.Stock < quantity {
		return nil, repository.ErrInsufficientStock
	}

	product.ApplyStock(product.Stock - quantity)
	product.UpdatedAt = time.Now().UTC()
	p := *product
	return &p, nil
}

func (s *MemoryStore) IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, repository.ErrProductNotFound
	}

	product.ApplyStock(product.Stock + quantity)
	product.UpdatedAt = time.Now().UTC()
	p := *product
	return &p, nil
}

func (s *MemoryStore) UpsertProduct(ctx context.Context, product *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	product.UpdatedAt = time.Now().UTC()
	if product.State == "" {
		product.State = domain.ProductAvailable
	}
	product.ApplyStock(product.Stock)

	p := *product
	s.products[product.ID] = &p
	return nil
}
