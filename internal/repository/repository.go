package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStatusConflict    = errors.New("order status was changed concurrently")
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// GetOrCreateCart returns the user's cart, inserting an empty one if none exists.
	GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SaveCart replaces the user's cart document. Last writer wins.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	// ClearCart empties the cart document without deleting it.
	ClearCart(ctx context.Context, userID string) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	// ListOrders returns orders newest first. An empty userID lists every order.
	ListOrders(ctx context.Context, userID string) ([]*domain.Order, error)
	// UpdateStatus moves the order from one status to another only if it is
	// still in from. ErrStatusConflict is returned otherwise.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error)
	// DeleteOrder exists only to undo a half-finished checkout.
	DeleteOrder(ctx context.Context, id string) error
}

type ProductStore interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	// FindByIDs returns the products that exist, keyed by id.
	FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	// DecrementStock subtracts quantity only if the current stock covers it,
	// as a single atomic step. Returns ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
	IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product *domain.Product) error
}
