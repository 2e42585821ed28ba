package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
)

const compensationTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}

// IdempotencyStore maps a client supplied key to the order it produced.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type OrderService struct {
	carts           repository.CartRepository
	orders          repository.OrderRepository
	products        repository.ProductStore
	cache           cache.CartCache
	events          EventPublisher
	idempotency     IdempotencyStore
	restockOnCancel bool
	log             *slog.Logger
}

func NewOrderService(
	carts repository.CartRepository,
	orders repository.OrderRepository,
	products repository.ProductStore,
	cartCache cache.CartCache,
	events EventPublisher,
	restockOnCancel bool) *OrderService {

	if cartCache == nil {
		cartCache = cache.NoopCache{}
	}
	return &OrderService{
		carts:           carts,
		orders:          orders,
		products:        products,
		cache:           cartCache,
		events:          events,
		restockOnCancel: restockOnCancel,
		log:             logging.New("order-service"),
	}
}

// WithIdempotency enables Idempotency-Key handling in CreateOrderIdempotent.
func (s *OrderService) WithIdempotency(store IdempotencyStore) *OrderService {
	s.idempotency = store
	return s
}

// CreateOrder turns the user's cart into a pending order. Stock of every
// line is decremented atomically per product; any failure after the first
// decrement puts the stock back before returning.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, address domain.ShippingAddress, phone string) (*domain.Order, error) {
	order, err := s.createOrder(ctx, userID, address, phone)
	if err != nil {
		metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.publish(ctx, domain.NewOrderCreatedEvent(order))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, userID string, address domain.ShippingAddress, phone string) (*domain.Order, error) {
	address = address.Normalize()
	phone = strings.TrimSpace(phone)
	missing := address.MissingFields()
	if phone == "" {
		missing = append(missing, "telefono")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidShippingInfo, strings.Join(missing, ", "))
	}

	// the cache is never trusted for checkout
	cart, err := s.carts.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	products, err := s.products.FindByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for i, line := range cart.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: line %d references product %s", ErrProductNotFound, i, line.ProductID)
		}
		if !product.Sellable() {
			return nil, insufficientStock(product.ID, 0, line.Quantity)
		}
		items = append(items, domain.OrderItem{
			ProductID:    line.ProductID,
			ProductName:  product.Name,
			ProductImage: product.Image,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Subtotal:     line.ComputeSubtotal(),
		})
	}

	if err := s.reserveStock(ctx, items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           items,
		Total:           domain.SumItems(items),
		Status:          domain.OrderStatusPending,
		ShippingAddress: address,
		Phone:           phone,
		StatusHistory:   []domain.StatusChange{{Status: domain.OrderStatusPending, At: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.restock(ctx, items)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.log.Error("clear cart after order failed, rolling back", "order_id", order.ID, "user_id", userID, "err", err)
		s.rollbackOrder(ctx, order)
		return nil, fmt.Errorf("clear cart after order %s: %w", order.ID, err)
	}
	s.invalidateCache(userID)

	s.log.Info("order created", "order_id", order.ID, "user_id", userID, "total", order.Total.String(), "lines", len(items))
	return order, nil
}

// reserveStock decrements every line in order. On the first failure the
// lines already decremented are restocked.
func (s *OrderService) reserveStock(ctx context.Context, items []domain.OrderItem) error {
	for i, item := range items {
		_, err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err == nil {
			continue
		}

		s.restock(ctx, items[:i])
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			available := 0
			if p, errFind := s.products.FindByID(ctx, item.ProductID); errFind == nil {
				available = p.Stock
			}
			return insufficientStock(item.ProductID, available, item.Quantity)
		case errors.Is(err, repository.ErrProductNotFound):
			return fmt.Errorf("%w: line %d references product %s", ErrProductNotFound, i, item.ProductID)
		default:
			return fmt.Errorf("decrement stock of %s: %w", item.ProductID, err)
		}
	}
	return nil
}

// restock returns quantities to stock. It runs even when ctx is already
// cancelled; failures are logged since there is nobody left to return them to.
func (s *OrderService) restock(ctx context.Context, items []domain.OrderItem) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for _, item := range items {
		if _, err := s.products.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.log.Error("restock failed", "product_id", item.ProductID, "quantity", item.Quantity, "err", err)
		}
	}
}

func (s *OrderService) rollbackOrder(ctx context.Context, order *domain.Order) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.orders.DeleteOrder(delCtx, order.ID); err != nil {
		s.log.Error("rollback order failed", "order_id", order.ID, "err", err)
	}
	s.restock(ctx, order.Items)
}

// CreateOrderIdempotent is CreateOrder guarded by a client supplied key.
// A retry with a key that already produced an order returns that order and
// replayed=true; a retry while the first request is still running fails
// with ErrDuplicateRequest. An empty key behaves exactly like CreateOrder.
func (s *OrderService) CreateOrderIdempotent(
	ctx context.Context,
	key, userID string,
	address domain.ShippingAddress,
	phone string) (order *domain.Order, replayed bool, err error) {

	if key == "" || s.idempotency == nil {
		order, err = s.CreateOrder(ctx, userID, address, phone)
		return order, false, err
	}

	if order, found, err := s.recall(ctx, userID, key); err != nil || found {
		return order, found, err
	}

	locked, err := s.idempotency.TryLock(ctx, userID, key)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lock: %w", err)
	}
	if !locked {
		// lost the race, the winner may already be done
		if order, found, err := s.recall(ctx, userID, key); err != nil || found {
			return order, found, err
		}
		return nil, false, ErrDuplicateRequest
	}

	order, err = s.CreateOrder(ctx, userID, address, phone)
	if err != nil {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if errUnlock := s.idempotency.Unlock(unlockCtx, userID, key); errUnlock != nil {
			s.log.Warn("idempotency unlock failed", "user_id", userID, "err", errUnlock)
		}
		return nil, false, err
	}

	if err := s.idempotency.Remember(ctx, userID, key, order.ID); err != nil {
		s.log.Warn("idempotency remember failed", "user_id", userID, "order_id", order.ID, "err", err)
	}
	return order, false, nil
}

func (s *OrderService) recall(ctx context.Context, userID, key string) (*domain.Order, bool, error) {
	orderID, found, err := s.idempotency.Recall(ctx, userID, key)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency recall: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("load order %s for replay: %w", orderID, err)
	}
	return order, true, nil
}

// ListOrders returns every order for admins and the caller's own orders
// otherwise, newest first.
func (s *OrderService) ListOrders(ctx context.Context, caller auth.Identity) ([]*domain.Order, error) {
	userID := caller.UserID
	if caller.IsAdmin() {
		userID = ""
	}
	return s.orders.ListOrders(ctx, userID)
}

func (s *OrderService) GetOrderByID(ctx context.Context, orderID string, caller auth.Identity) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	if !caller.IsAdmin() && !order.OwnedBy(caller.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

// UpdateOrderStatus applies one transition of the order workflow. The
// write only succeeds if nobody changed the status in between; the loser
// of such a race gets ErrInvalidTransition against the new status.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	current := order.Status
	if !current.CanTransitionTo(next) {
		return nil, invalidTransition(current, next)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, current, next, time.Now().UTC())
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		if latest, errGet := s.orders.GetOrderByID(ctx, orderID); errGet == nil {
			current = latest.Status
		}
		return nil, invalidTransition(current, next)
	case errors.Is(err, repository.ErrOrderNotFound):
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	case err != nil:
		return nil, err
	}

	metrics.OrderStatusTransitions.WithLabelValues(next.String()).Inc()
	s.log.Info("order status changed", "order_id", orderID, "from", current.String(), "to", next.String())

	if next == domain.OrderStatusCancelled && s.restockOnCancel {
		s.restock(ctx, updated.Items)
	}

	s.publish(ctx, domain.NewOrderStatusChangedEvent(updated, current))
	return updated, nil
}

func invalidTransition(current, next domain.OrderStatus) error {
	return fmt.Errorf("%w: cannot move from %q to %q", ErrInvalidTransition, current, next)
}

func (s *OrderService) publish(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("publish order event failed", "event_type", event.Type, "order_id", event.OrderID, "err", err)
	}
}

func (s *OrderService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", "user_id", userID, "err", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidShippingInfo):
		return "invalid_shipping_info"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "internal"
	}
}
