package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo     repository.CartRepository
	products repository.ProductStore
	cache    cache.CartCache
	sfg      singleflight.Group // Prevents cache stampede
	log      *slog.Logger
}

func NewCartService(repo repository.CartRepository, products repository.ProductStore, cartCache cache.CartCache) *CartService {
	if cartCache == nil {
		cartCache = cache.NoopCache{}
	}
	return &CartService{
		repo:     repo,
		products: products,
		cache:    cartCache,
		log:      logging.New("cart-service"),
	}
}

// GetOrCreateCart is the read path: it serves from the cache when it can
// and creates the cart on first access.
func (s *CartService) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", "user_id", userID, "err", err) // log cache error but continue
		}

		// the generation is taken before the repository read so a mutation
		// landing in between makes the Set below a no-op
		gen, genErr := s.cache.Generation(ctx, userID)
		if genErr != nil {
			s.log.Warn("cache generation error", "user_id", userID, "err", genErr)
		}

		cart, err = s.repo.GetOrCreateCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		if genErr != nil {
			return cart, nil
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		switch errSet := s.cache.Set(setCtx, userID, cart, gen); {
		case errors.Is(errSet, cache.ErrStale):
			s.log.Debug("cart changed while loading, not cached", "user_id", userID)
		case errSet != nil:
			s.log.Warn("cache set error", "user_id", userID, "err", errSet)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the slice
	return v.(*domain.Cart).Clone(), nil
}

// AddItem puts quantity units of the product in the cart. An existing line
// grows by quantity and keeps its unit price; a new line takes the current
// product price.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.findProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx, exists := cart.Find(productID)
	requested := quantity
	if exists {
		requested += cart.Items[idx].Quantity
	}
	if err := checkStock(product, requested); err != nil {
		return nil, err
	}

	if exists {
		cart.Items[idx].Quantity = requested
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: product.Price,
			AddedAt:   time.Now().UTC(),
		})
	}

	return s.save(ctx, cart)
}

// UpdateItemQuantity sets the quantity of an existing line. A quantity of
// zero or less removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	cart, err := s.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx, exists := cart.Find(productID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, productID)
	}

	product, err := s.findProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := checkStock(product, quantity); err != nil {
		return nil, err
	}

	cart.Items[idx].Quantity = quantity
	return s.save(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, err := s.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx, exists := cart.Find(productID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, productID)
	}

	cart.Remove(idx)
	return s.save(ctx, cart)
}

// ClearCart removes every line. The cart document itself is kept.
func (s *CartService) ClearCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ClearCart(ctx, userID); err != nil {
		s.log.Error("repo clear cart error", "user_id", userID, "err", err)
		return nil, err
	}

	s.invalidateCache(userID)
	cart.Clear()
	return cart, nil
}

// Total is the sum of the line subtotals.
func (s *CartService) Total(cart *domain.Cart) decimal.Decimal {
	return cart.ComputeTotal()
}

// Products loads the current catalog data for every line of the cart.
// Lines whose product has vanished are simply absent from the map.
func (s *CartService) Products(ctx context.Context, cart *domain.Cart) (map[string]*domain.Product, error) {
	return s.products.FindByIDs(ctx, cart.ProductIDs())
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	cart.Recalculate()
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		s.log.Error("repo save cart error", "user_id", cart.UserID, "err", err)
		return nil, err
	}

	s.invalidateCache(cart.UserID)
	return cart, nil
}

func (s *CartService) findProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func checkStock(product *domain.Product, requested int) error {
	available := product.Stock
	if !product.Sellable() {
		available = 0
	}
	if requested > available {
		return insufficientStock(product.ID, available, requested)
	}
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", "user_id", userID, "err", err)
	}
}
