package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) (*domain.Cart, error)
	Products(ctx context.Context, cart *domain.Cart) (map[string]*domain.Product, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	maxBody int64
}

func NewCartHandler(carts CartService, timeout time.Duration, maxBody int64) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		maxBody: maxBody,
	}
}

// CartView is a cart with the current catalog entry of every line.
type CartView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"usuario"`
	Items     []CartLineView  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CartLineView struct {
	ProductID string          `json:"productoId"`
	Product   *domain.Product `json:"producto"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precio"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "Carrito obtenido exitosamente", func(ctx context.Context, userID string) (*domain.Cart, error) {
		return h.carts.GetOrCreateCart(ctx, userID)
	})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	h.handle(w, r, "Producto agregado al carrito", func(ctx context.Context, userID string) (*domain.Cart, error) {
		return h.carts.AddItem(ctx, userID, req.ProductID, *req.Quantity)
	})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	h.handle(w, r, "Item actualizado", func(ctx context.Context, userID string) (*domain.Cart, error) {
		return h.carts.UpdateItemQuantity(ctx, userID, productID, *req.Quantity)
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	h.handle(w, r, "Item eliminado del carrito", func(ctx context.Context, userID string) (*domain.Cart, error) {
		return h.carts.RemoveItem(ctx, userID, productID)
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "Carrito vaciado", func(ctx context.Context, userID string) (*domain.Cart, error) {
		return h.carts.ClearCart(ctx, userID)
	})
}

// handle runs op for the authenticated user and responds with the
// populated cart it returns.
func (h *CartHandler) handle(w http.ResponseWriter, r *http.Request, message string,
	op func(ctx context.Context, userID string) (*domain.Cart, error)) {

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := auth.FromContext(ctx)
	if !ok {
		respondFailure(w, r, http.StatusUnauthorized, "missing user authentication")
		return
	}

	cart, err := op(ctx, id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := h.populate(ctx, cart)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, message, view)
}

func (h *CartHandler) populate(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	products, err := h.carts.Products(ctx, cart)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     make([]CartLineView, 0, len(cart.Items)),
		Total:     cart.Total,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		view.Items = append(view.Items, CartLineView{
			ProductID: item.ProductID,
			Product:   products[item.ProductID],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return view, nil
}

func productIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		respondError(w, r, invalidf("productId is required"))
		return "", false
	}
	return productID, true
}
