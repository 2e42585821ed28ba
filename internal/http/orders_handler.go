package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type OrderService interface {
	CreateOrderIdempotent(ctx context.Context, key, userID string, address domain.ShippingAddress, phone string) (*domain.Order, bool, error)
	ListOrders(ctx context.Context, caller auth.Identity) ([]*domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string, caller auth.Identity) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	maxBody int64
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, maxBody int64) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		maxBody: maxBody,
	}
}

func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := auth.FromContext(ctx)
	if !ok {
		respondFailure(w, r, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req CreateOrderRequestDTO
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	order, replayed, err := h.orders.CreateOrderIdempotent(ctx, key, id.UserID, req.Address(), req.Phone)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if replayed {
		respondJSON(w, r, http.StatusOK, "Pedido ya registrado", order)
		return
	}
	respondJSON(w, r, http.StatusCreated, "Pedido creado exitosamente", order)
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := auth.FromContext(ctx)
	if !ok {
		respondFailure(w, r, http.StatusUnauthorized, "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrders(ctx, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, "Pedidos obtenidos exitosamente", orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := auth.FromContext(ctx)
	if !ok {
		respondFailure(w, r, http.StatusUnauthorized, "missing user authentication")
		return
	}

	order, err := h.orders.GetOrderByID(ctx, chi.URLParam(r, "id"), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, "Pedido obtenido exitosamente", order)
}

// UpdateStatus is mounted behind RequireRole(admin).
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, chi.URLParam(r, "id"), domain.OrderStatus(req.Status))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, "Estado del pedido actualizado", order)
}
