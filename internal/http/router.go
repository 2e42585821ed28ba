package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Cart     *CartHandler
	Orders   *OrdersHandler
	Verifier TokenVerifier
	Logger   *slog.Logger
	// HealthCheck reports whether the storage backends are reachable.
	HealthCheck func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = logging.Base()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthCheck(ctx); err != nil {
				respondJSON(w, r, http.StatusServiceUnavailable, err.Error(), map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, r, http.StatusOK, "ok", map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Cart.GetCart)
			r.Post("/items", cfg.Cart.AddItem)
			r.Put("/items/{productId}", cfg.Cart.UpdateQuantity)
			r.Delete("/items/{productId}", cfg.Cart.RemoveItem)
			r.Delete("/clear", cfg.Cart.ClearCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", cfg.Orders.CreateOrder)
			r.Get("/", cfg.Orders.ListOrders)
			r.Get("/{id}", cfg.Orders.GetOrder)
			r.With(RequireRole(auth.RoleAdmin)).Put("/{id}/status", cfg.Orders.UpdateStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondFailure(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondFailure(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
