package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/idempotency"
	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
)

type eventPublisher interface {
	service.EventPublisher
	Close() error
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "migrate", Usage: "apply MongoDB migrations before serving even when mongo.auto_migrate is off"},
			&cli.StringFlag{Name: "seed", Usage: "upsert the products of this JSON file before serving"},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.Error("close storage", "err", err)
		}
	}()

	migrate := c.Bool("migrate") || cfg.Mongo.AutoMigrate
	if err := st.prepare(ctx, cfg.Mongo.MigrationsPath, migrate); err != nil {
		return err
	}
	if migrate && st.mongo != nil {
		log.Info("migrations applied", "path", cfg.Mongo.MigrationsPath)
	}
	if path := c.String("seed"); path != "" {
		n, err := seedProducts(ctx, st.products, path)
		if err != nil {
			return err
		}
		log.Info("products seeded", "count", n)
	}

	var cartCache cache.CartCache = cache.NoopCache{}
	var idem service.IdempotencyStore
	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		cartCache = cache.NewRedisCache(rdb, cfg.Redis.CacheTTL)
		idem = idempotency.NewRedisStore(rdb, cfg.Orders.IdempotencyTTL)
		st.checks = append(st.checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)
	} else {
		log.Warn("redis not configured, cart cache and idempotency keys disabled")
	}

	var events eventPublisher = publisher.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		events = publisher.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		log.Info("publishing order events", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Error("close publisher", "err", err)
		}
	}()

	carts := service.NewCartService(st.carts, st.products, cartCache)
	orders := service.NewOrderService(st.carts, st.orders, st.products, cartCache, events, cfg.Orders.RestockOnCancel)
	if idem != nil {
		orders.WithIdempotency(idem)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	router := h.NewRouter(h.RouterConfig{
		Cart:        h.NewCartHandler(carts, cfg.HTTP.RequestTimeout, cfg.HTTP.MaxBodyBytes),
		Orders:      h.NewOrdersHandler(orders, cfg.HTTP.RequestTimeout, cfg.HTTP.MaxBodyBytes),
		Verifier:    auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		Logger:      log,
		HealthCheck: st.health,
	})

	srv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      otelhttp.NewHandler(router, cfg.App.Name),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("storefront listening", "addr", cfg.App.HTTPAddr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
