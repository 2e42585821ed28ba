package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// storage bundles the repositories of the configured driver.
type storage struct {
	carts    repository.CartRepository
	orders   repository.OrderRepository
	products repository.ProductStore

	mongo  *mongo.Database
	checks []func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		mem := store.NewMemoryStore()
		log.Warn("using in-memory storage, data is lost on exit")
		return &storage{carts: mem, orders: mem, products: mem}, nil
	}

	db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}
	log.Info("connected to MongoDB", "database", cfg.Mongo.Database)

	return &storage{
		carts:    repository.NewMongoCartRepository(db),
		orders:   repository.NewMongoOrderRepository(db),
		products: repository.NewMongoProductStore(db),
		mongo:    db,
		checks: []func(ctx context.Context) error{
			func(ctx context.Context) error { return db.Client().Ping(ctx, nil) },
		},
	}, nil
}

func (s *storage) migrate(path string) error {
	if s.mongo == nil {
		return nil
	}
	return repository.RunMigrations(s.mongo, path)
}

// prepare readies the schema before serving: it applies migrations when
// migrate is set and otherwise insists the indexes are already there.
func (s *storage) prepare(ctx context.Context, path string, migrate bool) error {
	if s.mongo == nil {
		return nil
	}
	if migrate {
		return s.migrate(path)
	}
	if err := repository.VerifyIndexes(ctx, s.mongo); err != nil {
		return fmt.Errorf("%w, run `storefront migrate` or set mongo.auto_migrate", err)
	}
	return nil
}

func (s *storage) health(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *storage) close(ctx context.Context) error {
	if s.mongo == nil {
		return nil
	}
	return s.mongo.Client().Disconnect(ctx)
}

// openRedis returns nil when no address is configured.
func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return rdb, nil
}

// seedProducts upserts every product of a JSON array file.
func seedProducts(ctx context.Context, products repository.ProductStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var items []*domain.Product
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i, p := range items {
		if p.ID == "" {
			return i, fmt.Errorf("product %d in %s has no id", i, path)
		}
		if p.Stock < 0 {
			return i, fmt.Errorf("product %s in %s has negative stock %d", p.ID, path, p.Stock)
		}
		if err := products.UpsertProduct(ctx, p); err != nil {
			return i, fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return len(items), nil
}
