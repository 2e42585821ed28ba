package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/consumer"
	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply MongoDB migrations",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverMongo {
				return fmt.Errorf("migrate needs storage.driver=%s", config.DriverMongo)
			}
			log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)

			st, err := openStorage(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer st.close(context.Background())

			if err := st.migrate(cfg.Mongo.MigrationsPath); err != nil {
				return err
			}
			log.Info("migrations applied", "path", cfg.Mongo.MigrationsPath)
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "upsert products from a JSON file into the product store",
		ArgsUsage: "<products.json>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("seed file required")
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverMongo {
				return fmt.Errorf("seed needs storage.driver=%s, use serve --seed for the memory driver", config.DriverMongo)
			}
			log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)

			st, err := openStorage(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer st.close(context.Background())

			n, err := seedProducts(c.Context, st.products, path)
			if err != nil {
				return err
			}
			log.Info("products seeded", "count", n, "file", path)
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a bearer token signed with auth.jwt_secret, for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "user id (sub claim)"},
			&cli.StringFlag{Name: "role", Value: auth.RoleCustomer, Usage: "customer or admin"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "token lifetime"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			role := c.String("role")
			if role != auth.RoleCustomer && role != auth.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				return errors.New("ttl must be positive")
			}

			v := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
			raw, err := v.Issue(auth.Identity{UserID: c.String("user"), Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, raw)
			return nil
		},
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "consume order events, log them and drop stale cart cache entries",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers required")
			}
			log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := consumer.LogHandler(log)
			rdb, err := openRedis(ctx, cfg)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
				handler = consumer.Chain(handler, consumer.CartCacheInvalidator(cache.NewRedisCache(rdb, cfg.Redis.CacheTTL)))
			}

			cons := consumer.NewConsumer(handler, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...)
			defer func() {
				if err := cons.Close(); err != nil {
					log.Error("close consumer", "err", err)
				}
			}()

			log.Info("consuming order events", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
			return cons.Run(ctx)
		},
	}
}
