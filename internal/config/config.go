package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "STOREFRONT_"

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		RequestTimeout  time.Duration `koanf:"request_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
		MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	} `koanf:"http"`

	Storage struct {
		Driver string `koanf:"driver"`
	} `koanf:"storage"`

	Mongo struct {
		URI            string `koanf:"uri"`
		Database       string `koanf:"database"`
		MigrationsPath string `koanf:"migrations_path"`
		AutoMigrate    bool   `koanf:"auto_migrate"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db"`
		CacheTTL time.Duration `koanf:"cache_ttl"`
	} `koanf:"redis"`

	Kafka struct {
		Brokers []string `koanf:"brokers"`
		Topic   string   `koanf:"topic"`
		GroupID string   `koanf:"group_id"`
	} `koanf:"kafka"`

	Auth struct {
		JWTSecret string `koanf:"jwt_secret"`
		Issuer    string `koanf:"issuer"`
		Audience  string `koanf:"audience"`
	} `koanf:"auth"`

	Orders struct {
		RestockOnCancel bool          `koanf:"restock_on_cancel"`
		IdempotencyTTL  time.Duration `koanf:"idempotency_ttl"`
	} `koanf:"orders"`
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":                 "storefront",
		"app.http_addr":            ":8080",
		"app.log_level":            "info",
		"app.log_file":             "",
		"http.read_timeout":        "10s",
		"http.write_timeout":       "15s",
		"http.idle_timeout":        "60s",
		"http.request_timeout":     "10s",
		"http.shutdown_timeout":    "10s",
		"http.max_body_bytes":      1 << 20,
		"storage.driver":           DriverMongo,
		"mongo.uri":                "mongodb://localhost:27017",
		"mongo.database":           "storefront",
		"mongo.migrations_path":    "internal/repository/migrations",
		"mongo.auto_migrate":       true,
		"redis.addr":               "",
		"redis.db":                 0,
		"redis.cache_ttl":          "15m",
		"kafka.brokers":            []string{},
		"kafka.topic":              "storefront.orders",
		"kafka.group_id":           "storefront-order-events",
		"orders.restock_on_cancel": false,
		"orders.idempotency_ttl":   "24h",
	}
}

// Load reads defaults, then the YAML file at path (skipped when path is
// empty or missing), then STOREFRONT_ environment variables, e.g.
// STOREFRONT_MONGO__URI or STOREFRONT_KAFKA__BROKERS="b1:9092 b2:9092".
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(key, EnvPrefix)
		key = strings.ToLower(strings.ReplaceAll(key, "__", "."))
		if key == "kafka.brokers" {
			return key, strings.Fields(strings.ReplaceAll(value, ",", " "))
		}
		return key, value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	switch c.Storage.Driver {
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("mongo.uri and mongo.database required for the mongo driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverMongo, DriverMemory, c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive")
	}
	return nil
}
