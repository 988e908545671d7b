// Package config loads storefront settings from an optional YAML file and
// then from the environment. Environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	LogLevel    string `yaml:"log_level"`
	Development bool   `yaml:"development"`

	HTTP     HTTPConfig     `yaml:"http"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Reports  ReportsConfig  `yaml:"reports"`
	Payment  PaymentConfig  `yaml:"payment"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	HealthAddr     string        `yaml:"health_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CatalogConfig struct {
	Path           string `yaml:"path"`
	MigrationsPath string `yaml:"migrations_path"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	MigrationsPath string `yaml:"migrations_path"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type ReportsConfig struct {
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	Endpoint   string        `yaml:"endpoint"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type PaymentConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	SuccessRate         int           `yaml:"success_rate"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

func Default() Config {
	return Config{
		ServiceName: "storefront",
		LogLevel:    "info",
		HTTP: HTTPConfig{
			Addr:           ":8080",
			HealthAddr:     ":50051",
			RequestTimeout: 10 * time.Second,
			RateLimit:      20,
			RateBurst:      40,
		},
		Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "cartdb"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Catalog: CatalogConfig{
			Path:           "catalog.db",
			MigrationsPath: "internal/catalog/migrations",
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			DBName:         "storefront",
			MigrationsPath: "internal/postgres/migrations",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "checkout-outbox",
			GroupID: "cart-cleanup",
		},
		Auth:    AuthConfig{Issuer: "aquakit"},
		Reports: ReportsConfig{Bucket: "lab-reports", Region: "ca-central-1", PresignTTL: 15 * time.Minute},
		Payment: PaymentConfig{
			Timeout:             5 * time.Second,
			SuccessRate:         95,
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
		Tracing: TracingConfig{SampleRatio: 1},
	}
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.HealthAddr = getEnv("HEALTH_ADDR", c.HTTP.HealthAddr)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB_NAME", c.Mongo.Database)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Catalog.Path = getEnv("CATALOG_DB_PATH", c.Catalog.Path)
	c.Catalog.MigrationsPath = getEnv("CATALOG_MIGRATIONS_PATH", c.Catalog.MigrationsPath)
	c.Postgres.Host = getEnv("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.DBName = getEnv("POSTGRES_DB", c.Postgres.DBName)
	c.Postgres.MigrationsPath = getEnv("POSTGRES_MIGRATIONS_PATH", c.Postgres.MigrationsPath)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)
	c.Reports.Bucket = getEnv("REPORTS_BUCKET", c.Reports.Bucket)
	c.Reports.Region = getEnv("AWS_REGION", c.Reports.Region)
	c.Reports.Endpoint = getEnv("S3_ENDPOINT", c.Reports.Endpoint)
	c.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid POSTGRES_PORT %q: %w", port, err)
		}
		c.Postgres.Port = p
	}
	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", timeout, err)
		}
		c.HTTP.RequestTimeout = d
	}
	if dev := os.Getenv("DEVELOPMENT"); dev != "" {
		b, err := strconv.ParseBool(dev)
		if err != nil {
			return fmt.Errorf("invalid DEVELOPMENT %q: %w", dev, err)
		}
		c.Development = b
	}
	return nil
}

func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 100 {
		return fmt.Errorf("payment.success_rate must be within 0..100, got %d", c.Payment.SuccessRate)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
