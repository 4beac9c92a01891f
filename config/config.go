/*
config.go - Service configuration

PURPOSE:
  Collects every runtime setting of the server in one struct.

PRECEDENCE (lowest first):
  1. Defaults()
  2. YAML file passed to Load (optional)
  3. .env file in the working directory (optional, never overrides the
     real environment)
  4. Environment variables

  Command-line flags in cmd/server override the result.

ENVIRONMENT:
  PORT, DB_PATH, STORE, AUTH_MODE, JWT_SECRET, CORS_ORIGINS (comma list),
  IDEMPOTENCY_DB_PATH, MEMCACHED_HOST, CACHE_TTL, RABBITMQ_URL,
  EVENTS_EXCHANGE, BLOB_DIR, BLOB_BUCKET_URL, BLOB_BASE_URL, AUDIT_INTERVAL, LOG_LEVEL,
  LOG_FORMAT, SCENARIOS_ENABLED, COMMISSION_RATE, CURRENCY,
  CANCELLATION_MODE

SEE ALSO:
  - factory/policy.go: Turns the policy section into engine.Policy
  - cmd/server/main.go: Flag overrides and wiring
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/factory"
)

type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`
	Store  string `yaml:"store"` // sqlite | memory

	Auth        AuthConfig        `yaml:"auth"`
	CORS        CORSConfig        `yaml:"cors"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Cache       CacheConfig       `yaml:"cache"`
	Events      EventsConfig      `yaml:"events"`
	Blob        BlobConfig        `yaml:"blob"`
	Audit       AuditConfig       `yaml:"audit"`
	Log         LogConfig         `yaml:"log"`
	Scenarios   ScenariosConfig   `yaml:"scenarios"`

	Policy factory.PolicyJSON `yaml:"policy"`
}

type AuthConfig struct {
	Mode      string `yaml:"mode"` // jwt | header
	JWTSecret string `yaml:"jwt_secret"`
}

type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

type IdempotencyConfig struct {
	DBPath string `yaml:"db_path"` // empty disables the replay middleware
}

type CacheConfig struct {
	MemcachedHost string        `yaml:"memcached_host"` // empty keeps the cache process-local
	TTL           time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	RabbitMQURL string `yaml:"rabbitmq_url"` // empty disables publishing
	Exchange    string `yaml:"exchange"`
}

// BlobConfig locates uploaded images. BucketURL, when set, is a gocloud
// bucket URL ("file:///var/lib/stay/uploads", "mem://") and wins over Dir.
type BlobConfig struct {
	Dir       string `yaml:"dir"`
	BucketURL string `yaml:"bucket_url"`
	BaseURL   string `yaml:"base_url"`
}

// Bucket is what blob.Open should open.
func (b BlobConfig) Bucket() string {
	if b.BucketURL != "" {
		return b.BucketURL
	}
	return b.Dir
}

type AuditConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

type ScenariosConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults suit local development.
func Defaults() Config {
	return Config{
		Port:        8080,
		DBPath:      "stay.db",
		Store:       "sqlite",
		Auth:        AuthConfig{Mode: "header", JWTSecret: "dev-secret-change-me"},
		CORS:        CORSConfig{Origins: []string{"*"}},
		Idempotency: IdempotencyConfig{DBPath: "idempotency.db"},
		Cache:       CacheConfig{TTL: 5 * time.Minute},
		Events:      EventsConfig{Exchange: "stay.events"},
		Blob:        BlobConfig{Dir: "uploads", BaseURL: "/uploads"},
		Audit:       AuditConfig{Interval: 5 * time.Minute},
		Log:         LogConfig{Level: "info", Format: "text"},
		Scenarios:   ScenariosConfig{Enabled: true},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	var err error
	if c.Port, err = getEnvInt("PORT", c.Port); err != nil {
		return err
	}
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.Store = getEnv("STORE", c.Store)
	c.Auth.Mode = getEnv("AUTH_MODE", c.Auth.Mode)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.CORS.Origins = splitList(origins)
	}
	c.Idempotency.DBPath = getEnv("IDEMPOTENCY_DB_PATH", c.Idempotency.DBPath)
	c.Cache.MemcachedHost = getEnv("MEMCACHED_HOST", c.Cache.MemcachedHost)
	if c.Cache.TTL, err = getEnvDuration("CACHE_TTL", c.Cache.TTL); err != nil {
		return err
	}
	c.Events.RabbitMQURL = getEnv("RABBITMQ_URL", c.Events.RabbitMQURL)
	c.Events.Exchange = getEnv("EVENTS_EXCHANGE", c.Events.Exchange)
	c.Blob.Dir = getEnv("BLOB_DIR", c.Blob.Dir)
	c.Blob.BucketURL = getEnv("BLOB_BUCKET_URL", c.Blob.BucketURL)
	c.Blob.BaseURL = getEnv("BLOB_BASE_URL", c.Blob.BaseURL)
	if c.Audit.Interval, err = getEnvDuration("AUDIT_INTERVAL", c.Audit.Interval); err != nil {
		return err
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	if c.Scenarios.Enabled, err = getEnvBool("SCENARIOS_ENABLED", c.Scenarios.Enabled); err != nil {
		return err
	}

	if v := getEnv("COMMISSION_RATE", ""); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("COMMISSION_RATE: %w", err)
		}
		c.Policy.CommissionRate = &rate
	}
	c.Policy.Currency = getEnv("CURRENCY", c.Policy.Currency)
	c.Policy.CancellationMode = getEnv("CANCELLATION_MODE", c.Policy.CancellationMode)
	return nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	switch c.Store {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store %q (want sqlite or memory)", c.Store)
	}
	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required in jwt mode")
		}
	case "header":
	default:
		return fmt.Errorf("unknown auth mode %q (want jwt or header)", c.Auth.Mode)
	}
	if _, err := c.EnginePolicy(); err != nil {
		return err
	}
	return nil
}

// EnginePolicy resolves the policy section.
func (c Config) EnginePolicy() (engine.Policy, error) {
	return factory.NewPolicyFactory().FromJSON(c.Policy)
}

// =============================================================================
// ENVIRONMENT HELPERS
// =============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
