// Package config loads the proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// ErrMissingToken is the only fatal startup condition.
var ErrMissingToken = errors.New("LOYVERSE_TOKEN is required")

// Config is the complete proxy configuration.
type Config struct {
	Server    ServerConfig
	Loyverse  LoyverseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Catalog   CatalogConfig
	Inventory InventoryConfig
	Email     EmailConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	// AdminKey guards the admin routes; empty leaves them open.
	AdminKey    string
	CORSOrigins []string
}

type LoyverseConfig struct {
	Token     string
	BaseURL   string
	UserAgent string
	PageLimit int
	Timeout   time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxCooldownWait bounds how long a request waits out a shared 429 cooldown.
	MaxCooldownWait time.Duration
}

type RedisConfig struct {
	// URL is a redis:// URL or a bare host:port; empty keeps all state in memory.
	URL string
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type CatalogConfig struct {
	ListingQuota int
	MaxPages     int
	BuildTimeout time.Duration

	StockFilterListing bool
	StockFilterCatalog bool
	StockFilterSearch  bool
}

type InventoryConfig struct {
	ChunkSize   int
	Concurrency int
}

type EmailConfig struct {
	SendGridAPIKey string
	SendGridHost   string
	AdminEmail     string
	FromEmail      string
	FromName       string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads files (default: .env when present) into the environment
// without overriding variables already set, then parses the configuration.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load() // loads .env if present
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			AdminKey:        os.Getenv("ADMIN_KEY"),
			CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Loyverse: LoyverseConfig{
			Token:           strings.TrimSpace(os.Getenv("LOYVERSE_TOKEN")),
			BaseURL:         getEnv("LOYVERSE_API", "https://api.loyverse.com/v1.0"),
			UserAgent:       getEnv("USER_AGENT", "loyverse-proxy/0.1.0"),
			PageLimit:       p.integer("LOYVERSE_PAGE_LIMIT", 250),
			Timeout:         p.duration("LOYVERSE_TIMEOUT", 30*time.Second),
			MaxRetries:      p.integer("RETRY_MAX", 5),
			InitialBackoff:  p.duration("RETRY_INITIAL_BACKOFF", time.Second),
			MaxBackoff:      p.duration("RETRY_MAX_BACKOFF", 16*time.Second),
			MaxCooldownWait: p.duration("RATE_LIMIT_MAX_WAIT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Cache: CacheConfig{
			TTL:        p.duration("CACHE_TTL", 5*time.Minute),
			MaxEntries: p.integer("CACHE_MAX_ENTRIES", 256),
		},
		Catalog: CatalogConfig{
			ListingQuota:       p.integer("LISTING_QUOTA", 12),
			MaxPages:           p.integer("CATALOG_MAX_PAGES", 1000),
			BuildTimeout:       p.duration("CATALOG_BUILD_TIMEOUT", 2*time.Minute),
			StockFilterListing: p.boolean("STOCK_FILTER_LISTING", true),
			StockFilterCatalog: p.boolean("STOCK_FILTER_CATALOG", true),
			StockFilterSearch:  p.boolean("STOCK_FILTER_SEARCH", true),
		},
		Inventory: InventoryConfig{
			ChunkSize:   p.integer("INVENTORY_CHUNK_SIZE", 250),
			Concurrency: p.integer("INVENTORY_CONCURRENCY", 5),
		},
		Email: EmailConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			SendGridHost:   os.Getenv("SENDGRID_HOST"),
			AdminEmail:     os.Getenv("ADMIN_EMAIL"),
			FromEmail:      os.Getenv("FROM_EMAIL"),
			FromName:       getEnv("FROM_NAME", "Tienda"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: p.boolean("LOG_PRETTY", false),
		},
	}

	if cfg.Loyverse.Token == "" {
		p.errs = append(p.errs, ErrMissingToken)
	}
	if n := cfg.Loyverse.PageLimit; n < 1 || n > 250 {
		p.errs = append(p.errs, fmt.Errorf("LOYVERSE_PAGE_LIMIT must be in 1..250 (got %d)", n))
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EmailEnabled reports whether subscription emails can be delivered.
func (c *Config) EmailEnabled() bool {
	return c.Email.SendGridAPIKey != "" && c.Email.FromEmail != ""
}

// RedisOptions parses the Redis URL. It returns nil when Redis is not configured.
func (c *Config) RedisOptions() (*redis.Options, error) {
	raw := strings.TrimSpace(c.Redis.URL)
	if raw == "" {
		return nil, nil
	}
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

// parser collects malformed values instead of failing on the first one.
type parser struct {
	errs []error
}

func (p *parser) integer(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return def
	}
	return v
}

// duration accepts Go durations ("90s") or plain seconds ("90").
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
