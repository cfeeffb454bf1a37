package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/loyverse-proxy/internal/config"
	"github.com/Sternrassler/loyverse-proxy/pkg/cache"
	"github.com/Sternrassler/loyverse-proxy/pkg/catalog"
	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/Sternrassler/loyverse-proxy/pkg/inventory"
	"github.com/Sternrassler/loyverse-proxy/pkg/logging"
	"github.com/Sternrassler/loyverse-proxy/pkg/notify"
	"github.com/Sternrassler/loyverse-proxy/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.Setup(logging.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	svc, err := buildCatalog(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Loyverse client")
	}

	var notifier subscriber
	if cfg.EmailEnabled() {
		n, err := notify.New(notify.Config{
			APIKey:     cfg.Email.SendGridAPIKey,
			Host:       cfg.Email.SendGridHost,
			AdminEmail: cfg.Email.AdminEmail,
			FromEmail:  cfg.Email.FromEmail,
			FromName:   cfg.Email.FromName,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure email delivery")
		}
		notifier = n
	} else {
		log.Warn().Msg("SENDGRID_API_KEY or FROM_EMAIL not set, POST /email will fail")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newServer(svc, notifier, cfg.Server.AdminKey).routes(cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("upstream", cfg.Loyverse.BaseURL).
		Bool("redis", redisClient != nil).
		Msg("Starting Loyverse proxy server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

// connectRedis returns nil when Redis is not configured.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := cfg.RedisOptions()
	if err != nil || opts == nil {
		return nil, err
	}

	redisClient := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, err
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return redisClient, nil
}

// buildCatalog wires client, cooldown tracker, inventory aggregator and
// snapshot store. Shared state lives in Redis when redisClient is set.
func buildCatalog(cfg *config.Config, redisClient *redis.Client) (*catalog.Service, error) {
	var (
		cooldowns ratelimit.StateStore = ratelimit.NewMemoryStore()
		snapshots cache.Store          = cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	)
	if redisClient != nil {
		cooldowns = ratelimit.NewRedisStore(redisClient)
		snapshots = cache.NewRedisStore(redisClient, cfg.Cache.TTL)
	}

	tracker := ratelimit.NewTracker(cooldowns, logging.NewLogger("ratelimit"))
	tracker.SetMaxWait(cfg.Loyverse.MaxCooldownWait)

	clientCfg := client.DefaultConfig(cfg.Loyverse.Token)
	clientCfg.BaseURL = cfg.Loyverse.BaseURL
	clientCfg.UserAgent = cfg.Loyverse.UserAgent
	clientCfg.PageLimit = cfg.Loyverse.PageLimit
	clientCfg.Timeout = cfg.Loyverse.Timeout
	clientCfg.Retry.MaxRetries = cfg.Loyverse.MaxRetries
	clientCfg.Retry.InitialBackoff = cfg.Loyverse.InitialBackoff
	clientCfg.Retry.MaxBackoff = cfg.Loyverse.MaxBackoff
	clientCfg.RateLimiter = tracker

	loyverse, err := client.New(clientCfg)
	if err != nil {
		return nil, err
	}

	agg := inventory.NewAggregator(loyverse, inventory.Config{
		ChunkSize:      cfg.Inventory.ChunkSize,
		MaxConcurrency: cfg.Inventory.Concurrency,
	})

	return catalog.NewService(loyverse, agg, snapshots, catalog.Config{
		ListingQuota: cfg.Catalog.ListingQuota,
		MaxPages:     cfg.Catalog.MaxPages,
		BuildTimeout: cfg.Catalog.BuildTimeout,
		StockPolicy: catalog.StockPolicy{
			Listing: cfg.Catalog.StockFilterListing,
			Catalog: cfg.Catalog.StockFilterCatalog,
			Search:  cfg.Catalog.StockFilterSearch,
		},
	}), nil
}
