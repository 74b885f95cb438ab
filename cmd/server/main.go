package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/hidroops/represas-insights/internal/ai"
	"github.com/hidroops/represas-insights/internal/api"
	"github.com/hidroops/represas-insights/internal/cache"
	"github.com/hidroops/represas-insights/internal/config"
	"github.com/hidroops/represas-insights/internal/insights"
	"github.com/hidroops/represas-insights/internal/metrics"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
	"github.com/hidroops/represas-insights/internal/ratelimit"
	"github.com/hidroops/represas-insights/internal/repository"
	"github.com/hidroops/represas-insights/internal/repository/postgres"
)

func fatal(msg string, fields ...interface{}) {
	logger.Error(msg, fields...)
	os.Exit(1)
}

// databaseURL appends connect and statement timeouts unless the DSN sets
// them already.
func databaseURL(cfg config.DatabaseConfig) string {
	dsn := cfg.URL
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "connect_timeout") {
		dsn += fmt.Sprintf("%sconnect_timeout=%d", sep, cfg.ConnectTimeoutSeconds)
		sep = "&"
	}
	if !strings.Contains(dsn, "statement_timeout") {
		dsn += fmt.Sprintf("%soptions=-c%%20statement_timeout%%3D%d", sep, cfg.StatementTimeoutMS)
	}
	return dsn
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// The pool reconnects on demand; readiness reports the outage.
		logger.Warn("database ping failed", "error", err)
	}
	return db, nil
}

// openRedis returns nil when redis is not configured or unreachable.
func openRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process stores", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", opts.Addr)
	return client
}

func newGenerator(ctx context.Context, cfg config.AIConfig) (ai.Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return ai.NewGeminiGenerator(ai.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "bedrock":
		return ai.NewBedrockGenerator(ctx, ai.BedrockConfig{
			Region:          cfg.Region,
			ModelID:         cfg.Model,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

func newLimiter(name string, cfg config.LimiterConfig, rdb *redis.Client, m *metrics.Metrics) *ratelimit.Limiter {
	var store ratelimit.Store
	if rdb != nil {
		store = ratelimit.NewRedisStore(rdb, "represas:ratelimit:"+name)
	} else {
		store = ratelimit.NewMemoryStore(cfg.MaxBuckets)
	}
	return ratelimit.New(ratelimit.Config{
		Name:   name,
		Window: cfg.Window(),
		Max:    cfg.Max,
	}, store, m)
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		fatal("failed to load config", "error", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if cfg.Auth.APIKey == "" {
		logger.Warn("API_KEY is not set, every /api request will be rejected")
	}
	if cfg.RateLimit.Backend == "redis" && cfg.Redis.URL == "" {
		logger.Warn("rate limit backend is redis but REDIS_URL is empty, using memory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		fatal("database init failed", "error", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb = openRedis(ctx, cfg.Redis.URL)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	limiterRedis := rdb
	if cfg.RateLimit.Backend != "redis" {
		limiterRedis = nil
	}
	globalLimiter := newLimiter("global", cfg.RateLimit.Global, limiterRedis, m)
	insightsLimiter := newLimiter("insights", cfg.RateLimit.Insights, limiterRedis, m)

	var metaStore cache.Store = cache.NewMemoryStore(cfg.Cache.MaxEntries)
	if rdb != nil {
		metaStore = cache.NewRedisStore(rdb, "represas:cache")
	}
	telemetry := repository.NewCachedTelemetry(postgres.NewTelemetryRepo(db), metaStore, cfg.Cache.TTL(), m)

	gen, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		fatal("ai provider init failed", "error", err)
	}
	if !gen.HasCredential() {
		logger.Warn("no ai credential configured, insights will answer INVALID_API_KEY", "provider", gen.Provider())
	}
	orchestrator := ai.NewOrchestrator(gen, ai.OrchestratorConfig{
		Timeout:         cfg.AI.Timeout(),
		Temperature:     cfg.AI.Temperature,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
	}, m)

	pipeline := insights.NewPipeline(insights.Config{
		MaxRangeDays:    cfg.Insights.MaxRangeDays,
		MaxDailyRows:    cfg.Insights.MaxDailyRows,
		MaxPayloadBytes: cfg.Insights.MaxPayloadBytes,
	}, telemetry, insightsLimiter, orchestrator, m)

	server := api.NewServer(api.Deps{
		APIKey:        cfg.Auth.APIKey,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Production:    cfg.App.IsProduction(),
		Runner:        pipeline,
		Directory:     telemetry,
		GlobalLimiter: globalLimiter,
		Metrics:       m,
		DB:            db,
		Redis:         rdb,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("starting server",
			"addr", addr,
			"env", cfg.App.Env,
			"ai_provider", gen.Provider(),
			"ai_model", gen.Model(),
			"ratelimit_backend", cfg.RateLimit.Backend,
		)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			fatal("server error", "error", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
