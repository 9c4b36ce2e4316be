package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/sentinel-alpha-backend/internal/ai"
	"github.com/nyashahama/sentinel-alpha-backend/internal/api"
	"github.com/nyashahama/sentinel-alpha-backend/internal/archive"
	"github.com/nyashahama/sentinel-alpha-backend/internal/config"
	"github.com/nyashahama/sentinel-alpha-backend/internal/store"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port)

	// ── AI ────────────────────────────────────────────────────────────────────
	// Gemini is primary, then Anthropic, then DeepSeek; only providers with a
	// key join the chain. With no key at all the service runs degraded.
	provider := buildProvider(cfg, logger)
	var (
		gen      ai.Generator
		streamer ai.Streamer
	)
	if provider != nil {
		gen, streamer = provider, provider
	} else {
		logger.Warn("ai: no provider credential configured; insights and chat are disabled")
	}

	// ── Archive (optional) ────────────────────────────────────────────────────
	var (
		archiver api.Archiver
		runner   *archive.Runner
	)
	if cfg.DatabaseURL != "" {
		pool, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		logger.Info("database connected")

		runner = archive.NewRunner(store.New(pool), archive.RunnerConfig{
			Workers:    cfg.ArchiveWorkers,
			MaxRetries: cfg.ArchiveMaxRetries,
		}, logger)
		archiver = runner
	} else {
		logger.Info("archive disabled: DATABASE_URL not set")
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(gen, streamer, archiver, api.Config{
		Env:             cfg.Env,
		MarketContext:   cfg.MarketContext,
		ChatTemperature: cfg.ChatTemperature,
	}, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// A streamed reply may take as long as the provider allows.
		WriteTimeout: cfg.AITimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// ── Lifecycle ─────────────────────────────────────────────────────────────
	// Root context cancelled by OS signal. Archive runner and HTTP server both
	// respect it; the first to fail tears the other down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if runner != nil {
		g.Go(func() error {
			runner.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Give in-flight requests, including open reply streams, up to 20
		// seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildProvider chains every configured provider behind NewFallback, in
// priority order. Returns nil when no key is set.
func buildProvider(cfg *config.Config, logger *slog.Logger) ai.Provider {
	timeout := ai.WithTimeout(cfg.AITimeout)

	var chain []ai.Provider
	var names []string
	if cfg.GeminiAPIKey != "" {
		chain = append(chain, ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, timeout))
		names = append(names, "gemini")
	}
	if cfg.AnthropicAPIKey != "" {
		chain = append(chain, ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, timeout))
		names = append(names, "anthropic")
	}
	if cfg.DeepSeekAPIKey != "" {
		chain = append(chain, ai.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekModel, timeout))
		names = append(names, "deepseek")
	}
	if len(chain) == 0 {
		return nil
	}

	p := chain[len(chain)-1]
	for i := len(chain) - 2; i >= 0; i-- {
		p = ai.NewFallback(chain[i], p, logger)
	}
	logger.Info("ai: providers configured", "chain", names)
	return p
}

// openDB opens the archive connection pool and verifies it is reachable.
// The schema in sql/schema.sql must already be applied.
func openDB(dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
