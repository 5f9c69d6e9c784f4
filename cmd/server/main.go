package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smileagent/autoreply-engine/internal/api"
	"github.com/smileagent/autoreply-engine/internal/config"
	"github.com/smileagent/autoreply-engine/internal/database"
	"github.com/smileagent/autoreply-engine/internal/gateway"
	"github.com/smileagent/autoreply-engine/internal/generation"
	"github.com/smileagent/autoreply-engine/internal/intent"
	seclog "github.com/smileagent/autoreply-engine/internal/logger"
	"github.com/smileagent/autoreply-engine/internal/quota"
	"github.com/smileagent/autoreply-engine/internal/repository"
	"github.com/smileagent/autoreply-engine/internal/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration first so the log level is known
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting auto-reply engine")
	cfg.LogConfig(logger)

	// Database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if err := database.Migrate(db); err != nil {
		return err
	}

	// Repositories
	tenantRepo := repository.NewTenantRepository(db)
	threadRepo := repository.NewThreadStateRepository(db)

	// Generation service
	ctx := context.Background()
	generator, err := generation.NewGeminiClient(ctx, generation.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.AIModel,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
	})
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}
	defer generator.Close()

	// Shared quota guard over the generation API key
	guard := quota.NewGuard(cfg.QuotaPerMinute, cfg.QuotaPerDay, nil)

	// Provider gateways
	gateways := gateway.NewGoogleFactory(gateway.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Timezone:     cfg.CalendarTimezone,
	})

	// Triage pipeline
	classifier := intent.NewKeywordClassifier()
	autoReply := services.NewAutoReplyService(classifier, guard, generator, threadRepo, logger)

	scheduler := services.NewScheduler(tenantRepo, gateways, autoReply, services.SchedulerConfig{
		TickInterval:        cfg.TickInterval,
		FetchMaxResults:     cfg.FetchMaxResults,
		FetchQuery:          cfg.FetchQuery,
		CallTimeout:         cfg.CallTimeout,
		TransientRetryLimit: cfg.TransientRetryLimit,
	}, logger, seclog.NewSecurityLogger())

	scheduler.Start()
	defer scheduler.Stop()

	// HTTP server
	e := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Scheduler:      scheduler,
		Guard:          guard,
		Logger:         logger,
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		AppEnv:         cfg.AppEnv,
		RateLimit:      int(cfg.RateLimitRequests),
		RateBurst:      cfg.RateLimitBurst,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("HTTP server listening", slog.String("addr", addr))
		errCh <- e.Start(addr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
