package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mailsense/mailsense-backend/internal/api"
	"github.com/mailsense/mailsense-backend/internal/config"
	"github.com/mailsense/mailsense-backend/internal/database"
	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/scheduler"
	"github.com/mailsense/mailsense-backend/internal/services"
	smtpserver "github.com/mailsense/mailsense-backend/internal/smtp"
	"github.com/mailsense/mailsense-backend/internal/storage"
	"github.com/mailsense/mailsense-backend/internal/websocket"
)

func main() {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	cfg.LogConfig(logger)

	logger.Info("starting MailSense backend")

	// Database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	emailRepo := repository.NewEmailRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	// Raw message archive
	rawStore, err := storage.NewLocalRawStore(cfg.RawStoragePath)
	if err != nil {
		logger.Error("failed to initialize raw message store", slog.Any("error", err))
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	// WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Enrichment pipeline
	limiter := services.NewTokenRateLimiter(services.RateLimiterConfig{
		BudgetPerWindow:   cfg.TokenBudgetPerMinute,
		SafetyBuffer:      cfg.TokenSafetyBuffer,
		RequestsPerMinute: cfg.LLMRequestsPerMinute,
	})
	llmClient := services.NewLLMClient(services.LLMClientConfig{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		Model:      cfg.LLMModel,
		MaxTokens:  cfg.LLMMaxTokens,
		MaxRetries: cfg.LLMMaxRetries,
		BaseDelay:  cfg.LLMRetryBaseDelay,
	}, limiter, m, logger)
	analyzer := services.NewBatchAnalyzer(llmClient, categoryRepo, m, logger)
	broadcaster := services.NewStatusBroadcaster(hub, m, logger)
	queue := services.NewEnrichmentQueue(services.EnrichmentQueueConfig{
		BatchSize:       cfg.QueueBatchSize,
		ChunkSize:       cfg.QueueChunkSize,
		InterChunkDelay: cfg.InterChunkDelay,
		InterBatchDelay: cfg.InterBatchDelay,
	}, analyzer, emailRepo, broadcaster, m, logger)
	enricher := services.NewEnrichmentService(emailRepo, analyzer, queue, broadcaster, logger)

	// Backlog sweep
	sweep := scheduler.New(enricher, cfg.QueueBatchSize*10, logger)
	if err := sweep.Start(cfg.SweepSchedule); err != nil {
		logger.Error("failed to start sweep scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	// SMTP ingestion
	smtpBackend := smtpserver.NewBackend(&smtpserver.BackendConfig{
		AccountRepo: accountRepo,
		EmailRepo:   emailRepo,
		RawStore:    rawStore,
		WSHub:       hub,
		Enricher:    enricher,
		Logger:      logger,
	})
	smtpCfg := smtpserver.LoadServerConfigFromEnv()
	smtpCfg.Addr = fmt.Sprintf(":%d", cfg.SMTPPort)
	smtpSrv := smtpserver.NewSecureServer(smtpBackend, smtpCfg)

	go func() {
		logger.Info("SMTP server listening", slog.String("addr", smtpSrv.Addr))
		if err := smtpSrv.ListenAndServe(); err != nil {
			logger.Error("SMTP server stopped", slog.Any("error", err))
		}
	}()

	// HTTP API
	var origins []string
	if cfg.AllowedOrigins != "" {
		origins = strings.Split(cfg.AllowedOrigins, ",")
	}
	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Enricher:       enricher,
		Hub:            hub,
		Logger:         logger,
		Metrics:        registry,
		APIKey:         cfg.APIKey,
		AllowedOrigins: origins,
		RateLimit:      int(cfg.RateLimitRequests),
		RateBurst:      cfg.RateLimitBurst,
		EnableAuth:     cfg.APIKey != "",
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("HTTP server listening", slog.String("addr", addr))
		if err := router.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := router.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown failed", slog.Any("error", err))
	}
	if err := smtpSrv.Shutdown(ctx); err != nil {
		logger.Error("SMTP shutdown failed", slog.Any("error", err))
	}
	sweep.Stop()
	queue.Stop()

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
