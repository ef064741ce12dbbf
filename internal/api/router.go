package api

import (
	"log/slog"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mailsense/mailsense-backend/internal/api/handlers"
	"github.com/mailsense/mailsense-backend/internal/api/middleware"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/services"
	"github.com/mailsense/mailsense-backend/internal/websocket"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB       *gorm.DB
	Enricher *services.EnrichmentService
	Hub      *websocket.Hub
	Logger   *slog.Logger

	// Metrics registry backing GET /metrics (nil = endpoint disabled)
	Metrics prometheus.Gatherer

	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	AllowedOrigins []string // Allowed CORS origins
	RateLimit      int      // Requests per second (0 = use env default)
	RateBurst      int      // Burst size for rate limiter
	EnableAuth     bool     // Enable API key authentication
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Security Middleware (applied in correct order)
	// 1. Recover from panics
	e.Use(middleware.Recover())

	// 2. Security headers (applied to all responses)
	e.Use(middleware.SecureHeaders())

	// 3. CORS - Set environment variable if origins provided in config
	if len(cfg.AllowedOrigins) > 0 {
		os.Setenv("ALLOWED_ORIGINS", strings.Join(cfg.AllowedOrigins, ","))
	}
	e.Use(middleware.SecureCORS())

	// 4. Rate limiting - use RateLimiterWithConfig if custom values provided
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(float64(cfg.RateLimit), cfg.RateBurst, cfg.Logger))
	} else {
		e.Use(middleware.RateLimiter(cfg.Logger))
	}

	// 5. Request logging
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(cfg.DB)
	emailRepo := repository.NewEmailRepository(cfg.DB)
	categoryRepo := repository.NewCategoryRepository(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB)
	accountHandler := handlers.NewAccountHandler(accountRepo)
	emailHandler := handlers.NewEmailHandler(emailRepo, cfg.Enricher)
	categoryHandler := handlers.NewCategoryHandler(categoryRepo)
	enrichmentHandler := handlers.NewEnrichmentHandler(cfg.Enricher)
	ingestHandler := handlers.NewIngestHandler(accountRepo, emailRepo, cfg.Enricher)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// Prometheus metrics
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})))
	}

	// Live status connections
	if cfg.Hub != nil {
		wsHandler := handlers.NewWSHandler(cfg.Hub, strings.Join(cfg.AllowedOrigins, ","), cfg.Logger)
		e.GET("/ws", wsHandler.Serve)
	}

	// API routes
	api := e.Group("/api")

	// Apply API key authentication if enabled
	// Set API_KEY env var if provided in config
	if cfg.EnableAuth && cfg.APIKey != "" {
		os.Setenv("API_KEY", cfg.APIKey)
	}
	api.Use(middleware.APIKeyAuth(cfg.Logger))

	// Mailbox account routes
	accounts := api.Group("/accounts")
	accounts.POST("", accountHandler.Create)
	accounts.GET("", accountHandler.List)
	accounts.PATCH("/:id/active", accountHandler.SetActive)

	// Email routes
	emails := api.Group("/emails")
	emails.GET("", emailHandler.List)
	emails.GET("/:id", emailHandler.Get)
	emails.POST("/:id/enrich", emailHandler.Enrich)

	// Category routes
	categories := api.Group("/categories")
	categories.POST("", categoryHandler.Create)
	categories.GET("", categoryHandler.List)
	categories.DELETE("/:id", categoryHandler.Delete)
	categories.POST("/seed", categoryHandler.SeedDefaults)

	// Enrichment queue routes
	enrichment := api.Group("/enrichment")
	enrichment.POST("/batch", enrichmentHandler.Batch)
	enrichment.GET("/status", enrichmentHandler.Status)
	enrichment.POST("/sweep", enrichmentHandler.Sweep)

	// Provider sync ingestion
	api.POST("/sync/ingest", ingestHandler.Ingest)

	return e
}
