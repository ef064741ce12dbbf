package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server ports
	APIPort  int
	SMTPPort int

	// Analysis provider
	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	LLMMaxTokens int

	// Retry schedule for provider calls
	LLMMaxRetries     int
	LLMRetryBaseDelay time.Duration

	// Token budget per one-minute window, with a safety buffer fraction held
	// back from it, plus a separate request-count ceiling
	TokenBudgetPerMinute int
	TokenSafetyBuffer    float64
	LLMRequestsPerMinute int

	// Enrichment queue
	QueueBatchSize  int
	QueueChunkSize  int
	InterChunkDelay time.Duration
	InterBatchDelay time.Duration

	// Periodic sweep re-enqueueing unprocessed mail (cron spec)
	SweepSchedule string

	// Storage
	RawStoragePath string

	// Logging
	LogLevel string

	// Security
	APIKey         string
	AllowedOrigins string
	AppEnv         string

	// Rate Limiting (HTTP API, per IP)
	RateLimitRequests float64
	RateLimitBurst    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	// API_PORT (default: 8080)
	port, err := intEnv("API_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.APIPort = port

	// SMTP_PORT (default: 2525)
	port, err = intEnv("SMTP_PORT", 2525)
	if err != nil {
		return nil, err
	}
	cfg.SMTPPort = port

	// Analysis provider settings
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = "https://api.anthropic.com"
	}
	cfg.LLMModel = os.Getenv("LLM_MODEL")
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-sonnet-4-20250514"
	}
	if cfg.LLMMaxTokens, err = intEnv("LLM_MAX_TOKENS", 4096); err != nil {
		return nil, err
	}
	if cfg.LLMMaxRetries, err = intEnv("LLM_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.LLMRetryBaseDelay, err = durationEnv("LLM_RETRY_BASE_DELAY", 60*time.Second); err != nil {
		return nil, err
	}

	// Token budget
	if cfg.TokenBudgetPerMinute, err = intEnv("TOKEN_BUDGET_PER_MINUTE", 40000); err != nil {
		return nil, err
	}
	if cfg.TokenSafetyBuffer, err = floatEnv("TOKEN_SAFETY_BUFFER", 0.2); err != nil {
		return nil, err
	}
	if cfg.LLMRequestsPerMinute, err = intEnv("LLM_REQUESTS_PER_MINUTE", 50); err != nil {
		return nil, err
	}

	// Queue tuning. Defaults mirror the provider throughput limits observed
	// in production; override per deployment.
	if cfg.QueueBatchSize, err = intEnv("QUEUE_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.QueueChunkSize, err = intEnv("QUEUE_CHUNK_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.InterChunkDelay, err = durationEnv("INTER_CHUNK_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.InterBatchDelay, err = durationEnv("INTER_BATCH_DELAY", 60*time.Second); err != nil {
		return nil, err
	}

	// SWEEP_SCHEDULE (default: every 15 minutes)
	cfg.SweepSchedule = os.Getenv("SWEEP_SCHEDULE")
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "*/15 * * * *"
	}

	// RAW_STORAGE_PATH (default: ./rawmail)
	cfg.RawStoragePath = os.Getenv("RAW_STORAGE_PATH")
	if cfg.RawStoragePath == "" {
		cfg.RawStoragePath = "./rawmail"
	}

	// LOG_LEVEL (default: info)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Security configuration
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.AppEnv = os.Getenv("APP_ENV")
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	// Rate limiting configuration
	if cfg.RateLimitRequests, err = floatEnv("RATE_LIMIT_REQUESTS", 10.0); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return v, nil
}

func floatEnv(name string, def float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}
	return v, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Production-specific validation
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTPPort must be between 1 and 65535")
	}
	if c.TokenBudgetPerMinute <= 0 {
		return fmt.Errorf("TokenBudgetPerMinute must be positive")
	}
	if c.TokenSafetyBuffer < 0 || c.TokenSafetyBuffer >= 1 {
		return fmt.Errorf("TokenSafetyBuffer must be in [0, 1)")
	}
	if c.LLMRequestsPerMinute <= 0 {
		return fmt.Errorf("LLMRequestsPerMinute must be positive")
	}
	if c.QueueBatchSize <= 0 || c.QueueChunkSize <= 0 {
		return fmt.Errorf("queue batch and chunk sizes must be positive")
	}
	if c.QueueChunkSize > c.QueueBatchSize {
		return fmt.Errorf("QueueChunkSize cannot exceed QueueBatchSize")
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("LLMMaxRetries cannot be negative")
	}
	if c.RawStoragePath == "" {
		return fmt.Errorf("RawStoragePath cannot be empty")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required in production")
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	// Check for wildcard in production
	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	// Check for sslmode=disable in database URL
	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.Int("smtp_port", c.SMTPPort),
		slog.String("llm_model", c.LLMModel),
		slog.Bool("llm_api_key_set", c.LLMAPIKey != ""),
		slog.Int("token_budget_per_minute", c.TokenBudgetPerMinute),
		slog.Float64("token_safety_buffer", c.TokenSafetyBuffer),
		slog.Int("queue_batch_size", c.QueueBatchSize),
		slog.Int("queue_chunk_size", c.QueueChunkSize),
		slog.Duration("inter_chunk_delay", c.InterChunkDelay),
		slog.Duration("inter_batch_delay", c.InterBatchDelay),
		slog.String("sweep_schedule", c.SweepSchedule),
		slog.String("raw_storage_path", c.RawStoragePath),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
	)
}
