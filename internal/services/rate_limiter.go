package services

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// Default token budget settings, matching the analysis provider's published
// per-minute limits with room to spare.
const (
	DefaultTokenBudgetPerWindow = 40000
	DefaultSafetyBuffer         = 0.2
	DefaultBudgetWindow         = time.Minute
	DefaultRequestsPerMinute    = 50
)

// RateLimiterConfig configures a TokenRateLimiter
type RateLimiterConfig struct {
	BudgetPerWindow   int
	SafetyBuffer      float64
	Window            time.Duration
	RequestsPerMinute int
}

// TokenRateLimiter gates analysis calls on two independent provider limits:
// an estimated-token budget per fixed window and a request-count ceiling.
// Small prompts can exhaust the request quota long before the token budget,
// so neither gate substitutes for the other. It only prevents self-inflicted
// overuse; provider-reported throttling is the retry layer's problem.
type TokenRateLimiter struct {
	mu          sync.Mutex
	budget      int
	buffer      float64
	window      time.Duration
	consumed    int
	windowStart time.Time
	requests    *rate.Limiter

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTokenRateLimiter creates a new TokenRateLimiter
func NewTokenRateLimiter(cfg RateLimiterConfig) *TokenRateLimiter {
	if cfg.BudgetPerWindow <= 0 {
		cfg.BudgetPerWindow = DefaultTokenBudgetPerWindow
	}
	if cfg.SafetyBuffer <= 0 || cfg.SafetyBuffer >= 1 {
		cfg.SafetyBuffer = DefaultSafetyBuffer
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultBudgetWindow
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	l := &TokenRateLimiter{
		budget:   cfg.BudgetPerWindow,
		buffer:   cfg.SafetyBuffer,
		window:   cfg.Window,
		requests: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		now:      time.Now,
		sleep:    sleepContext,
	}
	l.windowStart = l.now()
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Estimate computes a conservative token estimate for text. Two independent
// heuristics (word-based and character-based) are averaged so an outlier in
// either direction doesn't dominate.
func (l *TokenRateLimiter) Estimate(text string) int {
	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text)
	return int(math.Ceil((float64(words)*1.3 + float64(chars)/4.0) / 2.0))
}

// Reserve blocks until a request slot is available and estimatedTokens fits
// within the current window's budget, then records the reservation. Must be
// called before the provider call it covers.
func (l *TokenRateLimiter) Reserve(ctx context.Context, estimatedTokens int) error {
	if err := l.requests.Wait(ctx); err != nil {
		return err
	}
	for {
		l.mu.Lock()
		now := l.now()
		if now.Sub(l.windowStart) >= l.window {
			l.consumed = 0
			l.windowStart = now
		}

		effective := float64(l.budget) * (1 - l.buffer)
		// An oversized reservation is admitted into an empty window; it
		// could never fit otherwise and the window reset bounds the damage.
		if float64(l.consumed+estimatedTokens) <= effective || l.consumed == 0 {
			l.consumed += estimatedTokens
			l.mu.Unlock()
			return nil
		}

		wait := l.windowStart.Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Consumed returns the tokens reserved in the current window.
func (l *TokenRateLimiter) Consumed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Sub(l.windowStart) >= l.window {
		return 0
	}
	return l.consumed
}
