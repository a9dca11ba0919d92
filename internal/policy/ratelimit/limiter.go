// Package ratelimit spaces requests to the same host with a token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/content-harvester/internal/metrics"
)

// Limiter manages per-host politeness delays.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval rate.Limit
}

// Config holds rate limiter configuration.
type Config struct {
	// PerHostDelay is the minimum spacing between two requests to one host.
	// Zero disables throttling.
	PerHostDelay time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Inf
	if cfg.PerHostDelay > 0 {
		r = rate.Every(cfg.PerHostDelay)
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: r,
	}
}

// Wait blocks until the host of rawURL may be contacted again, respecting the
// context. It returns how long it waited.
func (l *Limiter) Wait(ctx context.Context, rawURL string) (time.Duration, error) {
	host := Host(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.interval, 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("rate limit wait: %w", err)
	}
	waited := time.Since(start)
	if waited > time.Millisecond {
		metrics.ObserveThrottleWait(host, waited)
	}
	return waited, nil
}

// Host returns the lowercase hostname of rawURL, or "unknown".
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
