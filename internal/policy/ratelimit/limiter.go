// Package ratelimit enforces a minimum interval between requests to the same domain.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/article-harvester/internal/domain"
	"github.com/JakeFAU/article-harvester/internal/metrics"
)

// DefaultInterval is the minimum spacing used when none is configured.
const DefaultInterval = time.Second

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum time between two requests to the same domain.
	Interval time.Duration
}

// Limiter hands out per-domain request slots. One Limiter is shared by every
// fetch tier; its zero value is not usable, call New.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until a request to domainName may proceed, then claims the slot.
// The "unknown" domain is never throttled.
func (l *Limiter) Wait(ctx context.Context, domainName string) error {
	if l == nil || domainName == "" || domainName == domain.Unknown {
		return nil
	}
	limiter := l.limiterFor(domainName)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domainName, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domainName, waited)
	}
	return nil
}

// WaitURL is Wait for the registrable domain of rawURL.
func (l *Limiter) WaitURL(ctx context.Context, rawURL string) error {
	return l.Wait(ctx, domain.Extract(rawURL))
}

func (l *Limiter) limiterFor(domainName string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[domainName]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[domainName] = limiter
	}
	return limiter
}
