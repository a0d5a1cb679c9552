// Package ratelimit paces outbound requests with one token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/aur-crawler/internal/metrics"
)

// Waits shorter than this are not worth a histogram sample.
const minRecordedDelay = time.Millisecond

// Config holds limiter settings. RequestsPerSecond <= 0 disables pacing.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter hands out request tokens per host. The zero value is not usable; call New.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Unlimited reports whether the limiter never blocks.
func (l *Limiter) Unlimited() bool {
	return l.limit == rate.Inf
}

// Wait blocks until rawURL's host may be requested or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	bucket := l.bucket(host)

	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if d := time.Since(start); d > minRecordedDelay {
		metrics.ObserveRateLimitDelay(host, d)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[host] = b
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
