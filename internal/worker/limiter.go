package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a per-host request rate so one run never hammers a single
// site regardless of worker count
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

// NewLimiter creates a limiter applying the same rate to every host
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		hosts: make(map[string]*rate.Limiter),
		rps:   rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

// Wait blocks until the URL's host has rate budget
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	lim, err := l.forURL(rawURL)
	if err != nil {
		return err
	}
	return lim.Wait(ctx)
}

// WaitWithDelay blocks for rate budget plus an extra politeness delay,
// typically a robots.txt crawl-delay
func (l *Limiter) WaitWithDelay(ctx context.Context, rawURL string, delay time.Duration) error {
	if err := l.Wait(ctx, rawURL); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Allow reports whether a request could go out now without waiting
func (l *Limiter) Allow(rawURL string) bool {
	lim, err := l.forURL(rawURL)
	if err != nil {
		return false
	}
	return lim.Allow()
}

func (l *Limiter) forURL(rawURL string) (*rate.Limiter, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[parsed.Host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.hosts[parsed.Host] = lim
	}
	return lim, nil
}
