package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters hands out one rate.Limiter per provider id so a burst of task
// submissions against a single vendor cannot itself trigger that vendor's
// own 429s. This is independent of and composed with the process-wide
// Adaptive Concurrency Governor, which caps total in-flight work rather
// than request rate to any one vendor.
type Limiters struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLimiters builds a registry where every provider defaults to the same
// requests-per-second budget; callers may tighten a specific provider
// with SetLimit.
func NewLimiters(defaultPerSecond float64, defaultBurst int) *Limiters {
	return &Limiters{
		perSec:   rate.Limit(defaultPerSecond),
		burst:    defaultBurst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *Limiters) get(providerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[providerID]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[providerID] = lim
	}
	return lim
}

// SetLimit overrides the requests-per-second budget for one provider.
func (l *Limiters) SetLimit(providerID string, perSecond float64, burst int) {
	l.get(providerID).SetLimit(rate.Limit(perSecond))
	l.get(providerID).SetBurst(burst)
}

// Wait blocks until providerID's limiter admits one more outbound call. A
// nil *Limiters is a no-op, mirroring worker.Worker's nil-governor
// allowance so tests can construct a provider without a rate budget.
func (l *Limiters) Wait(ctx context.Context, providerID string) error {
	if l == nil {
		return nil
	}
	return l.get(providerID).Wait(ctx)
}
