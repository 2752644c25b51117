// Package governor implements the process-wide adaptive concurrency cap
// described in spec §4.3: a permit pool that degrades the whole process
// into a reduced "safe mode" ceiling after consecutive provider errors,
// then recovers linearly without operator intervention.
package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config holds the tunables read from the CONCURRENCY_* environment keys
// in spec §6.
type Config struct {
	Max           int           // normal-mode ceiling
	Min           int           // safe-mode floor ceiling
	ErrorThreshold int          // consecutive errors that trip safe mode
	Cooldown       time.Duration // time at Min before linear recovery begins
	RecoveryRate   time.Duration // ceiling grows by 1 every RecoveryRate
}

// DefaultConfig mirrors the original deployment's defaults.
func DefaultConfig() Config {
	return Config{
		Max:            20,
		Min:            5,
		ErrorThreshold: 2,
		Cooldown:       600 * time.Second,
		RecoveryRate:   60 * time.Second,
	}
}

// Governor is the process-global permit pool. now is overridable in tests
// so the cooldown/recovery math can be exercised without real sleeps.
type Governor struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu                sync.Mutex
	cond              *sync.Cond
	active            int
	safeMode          bool
	lastErrorTime     time.Time
	consecutiveErrors int
}

func New(cfg Config, log *slog.Logger) *Governor {
	g := &Governor{cfg: cfg, log: log, now: time.Now}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Ceiling returns the current permit ceiling given the governor's state.
// In normal mode this is cfg.Max; in safe mode it is Min for the
// cooldown window, then grows by one permit per RecoveryRate elapsed
// until it reaches Max, at which point safe mode is cleared.
func (g *Governor) Ceiling() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ceilingLocked()
}

func (g *Governor) ceilingLocked() int {
	if !g.safeMode {
		return g.cfg.Max
	}

	elapsed := g.now().Sub(g.lastErrorTime)
	if elapsed < g.cfg.Cooldown {
		return g.cfg.Min
	}

	recoveryElapsed := elapsed - g.cfg.Cooldown
	recoveredSlots := int(recoveryElapsed / g.cfg.RecoveryRate)
	limit := g.cfg.Min + recoveredSlots

	if limit >= g.cfg.Max {
		g.safeMode = false
		g.consecutiveErrors = 0
		if g.log != nil {
			g.log.Info("concurrency governor exited safe mode, ceiling restored")
		}
		return g.cfg.Max
	}
	return limit
}

// Acquire blocks until a permit is available under the current ceiling,
// then takes it. Acquire is not FIFO: any woken waiter may win a freed
// permit, which is acceptable because work per run is finite.
func (g *Governor) Acquire(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		for g.active >= g.ceilingLocked() {
			g.cond.Wait()
			select {
			case <-ctx.Done():
				g.mu.Unlock()
				return
			default:
			}
		}
		g.active++
		g.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Wake every waiter so the abandoned goroutine above can observe
		// ctx.Done and exit instead of blocking forever on cond.Wait.
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (g *Governor) Release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	g.cond.Broadcast()
}

// ReportError records a provider-visible error. Crossing the error
// threshold trips safe mode and snapshots the time the ceiling collapses
// from.
func (g *Governor) ReportError() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveErrors++
	if !g.safeMode && g.consecutiveErrors >= g.cfg.ErrorThreshold {
		g.safeMode = true
		g.lastErrorTime = g.now()
		if g.log != nil {
			g.log.Warn("concurrency governor entering safe mode",
				"ceiling", g.cfg.Min, "cooldown_seconds", g.cfg.Cooldown.Seconds())
		}
	}
	g.cond.Broadcast()
}

// ReportSuccess resets the consecutive-error counter. It does not clear
// safe mode directly; safe mode only exits once the ceiling recovers to
// Max (see ceilingLocked).
func (g *Governor) ReportSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveErrors = 0
}

// Active reports the number of permits currently held, for diagnostics.
func (g *Governor) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
