package governor

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Max:            5,
		Min:            1,
		ErrorThreshold: 2,
		Cooldown:       10 * time.Second,
		RecoveryRate:   1 * time.Second,
	}
}

func TestNormalModeCeilingIsMax(t *testing.T) {
	g := New(testConfig(), nil)
	if got := g.Ceiling(); got != 5 {
		t.Errorf("expected ceiling 5 in normal mode, got %d", got)
	}
}

func TestSafeModeTripsAtThreshold(t *testing.T) {
	g := New(testConfig(), nil)
	fake := time.Unix(1000, 0)
	g.now = func() time.Time { return fake }

	g.ReportError()
	if got := g.Ceiling(); got != 5 {
		t.Fatalf("expected no change after one error, got %d", got)
	}
	g.ReportError()
	if got := g.Ceiling(); got != 1 {
		t.Fatalf("expected ceiling to collapse to min after threshold errors, got %d", got)
	}
}

func TestCeilingRecoversLinearlyThenExitsSafeMode(t *testing.T) {
	g := New(testConfig(), nil)
	start := time.Unix(2000, 0)
	fake := start
	g.now = func() time.Time { return fake }

	g.ReportError()
	g.ReportError()
	if got := g.Ceiling(); got != 1 {
		t.Fatalf("expected min ceiling immediately after trip, got %d", got)
	}

	// still within cooldown
	fake = start.Add(5 * time.Second)
	if got := g.Ceiling(); got != 1 {
		t.Fatalf("expected min ceiling during cooldown, got %d", got)
	}

	// cooldown elapsed, 3 recovery ticks in
	fake = start.Add(10*time.Second + 3*time.Second)
	if got := g.Ceiling(); got != 4 {
		t.Fatalf("expected ceiling 4 after 3 recovery ticks, got %d", got)
	}

	// fully recovered
	fake = start.Add(10*time.Second + 4*time.Second)
	if got := g.Ceiling(); got != 5 {
		t.Fatalf("expected ceiling restored to max, got %d", got)
	}

	// safe mode must now be cleared: a fresh error needs the threshold again
	g.ReportError()
	if got := g.Ceiling(); got != 5 {
		t.Errorf("expected single error post-recovery not to re-trip safe mode, got %d", got)
	}
}

func TestReportSuccessResetsConsecutiveErrors(t *testing.T) {
	g := New(testConfig(), nil)
	g.ReportError()
	g.ReportSuccess()
	g.ReportError()
	if got := g.Ceiling(); got != 5 {
		t.Errorf("expected threshold counter reset by success, got ceiling %d", got)
	}
}

func TestAcquireNeverExceedsCeiling(t *testing.T) {
	g := New(testConfig(), nil)
	ctx := context.Background()

	var mu sync.Mutex
	maxObserved := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(ctx); err != nil {
				return
			}
			mu.Lock()
			if a := g.Active(); a > maxObserved {
				maxObserved = a
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			g.Release()
		}()
	}
	wg.Wait()

	if maxObserved > testConfig().Max {
		t.Errorf("governor admitted %d concurrent tasks, ceiling is %d", maxObserved, testConfig().Max)
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.Max = 1
	g := New(cfg, nil)

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Acquire(ctx); err == nil {
		t.Errorf("expected second acquire to time out while pool is full")
	}
}
