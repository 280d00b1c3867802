/*
scheduler.go - Automated release sweeper

PURPOSE:
  Periodically releases vested tokens for every beneficiary, so holders do
  not have to call release themselves.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Calls Engine.Release for each beneficiary; zero releases are no-ops
  - A reward pool shortfall for one beneficiary is logged and counted, the
    sweep continues with the next
  - Records one release run per sweep for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: false)

USAGE:
  scheduler := NewReleaseScheduler(handler)
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Release endpoint (manual release)
  - store/sqlite/runs.go: Run history
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/store/sqlite"
)

// ReleaseScheduler handles automated releases.
type ReleaseScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

const defaultCheckInterval = time.Hour

// NewReleaseScheduler creates a new, disabled scheduler.
func NewReleaseScheduler(handler *Handler) *ReleaseScheduler {
	return &ReleaseScheduler{
		Handler:       handler,
		CheckInterval: defaultCheckInterval,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReleaseScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Handler.Log.Info("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.interval())
	rs.wg.Add(1)

	go rs.run()

	rs.Handler.Log.Info("[Scheduler] Started with check interval: %v", rs.interval())
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (rs *ReleaseScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.stop = make(chan struct{})
		rs.Handler.Log.Info("[Scheduler] Stopped")
	}
}

// Run sweeps on every tick until ctx is done. It is the blocking form of
// Start, for callers that manage their own goroutines.
func (rs *ReleaseScheduler) Run(ctx context.Context) error {
	if !rs.Enabled {
		rs.Handler.Log.Info("[Scheduler] Disabled, not starting")
		return nil
	}
	ticker := time.NewTicker(rs.interval())
	defer ticker.Stop()

	rs.Handler.Log.Info("[Scheduler] Started with check interval: %v", rs.interval())
	rs.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			rs.Sweep(ctx)
		case <-ctx.Done():
			rs.Handler.Log.Info("[Scheduler] Stopped")
			return nil
		}
	}
}

// interval falls back to the default for a non-positive CheckInterval.
func (rs *ReleaseScheduler) interval() time.Duration {
	if rs.CheckInterval <= 0 {
		return defaultCheckInterval
	}
	return rs.CheckInterval
}

func (rs *ReleaseScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.Sweep(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.Sweep(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// Sweep releases for every beneficiary once and records the run.
func (rs *ReleaseScheduler) Sweep(ctx context.Context) sqlite.ReleaseRun {
	h := rs.Handler
	eng := h.Engine()
	log := h.Log

	run := sqlite.ReleaseRun{
		ID:        "run-" + uuid.NewString(),
		Status:    "running",
		Principal: generic.ZeroAmount(),
		Reward:    generic.ZeroAmount(),
		StartedAt: h.Clock.Now().UTC(),
	}
	if err := h.Store.SaveReleaseRun(ctx, run); err != nil {
		log.Error("[Scheduler] Error saving run record: %v", err)
	}

	beneficiaries, err := eng.Beneficiaries(ctx)
	if err != nil {
		log.Error("[Scheduler] Error listing beneficiaries: %v", err)
		run.Status = "failed"
		run.Error = err.Error()
		rs.finish(ctx, &run)
		return run
	}
	run.Beneficiaries = len(beneficiaries)

	var lastErr error
	for _, b := range beneficiaries {
		paid, err := eng.Release(ctx, b)
		if err != nil {
			run.Failed++
			lastErr = err
			var poolErr *generic.InsufficientRewardPoolError
			if errors.As(err, &poolErr) {
				log.Warn("[Scheduler] Reward pool short for %s by %s", b, poolErr.Shortfall().EtherString())
			} else {
				log.Error("[Scheduler] Error releasing for %s: %v", b, err)
			}
			continue
		}
		if paid.IsZero() {
			continue
		}
		run.Released++
		run.Principal = run.Principal.Add(paid.Principal)
		run.Reward = run.Reward.Add(paid.Reward)
	}

	run.Status = "completed"
	if lastErr != nil {
		run.Error = lastErr.Error()
	}
	rs.finish(ctx, &run)

	if run.Released > 0 || run.Failed > 0 {
		log.Info("[Scheduler] Completed: %d released, %d failed, principal=%s reward=%s",
			run.Released, run.Failed, run.Principal.EtherString(), run.Reward.EtherString())
	}
	return run
}

func (rs *ReleaseScheduler) finish(ctx context.Context, run *sqlite.ReleaseRun) {
	done := rs.Handler.Clock.Now().UTC()
	run.CompletedAt = &done
	if err := rs.Handler.Store.SaveReleaseRun(ctx, *run); err != nil {
		rs.Handler.Log.Error("[Scheduler] Error updating run record: %v", err)
	}
}

// GetNextRunTime returns when the next scheduled sweep will occur.
func (rs *ReleaseScheduler) GetNextRunTime() time.Time {
	return rs.Handler.Clock.Now().Add(rs.interval())
}
