// Package reaper periodically scans the ledger for patches that have
// stayed pending past the expiry window and hands them to a requeue
// hook.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RH-FMK/sktm/internal/metrics"
	"github.com/RH-FMK/sktm/pkg/types"
)

// Ledger is the slice of the store the reaper needs.
type Ledger interface {
	ExpiredPendingPatches(ctx context.Context, olderThan time.Duration) ([]int64, error)
	PendingPatchCount(ctx context.Context) (int, error)
	PendingJobs(ctx context.Context) ([]types.PendingJob, error)
}

// RequeueFunc is invoked with the ids of expired patches. The CI
// driver resubmits them as a fresh series.
type RequeueFunc func(ctx context.Context, patchIDs []int64)

// Reaper runs the expiry scan loop.
type Reaper struct {
	ledger   Ledger
	window   time.Duration
	interval time.Duration
	requeue  RequeueFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a reaper scanning every interval for patches pending
// longer than window.
func New(ledger Ledger, window, interval time.Duration, requeue RequeueFunc) *Reaper {
	return &Reaper{
		ledger:   ledger,
		window:   window,
		interval: interval,
		requeue:  requeue,
	}
}

// Start launches the scan loop. It is a no-op if already running.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.stopped = make(chan struct{})

	go r.run(ctx, r.stopped)
}

// Stop terminates the scan loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	stopped := r.stopped
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (r *Reaper) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// One scan up front so gauges are populated at startup.
	r.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Scan(ctx)
		}
	}
}

// Scan performs a single expiry pass: refresh gauges, log expired
// patches, and invoke the requeue hook when any are found.
func (r *Reaper) Scan(ctx context.Context) {
	if count, err := r.ledger.PendingPatchCount(ctx); err == nil {
		metrics.PendingPatches.Set(float64(count))
	} else {
		logrus.WithError(err).Warn("Failed to count pending patches")
	}

	if jobs, err := r.ledger.PendingJobs(ctx); err == nil {
		metrics.PendingJobs.Set(float64(len(jobs)))
	} else {
		logrus.WithError(err).Warn("Failed to list pending jobs")
	}

	expired, err := r.ledger.ExpiredPendingPatches(ctx, r.window)
	if err != nil {
		logrus.WithError(err).Warn("Failed to scan for expired pending patches")
		return
	}

	metrics.ExpiredPendingPatches.Set(float64(len(expired)))

	if len(expired) == 0 {
		return
	}

	logrus.WithFields(logrus.Fields{
		"patches": expired,
		"window":  r.window.String(),
	}).Info("Requeueing expired pending patches")

	if r.requeue != nil {
		r.requeue(ctx, expired)
	}
}
