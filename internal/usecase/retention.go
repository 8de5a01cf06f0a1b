package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "SigWatch/internal/domain/repository"
	"SigWatch/pkg/logger"
)

// RetentionOption configures Retention.
type RetentionOption func(*Retention)

// Retention periodically trims run log entries older than the retention
// window. It runs independently of the hot run path and shares no locks
// with it.
type Retention struct {
	runlog    domrepo.RunLogSink
	log       *logger.Logger
	retention time.Duration
	interval  time.Duration

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewRetention creates the run log maintenance task.
func NewRetention(runlog domrepo.RunLogSink, log *logger.Logger, opts ...RetentionOption) *Retention {
	r := &Retention{
		runlog:    runlog,
		log:       log,
		retention: 72 * time.Hour,
		interval:  time.Hour,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithRetentionWindow sets how long entries are kept.
func WithRetentionWindow(d time.Duration) RetentionOption {
	return func(r *Retention) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithTrimInterval sets how often the trim runs.
func WithTrimInterval(d time.Duration) RetentionOption {
	return func(r *Retention) {
		if d > 0 {
			r.interval = d
		}
	}
}

// Start launches the trim loop.
func (r *Retention) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop halts the trim loop.
func (r *Retention) Stop() {
	r.stopped.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

func (r *Retention) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.trimOnce(ctx, time.Now())
		}
	}
}

func (r *Retention) trimOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-r.retention)
	removed, err := r.runlog.TrimBefore(ctx, cutoff)
	if err != nil {
		r.log.Error("run log trim failed", logger.Error(err))
		return
	}
	r.log.Info("run log trimmed",
		logger.String("cutoff", cutoff.Format(time.RFC3339)),
		logger.Int64("removed", removed),
	)
}
