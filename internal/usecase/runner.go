package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"SigWatch/internal/domain/models"
	domrepo "SigWatch/internal/domain/repository"
	"SigWatch/pkg/logger"
)

// ErrRunInFlight is returned when a run is requested for an entity that
// already has one executing. Callers treat it as a skip, not a failure.
var ErrRunInFlight = errors.New("run already in flight")

// RunnerOption configures Runner.
type RunnerOption func(*Runner)

// Runner executes one complete analysis run for one entity: claim the
// single-flight slot, read last signal, dispatch the strategy, gate the
// alert, publish if allowed, and always write exactly one log entry.
type Runner struct {
	dispatcher *Dispatcher
	gate       *AlertGate
	state      domrepo.SignalStateStore
	runlog     domrepo.RunLogSink
	alerts     domrepo.AlertPublisher
	metrics    domrepo.Metrics
	log        *logger.Logger

	runTimeout      time.Duration
	logWriteTimeout time.Duration

	mu        sync.Mutex
	inflight  map[string]struct{}
	lastStart map[string]time.Time
}

// NewRunner creates a run executor.
func NewRunner(
	dispatcher *Dispatcher,
	gate *AlertGate,
	state domrepo.SignalStateStore,
	runlog domrepo.RunLogSink,
	alerts domrepo.AlertPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		dispatcher:      dispatcher,
		gate:            gate,
		state:           state,
		runlog:          runlog,
		alerts:          alerts,
		metrics:         metrics,
		log:             log,
		runTimeout:      60 * time.Second,
		logWriteTimeout: 2 * time.Second,
		inflight:        make(map[string]struct{}),
		lastStart:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithRunTimeout sets the overall per-run deadline. It should cover the
// script timeout plus the judgment timeout with margin.
func WithRunTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.runTimeout = d
		}
	}
}

// WithLogWriteTimeout bounds the run log append.
func WithLogWriteTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.logWriteTimeout = d
		}
	}
}

// LastStart returns when the entity's most recent run started.
func (r *Runner) LastStart(entityID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lastStart[entityID]
	return t, ok
}

// InFlight returns the number of currently executing runs.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

func (r *Runner) claim(entityID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[entityID]; busy {
		return false
	}
	r.inflight[entityID] = struct{}{}
	r.lastStart[entityID] = now
	r.metrics.SetInFlight(len(r.inflight))
	return true
}

func (r *Runner) release(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, entityID)
	r.metrics.SetInFlight(len(r.inflight))
}

// RunOne executes a single run. A second concurrent call for the same
// entity returns ErrRunInFlight without doing any work. Every executed
// run writes exactly one log entry, including aborted and failed ones.
func (r *Runner) RunOne(ctx context.Context, entity *models.Entity, dryRun bool) (*models.LogEntry, error) {
	start := time.Now()
	if !r.claim(entity.ID, start) {
		return nil, ErrRunInFlight
	}
	defer r.release(entity.ID)

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	entry := &models.LogEntry{
		EntityID:  entity.ID,
		Timestamp: start,
		DryRun:    dryRun,
	}

	var failures []string

	lastSignal, err := r.state.Get(runCtx, entity.ID)
	if err != nil {
		entry.Error = fmt.Sprintf("signal state read: %v", err)
		entry.Duration = time.Since(start)
		r.metrics.RecordError("state")
		r.appendEntry(entry)
		return entry, err
	}

	outcome, dispatchErr := r.dispatcher.Dispatch(runCtx, entity, lastSignal)
	entry.Outcome = outcome
	if dispatchErr != nil {
		failures = append(failures, dispatchErr.Error())
		r.metrics.RecordError(errorKind(dispatchErr))
	}

	decision, gateErr := r.gate.Evaluate(runCtx, entity, outcome, lastSignal, start, dryRun)
	if gateErr != nil {
		failures = append(failures, gateErr.Error())
		r.metrics.RecordError("state")
	} else {
		entry.SuppressedReason = decision.Reason
	}

	if gateErr == nil && decision.Send {
		if dryRun {
			entry.AlertSent = true
		} else if pubErr := r.publish(runCtx, entity, outcome, start); pubErr != nil {
			failures = append(failures, pubErr.Error())
			r.metrics.RecordError("dispatch")
		} else {
			entry.AlertSent = true
		}
	}

	entry.Error = strings.Join(failures, "; ")
	entry.Duration = time.Since(start)

	r.metrics.RecordRun(string(entity.Mode), string(outcome.Source))
	r.metrics.RecordRunDuration(string(entity.Mode), entry.Duration.Seconds())

	r.appendEntry(entry)

	if dispatchErr != nil {
		return entry, dispatchErr
	}
	return entry, gateErr
}

func (r *Runner) publish(ctx context.Context, entity *models.Entity, outcome *models.AnalysisOutcome, at time.Time) error {
	event := &models.AlertEvent{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Outcome:    outcome,
		OccurredAt: at,
	}
	if err := r.alerts.Publish(ctx, event); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDispatch, err)
	}
	return nil
}

// appendEntry writes the log entry on a fresh bounded context so an
// expired run deadline cannot suppress the record. Sink failures are
// diagnostics only.
func (r *Runner) appendEntry(entry *models.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.logWriteTimeout)
	defer cancel()
	if err := r.runlog.Append(ctx, entry); err != nil {
		r.metrics.RecordError("runlog")
		r.log.Error("run log append failed",
			logger.String("entity_id", entry.EntityID),
			logger.Error(err),
		)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrScriptTimeout):
		return "script_timeout"
	case errors.Is(err, models.ErrScriptContractViolation):
		return "script_contract"
	case errors.Is(err, models.ErrMalformedJudgmentResponse):
		return "judgment_malformed"
	case errors.Is(err, models.ErrTransientProvider):
		return "provider_transient"
	case errors.Is(err, models.ErrConfiguration):
		return "configuration"
	case errors.Is(err, models.ErrDispatch):
		return "dispatch"
	}
	return "other"
}
