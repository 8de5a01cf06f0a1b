package repository

import (
	"context"
	"time"

	"SigWatch/internal/domain/models"
)

// SignalStateStore is the durable per-entity last-known-signal mapping.
// Absence reads as WAIT so a first-ever BUY always counts as a change.
type SignalStateStore interface {
	Get(ctx context.Context, entityID string) (models.Signal, error)
	Set(ctx context.Context, entityID string, s models.Signal) error
	Close() error
}

// RunLogSink is the append-only record of runs. Append must bound its own
// write time; a sink failure is a diagnostic, never a reason to fail a run.
type RunLogSink interface {
	Append(ctx context.Context, entry *models.LogEntry) error
	Recent(ctx context.Context, entityID string, limit int) ([]*models.LogEntry, error)
	TrimBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// EntitySource reads monitored entities from the admin API.
type EntitySource interface {
	List(ctx context.Context) ([]*models.Entity, error)
	Get(ctx context.Context, id string) (*models.Entity, error)
}

// EvidenceProvider returns the data context fed to rule scripts and
// judgment calls. Opaque to the engine.
type EvidenceProvider interface {
	Evidence(ctx context.Context, entity *models.Entity) (map[string]interface{}, error)
}

// TradingCalendar answers whether a date is a trading day. Implementations
// are expected to cache per date.
type TradingCalendar interface {
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
}

// AlertPublisher hands a qualifying outcome to the alert transport. The
// actual delivery (email rendering etc.) happens outside this engine.
type AlertPublisher interface {
	Publish(ctx context.Context, event *models.AlertEvent) error
	Close() error
}

// RuleExecutor runs a user-supplied rule script against a context.
type RuleExecutor interface {
	Execute(ctx context.Context, source string, env map[string]interface{}) (*models.RuleResult, error)
}

// JudgmentProvider performs the natural-language judgment call.
type JudgmentProvider interface {
	Analyze(ctx context.Context, entity *models.Entity, req *models.JudgmentRequest) (*models.AnalysisOutcome, error)
}

// RateLimiter is the per-entity hourly alert counter. Count never mutates;
// Increment is called only when an alert is actually dispatched.
type RateLimiter interface {
	Count(ctx context.Context, entityID string, now time.Time) (int, error)
	Increment(ctx context.Context, entityID string, now time.Time) error
}

// Metrics records engine observability signals.
type Metrics interface {
	RecordRun(mode, source string)
	RecordRunDuration(mode string, seconds float64)
	RecordAlert(sent bool)
	RecordSuppression(reason string)
	RecordError(kind string)
	RecordJudgmentRetry()
	SetInFlight(n int)
}
