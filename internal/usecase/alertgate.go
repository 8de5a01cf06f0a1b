package usecase

import (
	"context"
	"fmt"
	"time"

	"SigWatch/internal/domain/models"
	domrepo "SigWatch/internal/domain/repository"
	"SigWatch/pkg/logger"
)

// AlertGate decides whether an outcome may produce an alert and owns the
// state writes around that decision. Signal-change comparison is the only
// deduplication mechanism: message text never enters the decision.
type AlertGate struct {
	state   domrepo.SignalStateStore
	limiter domrepo.RateLimiter
	metrics domrepo.Metrics
	log     *logger.Logger
}

// NewAlertGate creates an alert gate.
func NewAlertGate(
	state domrepo.SignalStateStore,
	limiter domrepo.RateLimiter,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *AlertGate {
	return &AlertGate{
		state:   state,
		limiter: limiter,
		metrics: metrics,
		log:     log,
	}
}

// Decide applies the gate's policy chain in order: signal change, signal
// whitelist, urgency whitelist, hourly rate limit with optional strong
// signal bypass.
func (g *AlertGate) Decide(outcome *models.AnalysisOutcome, lastSignal models.Signal, sentThisHour int, policy *models.AlertPolicy) models.AlertDecision {
	if outcome.Signal == lastSignal {
		return models.AlertDecision{Reason: models.ReasonSignalUnchanged}
	}
	if !policy.SignalAllowed(outcome.Signal) {
		return models.AlertDecision{Reason: models.ReasonSignalNotAllowed}
	}
	if !policy.UrgencyAllowed(outcome.Urgency) {
		return models.AlertDecision{Reason: models.ReasonUrgencyNotAllowed}
	}
	if policy.MaxPerHour > 0 && sentThisHour >= policy.MaxPerHour {
		if policy.StrongBypass && outcome.Signal.IsStrong() {
			return models.AlertDecision{Send: true}
		}
		return models.AlertDecision{Reason: models.ReasonRateLimited}
	}
	return models.AlertDecision{Send: true}
}

// Evaluate runs the full gate sequence for one outcome: read the rate
// limit, decide, persist the new signal, and count the alert if one will
// be sent. A rate-limited signal still advances state, so the next
// unchanged run suppresses as signal_unchanged rather than rate_limited.
// Dry runs still persist the new signal but never touch the alert counter.
func (g *AlertGate) Evaluate(ctx context.Context, entity *models.Entity, outcome *models.AnalysisOutcome, lastSignal models.Signal, now time.Time, dryRun bool) (models.AlertDecision, error) {
	sent, err := g.limiter.Count(ctx, entity.ID, now)
	if err != nil {
		return models.AlertDecision{}, fmt.Errorf("rate limit read: %w", err)
	}

	decision := g.Decide(outcome, lastSignal, sent, &entity.Alert)

	if err := g.state.Set(ctx, entity.ID, outcome.Signal); err != nil {
		return decision, fmt.Errorf("signal state write: %w", err)
	}

	if dryRun {
		return decision, nil
	}

	if decision.Send {
		if err := g.limiter.Increment(ctx, entity.ID, now); err != nil {
			// counter failure never blocks the alert itself
			g.metrics.RecordError("rate_limit")
			g.log.Warn("rate limit increment failed",
				logger.String("entity_id", entity.ID),
				logger.Error(err),
			)
		}
		g.metrics.RecordAlert(true)
	} else {
		g.metrics.RecordAlert(false)
		g.metrics.RecordSuppression(decision.Reason)
	}

	return decision, nil
}
