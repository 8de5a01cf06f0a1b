package usecase

import (
	"testing"

	"SigWatch/internal/domain/models"
	"SigWatch/internal/service/ratelimit"
	"SigWatch/pkg/logger"
)

func TestDecideOrdering(t *testing.T) {
	gate := NewAlertGate(newFakeState(), ratelimit.NewMemoryLimiter(), noopMetrics{}, logger.Nop())

	outcome := func(s models.Signal, u models.Urgency) *models.AnalysisOutcome {
		return &models.AnalysisOutcome{Signal: s, Urgency: u, Message: "m", Source: models.SourceJudgment}
	}

	cases := []struct {
		name     string
		outcome  *models.AnalysisOutcome
		last     models.Signal
		sent     int
		policy   models.AlertPolicy
		wantSend bool
		reason   string
	}{
		{
			name:    "unchanged wins over everything",
			outcome: outcome(models.SignalBuy, models.UrgencyError),
			last:    models.SignalBuy,
			sent:    99,
			policy:  models.AlertPolicy{AllowedSignals: []models.Signal{models.SignalSell}},
			reason:  models.ReasonSignalUnchanged,
		},
		{
			name:    "signal whitelist checked before urgency",
			outcome: outcome(models.SignalWait, models.UrgencyError),
			last:    models.SignalBuy,
			policy: models.AlertPolicy{
				AllowedSignals:   []models.Signal{models.SignalBuy, models.SignalSell},
				AllowedUrgencies: []models.Urgency{models.UrgencyInfo},
			},
			reason: models.ReasonSignalNotAllowed,
		},
		{
			name:    "urgency whitelist",
			outcome: outcome(models.SignalBuy, models.UrgencyInfo),
			last:    models.SignalWait,
			policy: models.AlertPolicy{
				AllowedUrgencies: []models.Urgency{models.UrgencyError},
			},
			reason: models.ReasonUrgencyNotAllowed,
		},
		{
			name:    "rate limited",
			outcome: outcome(models.SignalBuy, models.UrgencyInfo),
			last:    models.SignalWait,
			sent:    2,
			policy:  models.AlertPolicy{MaxPerHour: 2},
			reason:  models.ReasonRateLimited,
		},
		{
			name:     "strong bypass over rate limit",
			outcome:  outcome(models.SignalStrongBuy, models.UrgencyInfo),
			last:     models.SignalWait,
			sent:     2,
			policy:   models.AlertPolicy{MaxPerHour: 2, StrongBypass: true},
			wantSend: true,
		},
		{
			name:    "bypass does not cover ordinary signals",
			outcome: outcome(models.SignalBuy, models.UrgencyInfo),
			last:    models.SignalWait,
			sent:    2,
			policy:  models.AlertPolicy{MaxPerHour: 2, StrongBypass: true},
			reason:  models.ReasonRateLimited,
		},
		{
			name:     "zero max means unlimited",
			outcome:  outcome(models.SignalBuy, models.UrgencyInfo),
			last:     models.SignalWait,
			sent:     500,
			policy:   models.AlertPolicy{},
			wantSend: true,
		},
		{
			name:     "clean send",
			outcome:  outcome(models.SignalSell, models.UrgencyWarning),
			last:     models.SignalBuy,
			sent:     0,
			policy:   models.AlertPolicy{MaxPerHour: 5},
			wantSend: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Decide(tc.outcome, tc.last, tc.sent, &tc.policy)
			if d.Send != tc.wantSend {
				t.Fatalf("send = %v, want %v", d.Send, tc.wantSend)
			}
			if d.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", d.Reason, tc.reason)
			}
		})
	}
}
