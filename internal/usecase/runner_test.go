package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/internal/service/ratelimit"
	"SigWatch/internal/service/rulescript"
	"SigWatch/pkg/logger"
)

type harness struct {
	state    *fakeState
	runlog   *fakeRunLog
	alerts   *fakeAlerts
	judgment *fakeJudgment
	limiter  *ratelimit.MemoryLimiter
	runner   *Runner
}

func newHarness(t *testing.T, judgment *fakeJudgment, evidence map[string]interface{}) *harness {
	t.Helper()
	log := logger.Nop()
	state := newFakeState()
	runlog := &fakeRunLog{}
	alerts := &fakeAlerts{}
	limiter := ratelimit.NewMemoryLimiter()

	dispatcher := NewDispatcher(
		rulescript.NewExecutor(log),
		judgment,
		&staticEvidence{data: evidence},
		noopMetrics{},
		log,
	)
	gate := NewAlertGate(state, limiter, noopMetrics{}, log)
	runner := NewRunner(dispatcher, gate, state, runlog, alerts, noopMetrics{}, log)

	return &harness{
		state:    state,
		runlog:   runlog,
		alerts:   alerts,
		judgment: judgment,
		limiter:  limiter,
		runner:   runner,
	}
}

func hybridEntity(script string) *models.Entity {
	return &models.Entity{
		ID:         "ent-1",
		Name:       "Hybrid Entity",
		Enabled:    true,
		Mode:       models.ModeHybrid,
		RuleScript: &models.RuleScript{ID: "rs-1", Source: script},
		Judgment:   &models.JudgmentConfig{ID: "jc-1"},
		Alert:      models.AlertPolicy{MaxPerHour: 10},
	}
}

func TestHybridEndToEnd(t *testing.T) {
	// rule fires BUY against a WAIT last signal, judgment confirms,
	// gate sends, state advances to BUY
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal:  models.SignalBuy,
		Urgency: models.UrgencyWarning,
		Message: "confirmed breakout",
		Source:  models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := hybridEntity(`triggered = true
message = "rule fired"`)

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if judgment.callCount() != 1 {
		t.Fatalf("judgment calls = %d, want 1", judgment.callCount())
	}
	if !entry.AlertSent {
		t.Fatalf("expected alert sent, entry: %+v", entry)
	}
	if entry.Outcome.Source != models.SourceJudgment {
		t.Fatalf("source = %v, want judgment", entry.Outcome.Source)
	}
	if h.state.current("ent-1") != models.SignalBuy {
		t.Fatalf("state = %v, want BUY", h.state.current("ent-1"))
	}
	if h.alerts.count() != 1 {
		t.Fatalf("published alerts = %d, want 1", h.alerts.count())
	}
	if h.runlog.count() != 1 {
		t.Fatalf("log entries = %d, want exactly 1", h.runlog.count())
	}
}

func TestHybridSkipsJudgmentWhenRuleUnchanged(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	// not triggered maps to WAIT, matching the default last signal
	entity := hybridEntity(`triggered = false
message = "quiet"`)

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if judgment.callCount() != 0 {
		t.Fatalf("judgment calls = %d, want 0", judgment.callCount())
	}
	if entry.Outcome.Source != models.SourceRule {
		t.Fatalf("source = %v, want rule", entry.Outcome.Source)
	}
	if !strings.Contains(entry.Outcome.Message, "skipped") {
		t.Fatalf("message should note the skip: %q", entry.Outcome.Message)
	}
	if entry.AlertSent {
		t.Fatalf("unchanged signal must not alert")
	}
	if entry.SuppressedReason != models.ReasonSignalUnchanged {
		t.Fatalf("reason = %q, want signal_unchanged", entry.SuppressedReason)
	}
}

func TestSignalUnchangedSuppressedRegardlessOfMessage(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "first wording", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Name: "J", Enabled: true,
		Mode:     models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
	}

	if _, err := h.runner.RunOne(context.Background(), entity, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if h.alerts.count() != 1 {
		t.Fatalf("first change should alert")
	}

	// same signal, different prose
	judgment.outcome.Message = "completely different wording"
	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if entry.AlertSent {
		t.Fatalf("unchanged signal alerted despite new message")
	}
	if entry.SuppressedReason != models.ReasonSignalUnchanged {
		t.Fatalf("reason = %q", entry.SuppressedReason)
	}
	if h.alerts.count() != 1 {
		t.Fatalf("alert count grew on unchanged signal")
	}
}

func TestSignalNotAllowedSuppression(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalSell, Urgency: models.UrgencyInfo, Message: "down", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
		Alert:    models.AlertPolicy{AllowedSignals: []models.Signal{models.SignalBuy}},
	}

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.AlertSent || entry.SuppressedReason != models.ReasonSignalNotAllowed {
		t.Fatalf("entry = %+v, want signal_not_allowed", entry)
	}
	// state still advances
	if h.state.current("ent-1") != models.SignalSell {
		t.Fatalf("state should advance to SELL even when suppressed")
	}
}

func TestUrgencyNotAllowedSuppression(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "up", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
		Alert: models.AlertPolicy{
			AllowedUrgencies: []models.Urgency{models.UrgencyError},
		},
	}

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.AlertSent || entry.SuppressedReason != models.ReasonUrgencyNotAllowed {
		t.Fatalf("entry = %+v, want urgency_not_allowed", entry)
	}
}

func TestRateLimitThirdChangeSuppressed(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
		Alert:    models.AlertPolicy{MaxPerHour: 2},
	}

	signals := []models.Signal{models.SignalBuy, models.SignalSell, models.SignalBuy}
	var entries []*models.LogEntry
	for _, sig := range signals {
		judgment.outcome.Signal = sig
		entry, err := h.runner.RunOne(context.Background(), entity, false)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		entries = append(entries, entry)
	}

	if !entries[0].AlertSent || !entries[1].AlertSent {
		t.Fatalf("first two changes should send")
	}
	if entries[2].AlertSent {
		t.Fatalf("third change should be rate limited")
	}
	if entries[2].SuppressedReason != models.ReasonRateLimited {
		t.Fatalf("reason = %q, want rate_limited", entries[2].SuppressedReason)
	}
	// rate-limited outcome still advanced the state
	if h.state.current("ent-1") != models.SignalBuy {
		t.Fatalf("state = %v, want BUY", h.state.current("ent-1"))
	}

	// unchanged follow-up run suppresses as signal_unchanged, not rate_limited
	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("follow-up run: %v", err)
	}
	if entry.SuppressedReason != models.ReasonSignalUnchanged {
		t.Fatalf("follow-up reason = %q, want signal_unchanged", entry.SuppressedReason)
	}
}

func TestStrongSignalBypassesRateLimit(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
		Alert:    models.AlertPolicy{MaxPerHour: 2, StrongBypass: true},
	}

	for _, sig := range []models.Signal{models.SignalBuy, models.SignalSell} {
		judgment.outcome.Signal = sig
		if _, err := h.runner.RunOne(context.Background(), entity, false); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	judgment.outcome.Signal = models.SignalStrongSell
	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !entry.AlertSent {
		t.Fatalf("strong signal should bypass the rate limit")
	}
}

func TestScriptContractViolationDegrades(t *testing.T) {
	h := newHarness(t, &fakeJudgment{}, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeRuleOnly,
		RuleScript: &models.RuleScript{ID: "rs-1", Source: `triggered = true`},
	}

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if !errors.Is(err, models.ErrScriptContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if !strings.Contains(entry.Error, "ScriptContractViolation") {
		t.Fatalf("log entry error = %q", entry.Error)
	}
	if entry.Outcome.Signal != models.SignalWait {
		t.Fatalf("degraded outcome should be WAIT")
	}
	if h.runlog.count() != 1 {
		t.Fatalf("exactly one log entry expected")
	}
}

func TestConfigurationErrorMissingScript(t *testing.T) {
	h := newHarness(t, &fakeJudgment{}, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeRuleOnly,
	}

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(entry.Error, "ConfigurationError") {
		t.Fatalf("entry error = %q", entry.Error)
	}
	if entry.Outcome.Signal != models.SignalWait {
		t.Fatalf("expected degraded WAIT outcome")
	}
}

func TestSingleFlight(t *testing.T) {
	block := make(chan struct{})
	judgment := &fakeJudgment{
		outcome: &models.AnalysisOutcome{
			Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
		},
		block: block,
	}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
	}

	var wg sync.WaitGroup
	var firstErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = h.runner.RunOne(context.Background(), entity, false)
	}()

	// wait until the first run holds the claim inside the judgment call
	deadline := time.Now().Add(time.Second)
	for judgment.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first run never reached judgment")
		}
		time.Sleep(time.Millisecond)
	}

	// while the first run is in flight, a second attempt is a no-op
	if _, err := h.runner.RunOne(context.Background(), entity, false); !errors.Is(err, ErrRunInFlight) {
		t.Fatalf("second run: got %v, want ErrRunInFlight", err)
	}

	close(block)
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("first run: %v", firstErr)
	}
	if h.runlog.count() != 1 {
		t.Fatalf("only the executed run may log, got %d entries", h.runlog.count())
	}

	// claim released, a new run may start
	if _, err := h.runner.RunOne(context.Background(), entity, false); err != nil {
		t.Fatalf("run after release: %v", err)
	}
}

func TestDryRunSuppressesDispatchOnly(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
	}

	entry, err := h.runner.RunOne(context.Background(), entity, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !entry.DryRun {
		t.Fatalf("entry should be marked dry run")
	}
	if !entry.AlertSent {
		t.Fatalf("dry run should report the would-send decision")
	}
	if h.alerts.count() != 0 {
		t.Fatalf("dry run must not publish alerts")
	}
	if h.state.current("ent-1") != models.SignalBuy {
		t.Fatalf("dry run still advances state")
	}
	n, _ := h.limiter.Count(context.Background(), "ent-1", time.Now())
	if n != 0 {
		t.Fatalf("dry run must not touch the rate limit")
	}
	if h.runlog.count() != 1 {
		t.Fatalf("dry run still logs exactly once")
	}
}

func TestDispatchErrorRecordedStateKept(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	h.alerts.err = errors.New("broker down")
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
	}

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err != nil {
		t.Fatalf("dispatch failure must not fail the run: %v", err)
	}
	if entry.AlertSent {
		t.Fatalf("alert was not delivered")
	}
	if !strings.Contains(entry.Error, "DispatchError") {
		t.Fatalf("entry error = %q, want DispatchError", entry.Error)
	}
	// state write happened before the dispatch attempt and stays
	if h.state.current("ent-1") != models.SignalBuy {
		t.Fatalf("state must keep the BUY written before dispatch")
	}
}

func TestStateReadFailureAborts(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	h.state.getErr = errors.New("store offline")
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
	}

	entry, err := h.runner.RunOne(context.Background(), entity, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if entry == nil || entry.Error == "" {
		t.Fatalf("aborted run must still produce a log entry with error")
	}
	if judgment.callCount() != 0 {
		t.Fatalf("no dispatch when state is unreadable")
	}
	if h.runlog.count() != 1 {
		t.Fatalf("exactly one log entry expected")
	}
}

func TestStateAfterNRunsMatchesLastOutcome(t *testing.T) {
	judgment := &fakeJudgment{outcome: &models.AnalysisOutcome{
		Signal: models.SignalBuy, Urgency: models.UrgencyInfo, Message: "x", Source: models.SourceJudgment,
	}}
	h := newHarness(t, judgment, nil)
	entity := &models.Entity{
		ID: "ent-1", Enabled: true, Mode: models.ModeJudgmentOnly,
		Judgment: &models.JudgmentConfig{ID: "jc-1"},
	}

	sequence := []models.Signal{
		models.SignalBuy, models.SignalBuy, models.SignalStrongSell,
		models.SignalWait, models.SignalSell,
	}
	for _, sig := range sequence {
		judgment.outcome.Signal = sig
		entry, err := h.runner.RunOne(context.Background(), entity, false)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if h.state.current("ent-1") != entry.Outcome.Signal {
			t.Fatalf("state %v != outcome %v", h.state.current("ent-1"), entry.Outcome.Signal)
		}
	}
	if h.state.current("ent-1") != models.SignalSell {
		t.Fatalf("final state = %v, want SELL", h.state.current("ent-1"))
	}
}
