package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SigWatch/internal/domain/models"
)

type fakeState struct {
	mu      sync.Mutex
	signals map[string]models.Signal
	getErr  error
	setErr  error
	sets    int
}

func newFakeState() *fakeState {
	return &fakeState{signals: make(map[string]models.Signal)}
}

func (f *fakeState) Get(_ context.Context, entityID string) (models.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return models.SignalWait, f.getErr
	}
	if s, ok := f.signals[entityID]; ok {
		return s, nil
	}
	return models.SignalWait, nil
}

func (f *fakeState) Set(_ context.Context, entityID string, s models.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.signals[entityID] = s
	f.sets++
	return nil
}

func (f *fakeState) Close() error { return nil }

func (f *fakeState) current(entityID string) models.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.signals[entityID]; ok {
		return s
	}
	return models.SignalWait
}

type fakeRunLog struct {
	mu      sync.Mutex
	entries []*models.LogEntry
}

func (f *fakeRunLog) Append(_ context.Context, entry *models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRunLog) Recent(_ context.Context, entityID string, limit int) ([]*models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LogEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].EntityID == entityID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeRunLog) TrimBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRunLog) Close() error { return nil }

func (f *fakeRunLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeRunLog) last() *models.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	return f.entries[len(f.entries)-1]
}

type fakeAlerts struct {
	mu     sync.Mutex
	events []*models.AlertEvent
	err    error
}

func (f *fakeAlerts) Publish(_ context.Context, event *models.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAlerts) Close() error { return nil }

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type staticEvidence struct {
	data map[string]interface{}
	err  error
}

func (s *staticEvidence) Evidence(_ context.Context, _ *models.Entity) (map[string]interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.data == nil {
		return map[string]interface{}{}, nil
	}
	return s.data, nil
}

// fakeJudgment answers with a fixed outcome and counts invocations. An
// optional block channel lets single-flight tests hold a run open.
type fakeJudgment struct {
	mu      sync.Mutex
	calls   int
	outcome *models.AnalysisOutcome
	err     error
	block   chan struct{}
}

func (f *fakeJudgment) Analyze(ctx context.Context, _ *models.Entity, _ *models.JudgmentRequest) (*models.AnalysisOutcome, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.DegradedOutcome(models.SourceJudgment, "aborted"), ctx.Err()
		}
	}

	if f.err != nil {
		return models.DegradedOutcome(models.SourceJudgment, "failed"), f.err
	}
	out := *f.outcome
	return &out, nil
}

func (f *fakeJudgment) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(string, string)         {}
func (noopMetrics) RecordRunDuration(string, float64) {}
func (noopMetrics) RecordAlert(bool)                 {}
func (noopMetrics) RecordSuppression(string)         {}
func (noopMetrics) RecordError(string)               {}
func (noopMetrics) RecordJudgmentRetry()             {}
func (noopMetrics) SetInFlight(int)                  {}

// staticEntities serves a fixed entity list.
type staticEntities struct {
	list []*models.Entity
	err  error
}

func (s *staticEntities) List(_ context.Context) ([]*models.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func (s *staticEntities) Get(_ context.Context, id string) (*models.Entity, error) {
	for _, e := range s.list {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.New("entity not found")
}

type alwaysTrading struct{}

func (alwaysTrading) IsTradingDay(_ context.Context, _ time.Time) (bool, error) {
	return true, nil
}

type neverTrading struct{}

func (neverTrading) IsTradingDay(_ context.Context, _ time.Time) (bool, error) {
	return false, nil
}
