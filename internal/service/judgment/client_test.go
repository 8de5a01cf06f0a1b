package judgment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/pkg/logger"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func testEntity() *models.Entity {
	return &models.Entity{
		ID:       "ent-1",
		Name:     "Test Entity",
		Judgment: &models.JudgmentConfig{ID: "jc-1", Prompt: "watch for breakouts"},
	}
}

func testRequest() *models.JudgmentRequest {
	return &models.JudgmentRequest{
		EntityID: "ent-1",
		Evidence: map[string]interface{}{"close": 101.5},
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		chatReply(t, w, `{"signal":"BUY","urgency":"warning","message":"breakout above resistance","action":"open long"}`)
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), srv.URL, WithAPIKey("test-key"))
	out, err := c.Analyze(context.Background(), testEntity(), testRequest())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Signal != models.SignalBuy {
		t.Fatalf("signal = %v", out.Signal)
	}
	if out.Urgency != models.UrgencyWarning {
		t.Fatalf("urgency = %v", out.Urgency)
	}
	if out.Source != models.SourceJudgment {
		t.Fatalf("source = %v", out.Source)
	}
	if out.Action != "open long" {
		t.Fatalf("action = %q", out.Action)
	}
}

func TestAnalyzeFencedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "```json\n{\"signal\":\"SELL\",\"urgency\":\"info\",\"message\":\"drift down\"}\n```")
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), srv.URL)
	out, err := c.Analyze(context.Background(), testEntity(), testRequest())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Signal != models.SignalSell {
		t.Fatalf("signal = %v", out.Signal)
	}
}

func TestAnalyzeRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		chatReply(t, w, `{"signal":"WAIT","urgency":"info","message":"nothing notable"}`)
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), srv.URL,
		WithRetry(3, time.Millisecond, 5*time.Millisecond))
	out, err := c.Analyze(context.Background(), testEntity(), testRequest())
	if err != nil {
		t.Fatalf("analyze after retries: %v", err)
	}
	if out.Signal != models.SignalWait {
		t.Fatalf("signal = %v", out.Signal)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestAnalyzeMalformedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		chatReply(t, w, `{"signal":"MAYBE","urgency":"info","message":"?"}`)
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), srv.URL,
		WithRetry(3, time.Millisecond, 5*time.Millisecond))
	out, err := c.Analyze(context.Background(), testEntity(), testRequest())
	if !errors.Is(err, models.ErrMalformedJudgmentResponse) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if out == nil || out.Signal != models.SignalWait {
		t.Fatalf("expected degraded WAIT outcome, got %+v", out)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("malformed responses must not be retried, got %d attempts", got)
	}
}

func TestAnalyzeExhaustionFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), srv.URL,
		WithRetry(3, time.Millisecond, 5*time.Millisecond))
	out, err := c.Analyze(context.Background(), testEntity(), testRequest())
	if !errors.Is(err, models.ErrTransientProvider) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if out == nil || out.Signal != models.SignalWait || out.Urgency != models.UrgencyInfo {
		t.Fatalf("expected WAIT/info fallback, got %+v", out)
	}
}

func TestAnalyzeMissingRequiredField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"signal":"BUY","urgency":"info"}`)
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), srv.URL)
	_, err := c.Analyze(context.Background(), testEntity(), testRequest())
	if !errors.Is(err, models.ErrMalformedJudgmentResponse) {
		t.Fatalf("expected malformed error for missing message, got %v", err)
	}
}
