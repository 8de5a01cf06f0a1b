package usecase

import (
	"context"
	"testing"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/internal/repository"
	"SigWatch/pkg/logger"
)

func TestRetentionTrimsOldEntries(t *testing.T) {
	ctx := context.Background()
	sink := repository.NewMemoryRunLog(100)
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	ages := []time.Duration{100 * time.Hour, 80 * time.Hour, 10 * time.Hour, time.Hour}
	for _, age := range ages {
		_ = sink.Append(ctx, &models.LogEntry{EntityID: "ent-1", Timestamp: now.Add(-age)})
	}

	r := NewRetention(sink, logger.Nop(), WithRetentionWindow(72*time.Hour))
	r.trimOnce(ctx, now)

	recent, _ := sink.Recent(ctx, "ent-1", 100)
	if len(recent) != 2 {
		t.Fatalf("entries after trim = %d, want 2", len(recent))
	}
	for _, e := range recent {
		if now.Sub(e.Timestamp) > 72*time.Hour {
			t.Fatalf("entry older than retention survived: %v", e.Timestamp)
		}
	}
}
