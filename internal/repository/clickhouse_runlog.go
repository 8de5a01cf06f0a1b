package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SigWatch/internal/domain/models"
	pkgch "SigWatch/pkg/clickhouse"
	applogger "SigWatch/pkg/logger"
)

// RunLogSchema creates the execution log table. Fed to Client.InitSchema
// at startup, idempotent.
var RunLogSchema = []string{
	`CREATE TABLE IF NOT EXISTS run_log (
        entity_id       String,
        ts              DateTime64(3),
        signal          LowCardinality(String),
        urgency         LowCardinality(String),
        source          LowCardinality(String),
        message         String,
        outcome         String,
        alert_sent      UInt8,
        suppressed_reason LowCardinality(String),
        error           String,
        dry_run         UInt8,
        duration_ms     UInt32
    ) ENGINE = MergeTree()
    PARTITION BY toDate(ts)
    ORDER BY (entity_id, ts)`,
}

// CHRunLog is the ClickHouse-backed RunLogSink. Writes are bounded by a
// per-append timeout so a slow sink can never stall the run pipeline.
type CHRunLog struct {
	db           *sql.DB
	client       *pkgch.Client
	writeTimeout time.Duration
	l            *applogger.Logger
}

// NewCHRunLog creates a ClickHouse run log sink. It owns the client and
// closes it on Close.
func NewCHRunLog(ch *pkgch.Client, writeTimeout time.Duration, l *applogger.Logger) *CHRunLog {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &CHRunLog{db: ch.DB(), client: ch, writeTimeout: writeTimeout, l: l}
}

// Append inserts one entry.
func (s *CHRunLog) Append(ctx context.Context, entry *models.LogEntry) error {
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	var signal, urgency, source, message string
	var outcomeJSON []byte
	if entry.Outcome != nil {
		signal = entry.Outcome.Signal.String()
		urgency = string(entry.Outcome.Urgency)
		source = string(entry.Outcome.Source)
		message = entry.Outcome.Message
		outcomeJSON, _ = json.Marshal(entry.Outcome)
	}

	const q = `INSERT INTO run_log
        (entity_id, ts, signal, urgency, source, message, outcome, alert_sent, suppressed_reason, error, dry_run, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(wctx, q,
		entry.EntityID,
		entry.Timestamp,
		signal,
		urgency,
		source,
		message,
		string(outcomeJSON),
		boolToUInt8(entry.AlertSent),
		entry.SuppressedReason,
		entry.Error,
		boolToUInt8(entry.DryRun),
		uint32(entry.Duration.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("run log insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for an entity, newest first.
func (s *CHRunLog) Recent(ctx context.Context, entityID string, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT entity_id, ts, outcome, alert_sent, suppressed_reason, error, dry_run, duration_ms
        FROM run_log
        WHERE entity_id = ?
        ORDER BY ts DESC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("run log query: %w", err)
	}
	defer rows.Close()

	out := make([]*models.LogEntry, 0, limit)
	for rows.Next() {
		var (
			e          models.LogEntry
			outcome    string
			alertSent  uint8
			dryRun     uint8
			durationMS uint32
		)
		if err := rows.Scan(&e.EntityID, &e.Timestamp, &outcome, &alertSent, &e.SuppressedReason, &e.Error, &dryRun, &durationMS); err != nil {
			return nil, fmt.Errorf("run log scan: %w", err)
		}
		if outcome != "" {
			var o models.AnalysisOutcome
			if err := json.Unmarshal([]byte(outcome), &o); err == nil {
				e.Outcome = &o
			}
		}
		e.AlertSent = alertSent != 0
		e.DryRun = dryRun != 0
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run log rows: %w", err)
	}
	return out, nil
}

// TrimBefore issues an async delete mutation for entries older than
// cutoff. ClickHouse does not report affected rows for mutations, so the
// count is always zero.
func (s *CHRunLog) TrimBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `ALTER TABLE run_log DELETE WHERE ts < ?`
	if _, err := s.db.ExecContext(ctx, q, cutoff); err != nil {
		return 0, fmt.Errorf("run log trim: %w", err)
	}
	if s.l != nil {
		s.l.Info("run log trim submitted",
			applogger.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return 0, nil
}

// Close is a no-op; the ClickHouse client owns the pool.
func (s *CHRunLog) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
