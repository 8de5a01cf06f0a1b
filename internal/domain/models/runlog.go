package models

import "time"

// Alert suppression reasons, recorded verbatim in log entries.
const (
	ReasonSignalUnchanged  = "signal_unchanged"
	ReasonSignalNotAllowed = "signal_not_allowed"
	ReasonUrgencyNotAllowed = "urgency_not_allowed"
	ReasonRateLimited      = "rate_limited"
)

// AlertDecision is the Alert Gate's verdict for one run.
type AlertDecision struct {
	Send bool `json:"send"`
	// Reason is set only when Send is false.
	Reason string `json:"reason,omitempty"`
}

// LogEntry is the immutable record of one run. Exactly one entry is written
// per run, success or failure.
type LogEntry struct {
	EntityID        string           `json:"entity_id"`
	Timestamp       time.Time        `json:"timestamp"`
	Outcome         *AnalysisOutcome `json:"outcome,omitempty"`
	AlertSent       bool             `json:"alert_sent"`
	SuppressedReason string          `json:"alert_suppressed_reason,omitempty"`
	Error           string           `json:"error,omitempty"`
	DryRun          bool             `json:"dry_run,omitempty"`
	Duration        time.Duration    `json:"duration"`
}

// AlertEvent is the payload handed to the alert transport when a decision
// is send=true. The email worker downstream renders and delivers it.
type AlertEvent struct {
	EntityID   string           `json:"entity_id"`
	EntityName string           `json:"entity_name"`
	Outcome    *AnalysisOutcome `json:"outcome"`
	OccurredAt time.Time        `json:"occurred_at"`
}
