package models

// Source identifies which analysis layer produced an outcome.
type Source string

const (
	SourceRule     Source = "rule"
	SourceJudgment Source = "judgment"
)

// AnalysisOutcome is the normalized result of one run for one entity.
// It is produced fresh every run and only ever persisted inside a LogEntry.
type AnalysisOutcome struct {
	Signal   Signal  `json:"signal"`
	Urgency  Urgency `json:"urgency"`
	Message  string  `json:"message"`
	Source   Source  `json:"source"`
	Action   string  `json:"action,omitempty"`
	Position string  `json:"position,omitempty"`

	// ScriptLog carries diagnostic output captured from the rule script.
	ScriptLog string `json:"script_log,omitempty"`
}

// DegradedOutcome builds the WAIT outcome used whenever a layer fails.
// The pipeline never aborts; it logs something and moves on.
func DegradedOutcome(source Source, message string) *AnalysisOutcome {
	return &AnalysisOutcome{
		Signal:  SignalWait,
		Urgency: UrgencyInfo,
		Message: message,
		Source:  source,
	}
}

// RuleResult is the raw output of a rule script execution before it is
// normalized into an AnalysisOutcome.
type RuleResult struct {
	Triggered bool
	Message   string
	// Signal is set only when the script assigned one explicitly.
	Signal      *Signal
	CapturedLog string
}

// AppliedSignal resolves the signal for a rule result: an explicit script
// assignment wins, otherwise triggered maps to BUY and not-triggered to WAIT.
func (r *RuleResult) AppliedSignal() Signal {
	if r.Signal != nil {
		return *r.Signal
	}
	if r.Triggered {
		return SignalBuy
	}
	return SignalWait
}

// JudgmentRequest is the evidence bundle handed to the judgment provider.
type JudgmentRequest struct {
	EntityID string
	Evidence map[string]interface{}
	// RuleContext carries the rule layer's trigger message in hybrid mode.
	RuleContext string
}
