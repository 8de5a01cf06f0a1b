package models

import "errors"

// Engine failure taxonomy. All of these are caught at the Strategy
// Dispatcher boundary (or the alert-send call site for ErrDispatch) and
// converted into degraded outcomes plus a LogEntry.Error string; none may
// escape to crash a scheduler tick. The names below appear verbatim in log
// entries, so keep them stable.
var (
	ErrScriptTimeout             = errors.New("ScriptTimeout")
	ErrScriptContractViolation   = errors.New("ScriptContractViolation")
	ErrMalformedJudgmentResponse = errors.New("MalformedJudgmentResponse")
	ErrTransientProvider         = errors.New("TransientProviderError")
	ErrConfiguration             = errors.New("ConfigurationError")
	ErrDispatch                  = errors.New("DispatchError")
)
