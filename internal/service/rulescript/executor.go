package rulescript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/pkg/logger"
)

// ExecutorOption configures Executor.
type ExecutorOption func(*Executor)

// Executor runs user-supplied rule scripts inside a bounded sandbox.
// Every execution enforces a wall-clock timeout and an operation budget,
// and the script contract: triggered and message must both be assigned.
type Executor struct {
	log     *logger.Logger
	timeout time.Duration
	maxOps  int
}

// NewExecutor creates a rule script executor.
func NewExecutor(log *logger.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		log:     log,
		timeout: 5 * time.Second,
		maxOps:  10000,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithTimeout sets the per-execution wall-clock timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxOps sets the per-execution operation budget.
func WithMaxOps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxOps = n
		}
	}
}

// Execute runs a script against a read-only context mapping and returns
// its outputs. Errors are returned, never panicked, so callers can fold
// them into a degraded outcome.
func (e *Executor) Execute(ctx context.Context, source string, env map[string]interface{}) (*models.RuleResult, error) {
	stmts, err := parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", models.ErrScriptContractViolation, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	in := newInterp(runCtx, env, e.maxOps)
	runErr := in.run(stmts)
	captured := in.logBuf.String()

	if runErr != nil {
		if errors.Is(runErr, models.ErrScriptTimeout) {
			return &models.RuleResult{CapturedLog: captured}, runErr
		}
		return &models.RuleResult{CapturedLog: captured}, fmt.Errorf("%w: %v", models.ErrScriptContractViolation, runErr)
	}

	result := &models.RuleResult{CapturedLog: captured}

	triggered, ok := in.vars["triggered"]
	if !ok {
		return result, fmt.Errorf("%w: script did not assign triggered", models.ErrScriptContractViolation)
	}
	tb, ok := triggered.(bool)
	if !ok {
		return result, fmt.Errorf("%w: triggered must be boolean", models.ErrScriptContractViolation)
	}
	result.Triggered = tb

	message, ok := in.vars["message"]
	if !ok {
		return result, fmt.Errorf("%w: script did not assign message", models.ErrScriptContractViolation)
	}
	ms, ok := message.(string)
	if !ok {
		return result, fmt.Errorf("%w: message must be string", models.ErrScriptContractViolation)
	}
	result.Message = ms

	if raw, ok := in.vars["signal"]; ok {
		s, ok := raw.(string)
		if !ok {
			return result, fmt.Errorf("%w: signal must be string", models.ErrScriptContractViolation)
		}
		sig, err := models.ParseSignal(s)
		if err != nil {
			return result, fmt.Errorf("%w: %v", models.ErrScriptContractViolation, err)
		}
		result.Signal = &sig
	}

	return result, nil
}
