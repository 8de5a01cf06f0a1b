package usecase

import (
	"context"
	"fmt"

	"SigWatch/internal/domain/models"
	domrepo "SigWatch/internal/domain/repository"
	"SigWatch/pkg/logger"
)

// Dispatcher selects and runs the analysis strategy for an entity. It
// never returns a nil outcome: every failure is folded into a degraded
// WAIT outcome plus a classifying error for the run log.
type Dispatcher struct {
	rules    domrepo.RuleExecutor
	judgment domrepo.JudgmentProvider
	evidence domrepo.EvidenceProvider
	metrics  domrepo.Metrics
	log      *logger.Logger
}

// NewDispatcher creates a strategy dispatcher.
func NewDispatcher(
	rules domrepo.RuleExecutor,
	judgment domrepo.JudgmentProvider,
	evidence domrepo.EvidenceProvider,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		rules:    rules,
		judgment: judgment,
		evidence: evidence,
		metrics:  metrics,
		log:      log,
	}
}

// Dispatch runs the entity's configured strategy. lastSignal feeds the
// hybrid funnel: an unchanged rule-layer signal skips the judgment call.
func (d *Dispatcher) Dispatch(ctx context.Context, entity *models.Entity, lastSignal models.Signal) (*models.AnalysisOutcome, error) {
	switch entity.Mode {
	case models.ModeRuleOnly:
		return d.runRule(ctx, entity)
	case models.ModeJudgmentOnly:
		return d.runJudgment(ctx, entity, "")
	case models.ModeHybrid:
		return d.runHybrid(ctx, entity, lastSignal)
	}

	err := fmt.Errorf("%w: unknown mode %q", models.ErrConfiguration, entity.Mode)
	d.configError(entity, err)
	return models.DegradedOutcome(models.SourceRule, "entity has an unknown analysis mode"), err
}

func (d *Dispatcher) runRule(ctx context.Context, entity *models.Entity) (*models.AnalysisOutcome, error) {
	result, err := d.executeRule(ctx, entity)
	if err != nil {
		out := models.DegradedOutcome(models.SourceRule, "rule script failed, degraded to WAIT")
		if result != nil {
			out.ScriptLog = result.CapturedLog
		}
		return out, err
	}
	return ruleOutcome(result), nil
}

func (d *Dispatcher) runJudgment(ctx context.Context, entity *models.Entity, ruleContext string) (*models.AnalysisOutcome, error) {
	if entity.Judgment == nil {
		err := fmt.Errorf("%w: entity %s mode %s has no judgment config", models.ErrConfiguration, entity.ID, entity.Mode)
		d.configError(entity, err)
		return models.DegradedOutcome(models.SourceJudgment, "judgment config missing"), err
	}

	evidence, err := d.evidence.Evidence(ctx, entity)
	if err != nil {
		err = fmt.Errorf("%w: evidence: %v", models.ErrTransientProvider, err)
		return models.DegradedOutcome(models.SourceJudgment, "evidence unavailable, degraded to WAIT"), err
	}

	req := &models.JudgmentRequest{
		EntityID:    entity.ID,
		Evidence:    evidence,
		RuleContext: ruleContext,
	}
	return d.judgment.Analyze(ctx, entity, req)
}

func (d *Dispatcher) runHybrid(ctx context.Context, entity *models.Entity, lastSignal models.Signal) (*models.AnalysisOutcome, error) {
	result, err := d.executeRule(ctx, entity)
	if err != nil {
		out := models.DegradedOutcome(models.SourceRule, "rule script failed, degraded to WAIT")
		if result != nil {
			out.ScriptLog = result.CapturedLog
		}
		return out, err
	}

	ruleSignal := result.AppliedSignal()
	if ruleSignal == lastSignal {
		// funnel: cheap rule evaluation gates the expensive judgment call
		out := ruleOutcome(result)
		out.Message = fmt.Sprintf("judgment skipped, rule signal %s unchanged", ruleSignal)
		return out, nil
	}

	out, err := d.runJudgment(ctx, entity, result.Message)
	if out.ScriptLog == "" {
		out.ScriptLog = result.CapturedLog
	}
	return out, err
}

func (d *Dispatcher) executeRule(ctx context.Context, entity *models.Entity) (*models.RuleResult, error) {
	if entity.RuleScript == nil {
		err := fmt.Errorf("%w: entity %s mode %s has no rule script", models.ErrConfiguration, entity.ID, entity.Mode)
		d.configError(entity, err)
		return nil, err
	}

	evidence, err := d.evidence.Evidence(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("%w: evidence: %v", models.ErrTransientProvider, err)
	}

	env := map[string]interface{}{
		"entity_id":   entity.ID,
		"entity_name": entity.Name,
	}
	for k, v := range evidence {
		env[k] = v
	}

	return d.rules.Execute(ctx, entity.RuleScript.Source, env)
}

func (d *Dispatcher) configError(entity *models.Entity, err error) {
	d.metrics.RecordError("configuration")
	d.log.Error("entity misconfigured",
		logger.String("entity_id", entity.ID),
		logger.Error(err),
	)
}

func ruleOutcome(result *models.RuleResult) *models.AnalysisOutcome {
	return &models.AnalysisOutcome{
		Signal:    result.AppliedSignal(),
		Urgency:   models.UrgencyInfo,
		Message:   result.Message,
		Source:    models.SourceRule,
		ScriptLog: result.CapturedLog,
	}
}
