package models

import (
	"time"

	"SigWatch/pkg/util"
)

// Mode selects the analysis strategy for an entity.
type Mode string

const (
	ModeRuleOnly     Mode = "rule_only"
	ModeJudgmentOnly Mode = "judgment_only"
	ModeHybrid       Mode = "hybrid"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRuleOnly, ModeJudgmentOnly, ModeHybrid:
		return true
	}
	return false
}

// RuleScript is a user-supplied rule, referenced by an entity.
type RuleScript struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// JudgmentConfig is the per-entity judgment provider configuration.
type JudgmentConfig struct {
	ID string `json:"id"`
	// Prompt is prepended to the evidence when asking the provider.
	Prompt string `json:"prompt,omitempty"`
	// Model overrides the engine-wide default model when set.
	Model string `json:"model,omitempty"`
}

// AlertPolicy controls which outcomes may produce an alert.
type AlertPolicy struct {
	AllowedSignals   []Signal  `json:"allowed_signals"`
	AllowedUrgencies []Urgency `json:"allowed_urgencies"`
	MaxPerHour       int       `json:"max_per_hour"`
	StrongBypass     bool      `json:"strong_bypass"`
}

// SignalAllowed reports whether s is in the policy whitelist.
// An empty whitelist allows everything.
func (p *AlertPolicy) SignalAllowed(s Signal) bool {
	if len(p.AllowedSignals) == 0 {
		return true
	}
	for _, allowed := range p.AllowedSignals {
		if s == allowed {
			return true
		}
	}
	return false
}

// UrgencyAllowed reports whether u is in the policy whitelist.
func (p *AlertPolicy) UrgencyAllowed(u Urgency) bool {
	if len(p.AllowedUrgencies) == 0 {
		return true
	}
	for _, allowed := range p.AllowedUrgencies {
		if u == allowed {
			return true
		}
	}
	return false
}

// Entity is a monitored subject. Records are owned by the admin API; the
// engine only reads them.
type Entity struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Windows       []util.Window `json:"-"`
	TradeDaysOnly bool          `json:"trade_days_only"`
	Interval      time.Duration `json:"interval"`
	Mode          Mode          `json:"mode"`

	RuleScript *RuleScript     `json:"rule_script,omitempty"`
	Judgment   *JudgmentConfig `json:"judgment,omitempty"`
	Alert      AlertPolicy     `json:"alert"`
}
