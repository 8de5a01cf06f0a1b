package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SigWatch/internal/domain/models"
	"SigWatch/pkg/cache"
	"SigWatch/pkg/config"
	apphttp "SigWatch/pkg/http"
	applogger "SigWatch/pkg/logger"
	"SigWatch/pkg/util"
)

// ErrEntityNotFound is returned when the admin API has no such entity.
var ErrEntityNotFound = errors.New("entity not found")

// HTTPEntitySource reads entity records from the admin API. Lists are
// cached for a short TTL so every scheduler tick does not hammer the
// admin service.
type HTTPEntitySource struct {
	httpc    *apphttp.Client
	baseURL  string
	cache    cache.Service
	cacheTTL time.Duration
	defaults entityDefaults
	l        *applogger.Logger
}

type entityDefaults struct {
	signals   []models.Signal
	urgencies []models.Urgency
	maxHour   int
	bypass    bool
}

// NewHTTPEntitySource creates an admin-API entity source.
func NewHTTPEntitySource(baseURL string, timeout, cacheTTL time.Duration, c cache.Service, defs config.AlertDefaults, l *applogger.Logger) *HTTPEntitySource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := entityDefaults{maxHour: defs.MaxPerHour, bypass: defs.StrongBypass}
	for _, s := range defs.AllowedSignals {
		if sig, err := models.ParseSignal(s); err == nil {
			d.signals = append(d.signals, sig)
		}
	}
	for _, u := range defs.AllowedUrgencies {
		if models.Urgency(u).Valid() {
			d.urgencies = append(d.urgencies, models.Urgency(u))
		}
	}
	return &HTTPEntitySource{
		httpc:    apphttp.NewClient(apphttp.WithTimeout(timeout)),
		baseURL:  baseURL,
		cache:    c,
		cacheTTL: cacheTTL,
		defaults: d,
		l:        l,
	}
}

// entityDTO is the admin API wire format.
type entityDTO struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	MonitoringEnabled bool            `json:"monitoring_enabled"`
	Schedule          []string        `json:"schedule"`
	TradeDaysOnly     bool            `json:"trade_days_only"`
	IntervalSeconds   int             `json:"interval_seconds"`
	Mode              string          `json:"mode"`
	RuleScript        *ruleScriptDTO  `json:"rule_script,omitempty"`
	Judgment          *judgmentDTO    `json:"judgment,omitempty"`
	Alert             *alertPolicyDTO `json:"alert,omitempty"`
}

type ruleScriptDTO struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

type judgmentDTO struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model,omitempty"`
}

type alertPolicyDTO struct {
	AllowedSignals   []string `json:"allowed_signals,omitempty"`
	AllowedUrgencies []string `json:"allowed_urgencies,omitempty"`
	MaxPerHour       *int     `json:"max_per_hour,omitempty"`
	StrongBypass     *bool    `json:"strong_bypass,omitempty"`
}

type entityListResponse struct {
	Data []entityDTO `json:"data"`
}

type entityResponse struct {
	Data entityDTO `json:"data"`
}

const entityListCacheKey = "entities:list"

// List returns all registered entities.
func (s *HTTPEntitySource) List(ctx context.Context) ([]*models.Entity, error) {
	var dtos []entityDTO
	if s.cache != nil {
		if err := s.cache.Get(ctx, entityListCacheKey, &dtos); err == nil {
			return s.convertAll(dtos), nil
		}
	}

	var resp entityListResponse
	err := s.httpc.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    s.baseURL + "/api/entities",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, entityListCacheKey, resp.Data, s.cacheTTL); err != nil {
			s.l.Warn("entity list cache write failed", applogger.Error(err))
		}
	}
	return s.convertAll(resp.Data), nil
}

// Get returns one entity by id, bypassing the list cache.
func (s *HTTPEntitySource) Get(ctx context.Context, id string) (*models.Entity, error) {
	var resp entityResponse
	err := s.httpc.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/api/entities/%s", s.baseURL, id),
	}, &resp)
	if err != nil {
		if se, ok := apphttp.AsStatusError(err); ok && se.Code == 404 {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return s.convert(resp.Data), nil
}

func (s *HTTPEntitySource) convertAll(dtos []entityDTO) []*models.Entity {
	out := make([]*models.Entity, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, s.convert(dto))
	}
	return out
}

// convert maps a wire record into the engine model, applying defaults
// for any alert policy field the record leaves unset. Bad schedule
// windows are dropped with a warning rather than disabling the entity.
func (s *HTTPEntitySource) convert(dto entityDTO) *models.Entity {
	windows, err := util.ParseWindows(dto.Schedule)
	if err != nil {
		s.l.Warn("entity has an invalid schedule, ignoring windows",
			applogger.String("entity_id", dto.ID),
			applogger.Error(err),
		)
		windows = nil
	}

	e := &models.Entity{
		ID:            dto.ID,
		Name:          dto.Name,
		Enabled:       dto.MonitoringEnabled,
		Windows:       windows,
		TradeDaysOnly: dto.TradeDaysOnly,
		Interval:      time.Duration(dto.IntervalSeconds) * time.Second,
		Mode:          models.Mode(dto.Mode),
		Alert: models.AlertPolicy{
			AllowedSignals:   s.defaults.signals,
			AllowedUrgencies: s.defaults.urgencies,
			MaxPerHour:       s.defaults.maxHour,
			StrongBypass:     s.defaults.bypass,
		},
	}

	if dto.RuleScript != nil {
		e.RuleScript = &models.RuleScript{ID: dto.RuleScript.ID, Source: dto.RuleScript.Source}
	}
	if dto.Judgment != nil {
		e.Judgment = &models.JudgmentConfig{ID: dto.Judgment.ID, Prompt: dto.Judgment.Prompt, Model: dto.Judgment.Model}
	}
	if dto.Alert != nil {
		if len(dto.Alert.AllowedSignals) > 0 {
			e.Alert.AllowedSignals = e.Alert.AllowedSignals[:0:0]
			for _, raw := range dto.Alert.AllowedSignals {
				if sig, err := models.ParseSignal(raw); err == nil {
					e.Alert.AllowedSignals = append(e.Alert.AllowedSignals, sig)
				}
			}
		}
		if len(dto.Alert.AllowedUrgencies) > 0 {
			e.Alert.AllowedUrgencies = e.Alert.AllowedUrgencies[:0:0]
			for _, raw := range dto.Alert.AllowedUrgencies {
				if models.Urgency(raw).Valid() {
					e.Alert.AllowedUrgencies = append(e.Alert.AllowedUrgencies, models.Urgency(raw))
				}
			}
		}
		if dto.Alert.MaxPerHour != nil {
			e.Alert.MaxPerHour = *dto.Alert.MaxPerHour
		}
		if dto.Alert.StrongBypass != nil {
			e.Alert.StrongBypass = *dto.Alert.StrongBypass
		}
	}

	return e
}
