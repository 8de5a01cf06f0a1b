package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	apphttp "SigWatch/pkg/http"
	"SigWatch/pkg/logger"
	"SigWatch/pkg/util"
)

// Option configures Service.
type Option func(*Service)

// Service answers trading-day questions against an external calendar
// endpoint and caches each date's answer for the whole day. A missing
// endpoint or a lookup failure fails open: every day counts as a
// trading day so monitoring never silently stops.
type Service struct {
	httpc   *apphttp.Client
	baseURL string
	log     *logger.Logger

	mu    sync.RWMutex
	cache map[string]bool
}

// New creates a trading calendar service. An empty baseURL disables
// remote lookups entirely.
func New(log *logger.Logger, baseURL string, opts ...Option) *Service {
	s := &Service{
		httpc:   apphttp.NewClient(apphttp.WithTimeout(5 * time.Second)),
		baseURL: baseURL,
		log:     log,
		cache:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithHTTPTimeout sets the lookup timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.httpc = apphttp.NewClient(apphttp.WithTimeout(d))
		}
	}
}

type calendarResponse struct {
	Date       string `json:"date"`
	TradingDay bool   `json:"trading_day"`
}

// IsTradingDay reports whether date is a trading day.
func (s *Service) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	if s.baseURL == "" {
		return true, nil
	}

	key := util.DateKey(date)

	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	var resp calendarResponse
	err := s.httpc.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/api/calendar/%s", s.baseURL, key),
	}, &resp)
	if err != nil {
		s.log.Warn("calendar lookup failed, assuming trading day",
			logger.String("date", key),
			logger.Error(err),
		)
		return true, nil
	}

	s.mu.Lock()
	// drop stale keys so the map does not grow unbounded
	if len(s.cache) > 64 {
		s.cache = make(map[string]bool)
	}
	s.cache[key] = resp.TradingDay
	s.mu.Unlock()

	return resp.TradingDay, nil
}
