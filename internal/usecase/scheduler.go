package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SigWatch/internal/domain/models"
	domrepo "SigWatch/internal/domain/repository"
	"SigWatch/pkg/logger"
	"SigWatch/pkg/util"
)

// SchedulerOption configures Scheduler.
type SchedulerOption func(*Scheduler)

// Scheduler drives the engine: on every tick it walks the entity list
// and starts a run for each due entity. The tick loop only starts runs;
// it never waits for one to finish. Fan-out is bounded by a worker pool,
// and a full pool means the entity is retried next tick.
type Scheduler struct {
	entities domrepo.EntitySource
	calendar domrepo.TradingCalendar
	runner   *Runner
	metrics  domrepo.Metrics
	log      *logger.Logger

	tick    time.Duration
	loc     *time.Location
	sem     chan struct{}
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewScheduler creates the tick driver.
func NewScheduler(
	entities domrepo.EntitySource,
	calendar domrepo.TradingCalendar,
	runner *Runner,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		entities: entities,
		calendar: calendar,
		runner:   runner,
		metrics:  metrics,
		log:      log,
		tick:     10 * time.Second,
		loc:      time.Local,
		sem:      make(chan struct{}, 8),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTickInterval sets the scheduling tick.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithWorkers bounds concurrent runs.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithLocation sets the timezone used for schedule windows.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Info("scheduler started",
		logger.Duration("tick", s.tick),
		logger.Int("workers", cap(s.sem)),
	)
	return nil
}

// Stop halts the tick loop and waits for in-flight runs to drain.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tickOnce(ctx, time.Now().In(s.loc))
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context, now time.Time) {
	entities, err := s.entities.List(ctx)
	if err != nil {
		s.metrics.RecordError("entity_source")
		s.log.Error("entity list failed", logger.Error(err))
		return
	}

	for _, entity := range entities {
		if !s.due(ctx, entity, now) {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			// pool full, entity stays due for the next tick
			continue
		}

		s.wg.Add(1)
		go func(e *models.Entity) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			if _, err := s.runner.RunOne(ctx, e, false); err != nil {
				if errors.Is(err, ErrRunInFlight) {
					return
				}
				s.log.Warn("run finished with error",
					logger.String("entity_id", e.ID),
					logger.Error(err),
				)
			}
		}(entity)
	}
}

// due evaluates the scheduling predicate: enabled, inside a window,
// trading day if required, and interval elapsed since the last start.
func (s *Scheduler) due(ctx context.Context, entity *models.Entity, now time.Time) bool {
	if !entity.Enabled {
		return false
	}
	if !util.InAnyWindow(now, entity.Windows) {
		return false
	}
	if entity.TradeDaysOnly {
		trading, err := s.calendar.IsTradingDay(ctx, now)
		if err != nil || !trading {
			return false
		}
	}
	if last, ok := s.runner.LastStart(entity.ID); ok {
		if now.Sub(last) < entity.Interval {
			return false
		}
	}
	return true
}
