package di

import (
	"context"
	"fmt"
	"time"

	"SigWatch/internal/domain/repository"
	"SigWatch/internal/handler/api"
	internalrepo "SigWatch/internal/repository"
	"SigWatch/internal/service/calendar"
	"SigWatch/internal/service/judgment"
	"SigWatch/internal/service/ratelimit"
	"SigWatch/internal/service/rulescript"
	"SigWatch/internal/usecase"
	"SigWatch/pkg/cache"
	pkgch "SigWatch/pkg/clickhouse"
	"SigWatch/pkg/config"
	pkgkafka "SigWatch/pkg/kafka"
	"SigWatch/pkg/logger"
	"SigWatch/pkg/metrics"
	"SigWatch/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func newRedisCache(rc config.Redis) (*cache.RedisCache, error) {
	return cache.NewRedisCache(
		cache.WithRedisAddr(rc.Host, rc.Port),
		cache.WithRedisAuth(rc.Password, rc.DB),
		cache.WithRedisPool(rc.PoolSize, rc.MinIdleConns, rc.PoolTimeout),
	)
}

// ProvideSignalStateStore creates the durable last-signal store. The redis
// backend survives restarts; memory is for single-node and test setups.
func ProvideSignalStateStore(cfg *config.Config) (repository.SignalStateStore, error) {
	if cfg.State.Backend == "redis" {
		rc, err := newRedisCache(cfg.State.Redis)
		if err != nil {
			return nil, fmt.Errorf("state redis: %w", err)
		}
		return internalrepo.NewCacheSignalStore(rc, rc.Close), nil
	}
	return internalrepo.NewCacheSignalStore(cache.NewMemoryCache(), nil), nil
}

// ProvideRateLimiter creates the hourly alert counter.
func ProvideRateLimiter(cfg *config.Config) (repository.RateLimiter, error) {
	if cfg.RateLimit.Backend == "redis" {
		rc, err := newRedisCache(cfg.RateLimit.Redis)
		if err != nil {
			return nil, fmt.Errorf("rate limit redis: %w", err)
		}
		return ratelimit.NewCacheLimiter(rc), nil
	}
	return ratelimit.NewMemoryLimiter(), nil
}

// ProvideRunLog creates the append-only execution log sink.
func ProvideRunLog(cfg *config.Config, l *logger.Logger) (repository.RunLogSink, error) {
	if cfg.RunLog.Backend != "clickhouse" {
		return internalrepo.NewMemoryRunLog(cfg.RunLog.MaxInMemory), nil
	}

	ch := cfg.RunLog.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithAsyncInsert(true, false),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.RunLogSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return internalrepo.NewCHRunLog(client, cfg.RunLog.WriteTimeout, l), nil
}

// ProvideKafkaProducer creates the Kafka producer when the alert transport
// is kafka. Returns nil for the webhook transport.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Alerts.Transport != "kafka" {
		return nil, nil
	}
	k := cfg.Alerts.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.MaxAttempts),
		pkgkafka.WithTimeouts(k.WriteTimeout, 10*time.Second),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertPublisher creates the alert transport.
func ProvideAlertPublisher(cfg *config.Config, producer *pkgkafka.Producer) (repository.AlertPublisher, error) {
	switch cfg.Alerts.Transport {
	case "kafka":
		return internalrepo.NewKafkaAlertPublisher(producer, cfg.Alerts.Kafka.Topic), nil
	case "webhook":
		return internalrepo.NewWebhookAlertPublisher(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Timeout), nil
	}
	return nil, fmt.Errorf("unknown alert transport %q", cfg.Alerts.Transport)
}

// ProvideEntitySource creates the cached admin API entity reader.
func ProvideEntitySource(cfg *config.Config, l *logger.Logger) repository.EntitySource {
	return internalrepo.NewHTTPEntitySource(
		cfg.AdminAPI.BaseURL,
		cfg.AdminAPI.Timeout,
		cfg.AdminAPI.CacheTTL,
		cache.NewMemoryCache(),
		cfg.Alerts.Defaults,
		l,
	)
}

// ProvideEvidenceProvider creates the evidence API reader.
func ProvideEvidenceProvider(cfg *config.Config) repository.EvidenceProvider {
	return internalrepo.NewHTTPEvidenceProvider(cfg.Evidence.BaseURL, cfg.Evidence.Timeout)
}

// ProvideTradingCalendar creates the trading day lookup. An empty base URL
// means every day counts as a trading day.
func ProvideTradingCalendar(cfg *config.Config, l *logger.Logger) repository.TradingCalendar {
	return calendar.New(l, cfg.Calendar.BaseURL, calendar.WithHTTPTimeout(cfg.Calendar.Timeout))
}

// ProvideRuleExecutor creates the rule script executor.
func ProvideRuleExecutor(cfg *config.Config, l *logger.Logger) repository.RuleExecutor {
	return rulescript.NewExecutor(l,
		rulescript.WithTimeout(cfg.RuleScript.Timeout),
		rulescript.WithMaxOps(cfg.RuleScript.MaxOps),
	)
}

// ProvideJudgmentProvider creates the judgment API client.
func ProvideJudgmentProvider(cfg *config.Config, l *logger.Logger, m repository.Metrics) repository.JudgmentProvider {
	return judgment.NewClient(l, cfg.Judgment.Endpoint,
		judgment.WithAPIKey(cfg.Judgment.APIKey),
		judgment.WithModel(cfg.Judgment.Model),
		judgment.WithRequestTimeout(cfg.Judgment.Timeout),
		judgment.WithRetry(cfg.Judgment.MaxAttempts, cfg.Judgment.BackoffBase, cfg.Judgment.BackoffMax),
		judgment.WithMetrics(m),
	)
}

// ProvideDispatcher creates the strategy dispatcher.
func ProvideDispatcher(
	rules repository.RuleExecutor,
	jp repository.JudgmentProvider,
	evidence repository.EvidenceProvider,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Dispatcher {
	return usecase.NewDispatcher(rules, jp, evidence, m, l)
}

// ProvideAlertGate creates the alert gate.
func ProvideAlertGate(
	state repository.SignalStateStore,
	limiter repository.RateLimiter,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.AlertGate {
	return usecase.NewAlertGate(state, limiter, m, l)
}

// ProvideRunner creates the run executor. The per-run deadline covers the
// script budget plus the full judgment retry window with a margin.
func ProvideRunner(
	cfg *config.Config,
	dispatcher *usecase.Dispatcher,
	gate *usecase.AlertGate,
	state repository.SignalStateStore,
	runlog repository.RunLogSink,
	alerts repository.AlertPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Runner {
	runTimeout := cfg.RuleScript.Timeout +
		time.Duration(cfg.Judgment.MaxAttempts)*cfg.Judgment.Timeout +
		cfg.Engine.RunMargin
	return usecase.NewRunner(dispatcher, gate, state, runlog, alerts, m, l,
		usecase.WithRunTimeout(runTimeout),
		usecase.WithLogWriteTimeout(cfg.RunLog.WriteTimeout),
	)
}

// ProvideScheduler creates the tick driver.
func ProvideScheduler(
	cfg *config.Config,
	entities repository.EntitySource,
	cal repository.TradingCalendar,
	runner *usecase.Runner,
	m repository.Metrics,
	l *logger.Logger,
) (*usecase.Scheduler, error) {
	loc := time.Local
	if tz := cfg.Engine.Timezone; tz != "" && tz != "Local" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("engine timezone: %w", err)
		}
	}
	return usecase.NewScheduler(entities, cal, runner, m, l,
		usecase.WithTickInterval(cfg.Engine.TickInterval),
		usecase.WithWorkers(cfg.Engine.Workers),
		usecase.WithLocation(loc),
	), nil
}

// ProvideRetention creates the run log trimmer.
func ProvideRetention(cfg *config.Config, runlog repository.RunLogSink, l *logger.Logger) *usecase.Retention {
	return usecase.NewRetention(runlog, l,
		usecase.WithRetentionWindow(cfg.RunLog.Retention),
		usecase.WithTrimInterval(cfg.RunLog.TrimInterval),
	)
}

// ProvideEngineHandler creates the HTTP handler surface.
func ProvideEngineHandler(
	l *logger.Logger,
	runner *usecase.Runner,
	entities repository.EntitySource,
	runlog repository.RunLogSink,
	state repository.SignalStateStore,
) *api.EngineHandler {
	return api.NewEngineHandler(l, runner, entities, runlog, state)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	scheduler *usecase.Scheduler,
	retention *usecase.Retention,
	handler *api.EngineHandler,
	producer *pkgkafka.Producer,
	state repository.SignalStateStore,
	runlog repository.RunLogSink,
	alerts repository.AlertPublisher,
) *server.App {
	return server.New(cfg, l, scheduler, retention, handler, producer, state, runlog, alerts)
}
