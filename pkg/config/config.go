package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Engine struct {
		TickInterval time.Duration `yaml:"tick_interval" default:"10s"`
		Workers      int           `yaml:"workers" default:"8" validate:"gt=0"`
		RunMargin    time.Duration `yaml:"run_margin" default:"10s"`
		Timezone     string        `yaml:"timezone" default:"Local"`
	} `yaml:"engine"`

	AdminAPI struct {
		BaseURL  string        `yaml:"base_url" validate:"required"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"15s"`
	} `yaml:"admin_api"`

	Evidence struct {
		BaseURL string        `yaml:"base_url" validate:"required"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"evidence"`

	Calendar struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"calendar"`

	RuleScript struct {
		Timeout time.Duration `yaml:"timeout" default:"5s"`
		MaxOps  int           `yaml:"max_ops" default:"10000" validate:"gt=0"`
	} `yaml:"rule_script"`

	Judgment struct {
		Endpoint    string        `yaml:"endpoint" validate:"required"`
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model" default:"gpt-4o-mini"`
		Timeout     time.Duration `yaml:"timeout" default:"30s"`
		MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gt=0"`
		BackoffBase time.Duration `yaml:"backoff_base" default:"500ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	} `yaml:"judgment"`

	State struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		Redis   Redis  `yaml:"redis"`
	} `yaml:"state"`

	RunLog struct {
		Backend      string        `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"2s"`
		Retention    time.Duration `yaml:"retention" default:"72h"`
		TrimInterval time.Duration `yaml:"trim_interval" default:"1h"`
		MaxInMemory  int           `yaml:"max_in_memory" default:"1000"`
		ClickHouse   struct {
			Host         string        `yaml:"host"`
			Port         int           `yaml:"port" default:"9000"`
			Database     string        `yaml:"database" default:"sigwatch"`
			User         string        `yaml:"user" default:"default"`
			Password     string        `yaml:"password"`
			DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"clickhouse"`
	} `yaml:"runlog"`

	Alerts struct {
		Transport string `yaml:"transport" default:"kafka" validate:"oneof=kafka webhook"`
		Kafka     struct {
			Brokers      []string      `yaml:"brokers"`
			Topic        string        `yaml:"topic" default:"sigwatch.alerts"`
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"gzip"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"kafka"`
		Webhook struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"webhook"`
		Defaults AlertDefaults `yaml:"defaults"`
	} `yaml:"alerts"`

	RateLimit struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		Redis   Redis  `yaml:"redis"`
	} `yaml:"rate_limit"`
}

// Redis holds connection settings shared by the state store and rate limiter.
type Redis struct {
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" default:"0"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
}

// AlertDefaults is the alert policy applied when an entity does not carry
// its own overrides.
type AlertDefaults struct {
	AllowedSignals   []string `yaml:"allowed_signals" default:"[\"STRONG_SELL\",\"SELL\",\"BUY\",\"STRONG_BUY\"]"`
	AllowedUrgencies []string `yaml:"allowed_urgencies" default:"[\"info\",\"warning\",\"error\"]"`
	MaxPerHour       int      `yaml:"max_per_hour" default:"2" validate:"gte=0"`
	StrongBypass     bool     `yaml:"strong_bypass" default:"true"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SIGWATCH_JUDGMENT_API_KEY"); v != "" {
		c.Judgment.APIKey = v
	}
	if v := os.Getenv("SIGWATCH_JUDGMENT_ENDPOINT"); v != "" {
		c.Judgment.Endpoint = v
	}
	if v := os.Getenv("SIGWATCH_ADMIN_API_URL"); v != "" {
		c.AdminAPI.BaseURL = v
	}
	if v := os.Getenv("SIGWATCH_KAFKA_BROKERS"); v != "" {
		c.Alerts.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SIGWATCH_REDIS_HOST"); v != "" {
		c.State.Redis.Host = v
		c.RateLimit.Redis.Host = v
	}
	if v := os.Getenv("SIGWATCH_CLICKHOUSE_HOST"); v != "" {
		c.RunLog.ClickHouse.Host = v
	}

	return c, nil
}

// Validate checks struct tags plus the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Alerts.Transport == "kafka" && len(c.Alerts.Kafka.Brokers) == 0 {
		return fmt.Errorf("alerts.kafka.brokers is required for kafka transport")
	}
	if c.Alerts.Transport == "webhook" && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.url is required for webhook transport")
	}
	if c.RunLog.Backend == "clickhouse" && c.RunLog.ClickHouse.Host == "" {
		return fmt.Errorf("runlog.clickhouse.host is required for clickhouse backend")
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	return nil
}

// Location resolves the engine timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
