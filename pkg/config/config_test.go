package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
admin_api:
  base_url: http://admin.local
evidence:
  base_url: http://evidence.local
judgment:
  endpoint: http://llm.local/v1
alerts:
  transport: webhook
  webhook:
    url: http://hooks.local/alerts
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.TickInterval != 10*time.Second {
		t.Fatalf("unexpected tick interval %v", cfg.Engine.TickInterval)
	}
	if cfg.Engine.Workers != 8 {
		t.Fatalf("unexpected workers %d", cfg.Engine.Workers)
	}
	if cfg.Alerts.Defaults.MaxPerHour != 2 {
		t.Fatalf("unexpected max_per_hour %d", cfg.Alerts.Defaults.MaxPerHour)
	}
	if len(cfg.Alerts.Defaults.AllowedSignals) != 4 {
		t.Fatalf("unexpected allowed signals %v", cfg.Alerts.Defaults.AllowedSignals)
	}
	if cfg.State.Backend != "memory" {
		t.Fatalf("unexpected state backend %q", cfg.State.Backend)
	}
}

func TestLoadRejectsKafkaWithoutBrokers(t *testing.T) {
	body := `
environment: test
admin_api:
  base_url: http://admin.local
evidence:
  base_url: http://evidence.local
judgment:
  endpoint: http://llm.local/v1
alerts:
  transport: kafka
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected broker validation error")
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	body := minimalYAML + `
state:
  backend: etcd
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected backend validation error")
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("SIGWATCH_JUDGMENT_API_KEY", "sk-test")
	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Judgment.APIKey != "sk-test" {
		t.Fatalf("env override not applied")
	}
}
