package config

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Policy.Cooldown.Std() != 35*time.Second {
		t.Errorf("expected cooldown=35s, got %s", cfg.Policy.Cooldown.Std())
	}
	if cfg.Telegram.TokenEnv != "BOT_TOKEN" {
		t.Errorf("expected token_env=BOT_TOKEN, got %s", cfg.Telegram.TokenEnv)
	}
	if cfg.Policy.GracefulSignal != "SIGTERM" || cfg.Policy.ForceSignal != "SIGKILL" {
		t.Errorf("unexpected signals %s/%s", cfg.Policy.GracefulSignal, cfg.Policy.ForceSignal)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected default config without a service to fail validation")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
service:
  unit: quizbot.service
  binary_path: /srv/quizbot/bot.py
  working_directory: /srv/quizbot
telegram:
  token_env: QUIZBOT_TOKEN
  probe_timeout: 5s
policy:
  graceful_signal: INT
  grace_period: 20s
  cooldown: 1m
  user_units: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if cfg.Service.Unit != "quizbot.service" {
		t.Errorf("expected unit=quizbot.service, got %s", cfg.Service.Unit)
	}
	if cfg.Telegram.TokenEnv != "QUIZBOT_TOKEN" {
		t.Errorf("expected token_env=QUIZBOT_TOKEN, got %s", cfg.Telegram.TokenEnv)
	}
	if !cfg.Policy.UserUnits {
		t.Error("expected user_units=true")
	}
	// Unset keys keep defaults.
	if cfg.Telegram.APIURL != "https://api.telegram.org" {
		t.Errorf("expected default api_url, got %s", cfg.Telegram.APIURL)
	}
	if cfg.Policy.ForceSignal != "SIGKILL" {
		t.Errorf("expected default force_signal, got %s", cfg.Policy.ForceSignal)
	}

	ac, err := cfg.AppConfig()
	if err != nil {
		t.Fatalf("AppConfig() failed: %v", err)
	}
	if ac.Policy.GracefulSignal != syscall.SIGINT {
		t.Errorf("expected SIGINT, got %s", ac.Policy.GracefulSignal)
	}
	if ac.Policy.ForceSignal != syscall.SIGKILL {
		t.Errorf("expected SIGKILL, got %s", ac.Policy.ForceSignal)
	}
	if ac.Policy.GracePeriod != 20*time.Second {
		t.Errorf("expected grace_period=20s, got %s", ac.Policy.GracePeriod)
	}
	if ac.Cooldown != time.Minute {
		t.Errorf("expected cooldown=1m, got %s", ac.Cooldown)
	}
	if ac.ProbeTimeout != 5*time.Second {
		t.Errorf("expected probe_timeout=5s, got %s", ac.ProbeTimeout)
	}
	if ac.Identity.WorkingDirectory != "/srv/quizbot" {
		t.Errorf("expected working_directory=/srv/quizbot, got %s", ac.Identity.WorkingDirectory)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("QUIZBOT_HOME", "/opt/quizbot")
	path := writeConfig(t, `
service:
  unit: quizbot.service
  binary_path: ${QUIZBOT_HOME}/bot.py
evidence_log: ${POLLGUARD_UNSET_VAR:-/var/log/pollguard.jsonl}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Service.BinaryPath != "/opt/quizbot/bot.py" {
		t.Errorf("expected expanded binary_path, got %s", cfg.Service.BinaryPath)
	}
	if cfg.EvidenceLog != "/var/log/pollguard.jsonl" {
		t.Errorf("expected default evidence_log, got %s", cfg.EvidenceLog)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeConfig(t, `
policy:
  cooldown: thirty seconds
`)

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected error to name the line, got %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Service.Unit = "quizbot.service"
		cfg.Service.BinaryPath = "/srv/quizbot/bot.py"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"pattern only", func(c *Config) { c.Service.BinaryPath = ""; c.Service.ProcessNamePattern = `bot\.py` }, ""},
		{"missing unit", func(c *Config) { c.Service.Unit = "" }, "service.unit"},
		{"no identity", func(c *Config) { c.Service.BinaryPath = "" }, "service.binary_path"},
		{"bad pattern", func(c *Config) { c.Service.ProcessNamePattern = "(" }, "process_name_pattern"},
		{"bad signal", func(c *Config) { c.Policy.ForceSignal = "SIGNOPE" }, "policy.force_signal"},
		{"negative cooldown", func(c *Config) { c.Policy.Cooldown = Duration(-time.Second) }, "policy.cooldown"},
		{"zero probe timeout", func(c *Config) { c.Telegram.ProbeTimeout = 0 }, "telegram.probe_timeout must be positive"},
		{"zero attempts", func(c *Config) { c.Policy.Attempts = 0 }, "policy.attempts"},
		{"no token env", func(c *Config) { c.Telegram.TokenEnv = "" }, "telegram.token_env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	err := Default().Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "service.unit") || !strings.Contains(err.Error(), "service.binary_path") {
		t.Errorf("expected both service errors, got %v", err)
	}
}
