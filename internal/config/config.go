// Package config loads the pollguard YAML configuration.
//
// The file names one managed service, how to reach its Bot API session and
// the termination and cooldown policy. Values missing from the file keep
// their defaults. The bot token itself never lives in the file: the file only
// names the environment variable that holds it.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"pollguard/internal/adapter/signal"
	"pollguard/internal/app"
	"pollguard/internal/domain"
)

// Config is the complete pollguard configuration.
type Config struct {
	// Service identifies the managed unit and its poller processes.
	Service domain.ServiceIdentity `yaml:"service"`

	// Telegram configures the Bot API session endpoints.
	Telegram TelegramConfig `yaml:"telegram"`

	// Policy configures termination, cooldown and supervisor timing.
	Policy PolicyConfig `yaml:"policy"`

	// EvidenceLog is an optional append-only file receiving one JSON line
	// per recovery run.
	EvidenceLog string `yaml:"evidence_log"`
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	// TokenEnv names the environment variable holding the bot token.
	// Default: BOT_TOKEN
	TokenEnv string `yaml:"token_env"`

	// APIURL is the Bot API base URL.
	// Default: https://api.telegram.org
	APIURL string `yaml:"api_url"`

	// ProbeTimeout bounds the verification getUpdates call.
	// Default: 10s
	ProbeTimeout Duration `yaml:"probe_timeout"`
}

// PolicyConfig configures the recovery sequence.
type PolicyConfig struct {
	GracefulSignal string   `yaml:"graceful_signal"`
	ForceSignal    string   `yaml:"force_signal"`
	GracePeriod    Duration `yaml:"grace_period"`
	PollInterval   Duration `yaml:"poll_interval"`
	ForceWait      Duration `yaml:"force_wait"`

	// Cooldown is how long to wait between clearing the remote session and
	// starting the service. Telegram holds a long-poll for up to 30s.
	// Default: 35s
	Cooldown Duration `yaml:"cooldown"`

	// SettleDelay is the wait between start and the verification probe.
	SettleDelay Duration `yaml:"settle_delay"`

	// ActionTimeout bounds each systemctl call.
	ActionTimeout Duration `yaml:"action_timeout"`

	// UserUnits addresses the per-user systemd manager.
	UserUnits bool `yaml:"user_units"`

	// Attempts and Backoff configure re-invocation of unresolved runs.
	Attempts int      `yaml:"attempts"`
	Backoff  Duration `yaml:"backoff"`
}

// Duration is a time.Duration written as a Go duration string ("35s").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the default configuration. No service is configured, so
// Default alone does not validate.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			TokenEnv:     "BOT_TOKEN",
			APIURL:       "https://api.telegram.org",
			ProbeTimeout: Duration(10 * time.Second),
		},
		Policy: PolicyConfig{
			GracefulSignal: "SIGTERM",
			ForceSignal:    "SIGKILL",
			GracePeriod:    Duration(10 * time.Second),
			PollInterval:   Duration(500 * time.Millisecond),
			ForceWait:      Duration(2 * time.Second),
			Cooldown:       Duration(35 * time.Second),
			SettleDelay:    Duration(5 * time.Second),
			ActionTimeout:  Duration(30 * time.Second),
			Attempts:       1,
			Backoff:        Duration(time.Minute),
		},
	}
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Service.BinaryPath = expandVars(c.Service.BinaryPath)
	c.Service.WorkingDirectory = expandVars(c.Service.WorkingDirectory)
	c.EvidenceLog = expandVars(c.EvidenceLog)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Unit == "" {
		errs = append(errs, fmt.Errorf("service.unit is required"))
	}
	if c.Service.BinaryPath == "" && c.Service.ProcessNamePattern == "" {
		errs = append(errs, fmt.Errorf("service.binary_path or service.process_name_pattern is required"))
	}
	if c.Service.ProcessNamePattern != "" {
		if _, err := regexp.Compile(c.Service.ProcessNamePattern); err != nil {
			errs = append(errs, fmt.Errorf("service.process_name_pattern: %w", err))
		}
	}
	if c.Telegram.TokenEnv == "" {
		errs = append(errs, fmt.Errorf("telegram.token_env is required"))
	}
	if _, err := signal.Parse(c.Policy.GracefulSignal); err != nil {
		errs = append(errs, fmt.Errorf("policy.graceful_signal: %w", err))
	}
	if _, err := signal.Parse(c.Policy.ForceSignal); err != nil {
		errs = append(errs, fmt.Errorf("policy.force_signal: %w", err))
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"telegram.probe_timeout", c.Telegram.ProbeTimeout},
		{"policy.grace_period", c.Policy.GracePeriod},
		{"policy.poll_interval", c.Policy.PollInterval},
		{"policy.force_wait", c.Policy.ForceWait},
		{"policy.cooldown", c.Policy.Cooldown},
		{"policy.settle_delay", c.Policy.SettleDelay},
		{"policy.action_timeout", c.Policy.ActionTimeout},
		{"policy.backoff", c.Policy.Backoff},
	}
	for _, d := range durations {
		if d.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if c.Telegram.ProbeTimeout == 0 {
		errs = append(errs, errors.New("telegram.probe_timeout must be positive"))
	}
	if c.Policy.Attempts < 1 {
		errs = append(errs, fmt.Errorf("policy.attempts must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AppConfig converts the file form into the recovery service's runtime
// configuration. Call Validate first.
func (c *Config) AppConfig() (app.Config, error) {
	graceful, err := signal.Parse(c.Policy.GracefulSignal)
	if err != nil {
		return app.Config{}, fmt.Errorf("policy.graceful_signal: %w", err)
	}
	force, err := signal.Parse(c.Policy.ForceSignal)
	if err != nil {
		return app.Config{}, fmt.Errorf("policy.force_signal: %w", err)
	}
	return app.Config{
		Identity: c.Service,
		Policy: domain.TerminatePolicy{
			GracefulSignal: graceful,
			ForceSignal:    force,
			GracePeriod:    c.Policy.GracePeriod.Std(),
			PollInterval:   c.Policy.PollInterval.Std(),
			ForceWait:      c.Policy.ForceWait.Std(),
		},
		Cooldown:     c.Policy.Cooldown.Std(),
		SettleDelay:  c.Policy.SettleDelay.Std(),
		ProbeTimeout: c.Telegram.ProbeTimeout.Std(),
	}, nil
}
