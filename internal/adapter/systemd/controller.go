// Package systemd drives a systemd unit through systemctl. The exit code is
// the only signal taken from systemctl; its human output is kept as detail.
package systemd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pollguard/internal/domain"
)

const defaultActionTimeout = 30 * time.Second

// Options configures a Controller.
type Options struct {
	Unit          string
	// User addresses the per-user manager (systemctl --user).
	User          bool
	ActionTimeout time.Duration
	Runner        Runner
	Logger        domain.Logger
}

// Controller implements domain.ServiceController.
type Controller struct {
	unit    string
	user    bool
	timeout time.Duration
	runner  Runner
	logger  domain.Logger
}

// NewController creates a controller for one unit.
func NewController(opts Options) *Controller {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	return &Controller{
		unit:    opts.Unit,
		user:    opts.User,
		timeout: opts.ActionTimeout,
		runner:  opts.Runner,
		logger:  opts.Logger,
	}
}

// Stop stops the unit. A failed or timed-out stop still counts when the
// unit is observed stopped afterwards.
func (c *Controller) Stop(ctx context.Context) error {
	if c.unit == "" {
		return domain.ErrUnitNotConfigured
	}
	err := c.action(ctx, "stop")
	if err == nil {
		return nil
	}
	if st := c.Status(ctx); st.State == domain.ServiceStopped {
		c.warn("stop reported failure but unit is stopped", "unit", c.unit, "err", err)
		return nil
	}
	return err
}

// Start starts the unit. A failed or timed-out start still counts when the
// unit is observed running afterwards.
func (c *Controller) Start(ctx context.Context) error {
	if c.unit == "" {
		return domain.ErrUnitNotConfigured
	}
	err := c.action(ctx, "start")
	if err == nil {
		return nil
	}
	if st := c.Status(ctx); st.State == domain.ServiceRunning {
		c.warn("start reported failure but unit is running", "unit", c.unit, "err", err)
		return nil
	}
	return err
}

// Status maps systemctl is-active onto domain.ServiceState. is-active exits
// non-zero for every state but active, so only its output is read.
func (c *Controller) Status(ctx context.Context) domain.ServiceStatus {
	if c.unit == "" {
		return domain.ServiceStatus{State: domain.ServiceFailed, Detail: domain.ErrUnitNotConfigured.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.runner.Run(ctx, "systemctl", c.args("is-active")...)
	if err != nil {
		return domain.ServiceStatus{State: domain.ServiceFailed, Detail: err.Error()}
	}
	return domain.ServiceStatus{State: parseActiveState(res.Stdout), Detail: res.Stdout}
}

func parseActiveState(out string) domain.ServiceState {
	switch strings.TrimSpace(out) {
	case "active", "activating", "reloading":
		return domain.ServiceRunning
	case "failed":
		return domain.ServiceFailed
	default:
		return domain.ServiceStopped
	}
}

func (c *Controller) action(ctx context.Context, verb string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.runner.Run(ctx, "systemctl", c.args(verb)...)
	if err != nil {
		return fmt.Errorf("systemctl %s %s: %w", verb, c.unit, err)
	}
	c.debug("systemctl finished", "verb", verb, "unit", c.unit, "exit", res.ExitCode)
	if res.ExitCode != 0 {
		if res.Stderr != "" {
			return fmt.Errorf("systemctl %s %s exited with code %d: %s", verb, c.unit, res.ExitCode, res.Stderr)
		}
		return fmt.Errorf("systemctl %s %s exited with code %d", verb, c.unit, res.ExitCode)
	}
	return nil
}

func (c *Controller) args(verb string) []string {
	args := make([]string, 0, 3)
	if c.user {
		args = append(args, "--user")
	}
	return append(args, verb, c.unit)
}

func (c *Controller) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Controller) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
