package app

import (
	"context"
	"syscall"
	"time"

	"pollguard/internal/domain"
)

const defaultPollInterval = 250 * time.Millisecond

// Terminator drives a set of service processes to zero survivors with
// escalating signals.
type Terminator struct {
	scanner  domain.ProcessScanner
	signaler domain.Signaler
	clock    domain.Clock
	logger   domain.Logger
}

// NewTerminator creates a Terminator that re-derives liveness from scanner.
func NewTerminator(sc domain.ProcessScanner, sg domain.Signaler, clk domain.Clock, lg domain.Logger) *Terminator {
	return &Terminator{
		scanner:  sc,
		signaler: sg,
		clock:    clk,
		logger:   lg,
	}
}

// Terminate sends the graceful signal to every record, polls until the grace
// period runs out, force-signals whatever is left and returns the survivors
// of one final scan. An empty input returns an empty report without touching
// the process table. If ctx is cancelled during the grace period nothing is
// escalated and the last known survivors are returned.
func (t *Terminator) Terminate(ctx context.Context, records []domain.ProcessRecord, policy domain.TerminatePolicy) domain.TerminationReport {
	var report domain.TerminationReport
	if len(records) == 0 {
		return report
	}

	interval := policy.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for _, r := range records {
		t.send(&report, r.PID, policy.GracefulSignal)
	}

	alive := records
	deadline := t.clock.Now().Add(policy.GracePeriod)
	for {
		alive = t.survivors(ctx, alive)
		if len(alive) == 0 {
			return report
		}
		// An operator cancel stops the escalation where it is.
		if ctx.Err() != nil {
			report.Residual = alive
			return report
		}
		remaining := deadline.Sub(t.clock.Now())
		if remaining <= 0 {
			break
		}
		t.clock.Sleep(ctx, min(interval, remaining))
	}

	for _, r := range alive {
		t.logger.Warn("process survived grace period, escalating",
			"pid", r.PID, "signal", policy.ForceSignal.String(), "grace", policy.GracePeriod)
		report.Escalated = append(report.Escalated, r)
		t.send(&report, r.PID, policy.ForceSignal)
	}

	t.clock.Sleep(ctx, policy.ForceWait)
	report.Residual = t.survivors(ctx, alive)
	return report
}

func (t *Terminator) send(report *domain.TerminationReport, pid int, sig syscall.Signal) {
	if err := t.signaler.Signal(pid, sig); err != nil {
		t.logger.Error("signal failed", "pid", pid, "signal", sig.String(), "err", err)
		report.SignalErrors = append(report.SignalErrors, domain.SignalOutcome{PID: pid, Signal: sig, Err: err})
		return
	}
	t.logger.Debug("signal sent", "pid", pid, "signal", sig.String())
}

// survivors rescans the process table. A failed scan cannot prove anything
// died, so the previous set is kept.
func (t *Terminator) survivors(ctx context.Context, previous []domain.ProcessRecord) []domain.ProcessRecord {
	procs, err := t.scanner.Scan(ctx)
	if err != nil {
		t.logger.Error("rescan failed, assuming processes still alive", "err", err)
		return previous
	}
	t.logger.Debug("rescan", "alive", len(procs))
	return procs
}
