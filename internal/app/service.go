package app

import (
	"context"
	"fmt"
	"time"

	"pollguard/internal/domain"
)

// Config holds resolved runtime policy for one managed service.
type Config struct {
	Identity     domain.ServiceIdentity
	Policy       domain.TerminatePolicy
	Cooldown     time.Duration
	SettleDelay  time.Duration
	ProbeTimeout time.Duration
}

// Ports bundles the collaborators the Service drives. Webhook and Sink are
// optional.
type Ports struct {
	Scanner    domain.ProcessScanner
	Signaler   domain.Signaler
	Probe      domain.SessionProbe
	Resetter   domain.SessionResetter
	Webhook    domain.WebhookInspector
	Controller domain.ServiceController
	Clock      domain.Clock
	Sink       domain.EvidenceSink
	RunIDs     domain.RunIDGenerator
	Logger     domain.Logger
}

// Service runs the conflict recovery protocol for a single service.
type Service struct {
	cfg        Config
	scanner    domain.ProcessScanner
	probe      domain.SessionProbe
	resetter   domain.SessionResetter
	webhook    domain.WebhookInspector
	controller domain.ServiceController
	clock      domain.Clock
	sink       domain.EvidenceSink
	runIDs     domain.RunIDGenerator
	logger     domain.Logger
	terminator *Terminator
}

// NewService creates the application service with all dependencies injected.
func NewService(cfg Config, p Ports) *Service {
	return &Service{
		cfg:        cfg,
		scanner:    p.Scanner,
		probe:      p.Probe,
		resetter:   p.Resetter,
		webhook:    p.Webhook,
		controller: p.Controller,
		clock:      p.Clock,
		sink:       p.Sink,
		runIDs:     p.RunIDs,
		logger:     p.Logger,
		terminator: NewTerminator(p.Scanner, p.Signaler, p.Clock, p.Logger),
	}
}

// Recover runs the recovery sequence once: stop, terminate, reset, cool
// down, start, verify. Every step re-derives state from a fresh scan or
// probe, so re-invoking after an abandoned run is safe.
func (s *Service) Recover(ctx context.Context) domain.RecoveryVerdict {
	r := s.newRun()
	s.logger.Info("starting recovery", "run", r.id, "unit", s.cfg.Identity.Unit)

	if err := s.controller.Stop(ctx); err != nil {
		r.record(domain.PhaseStop, "stop %s reported failure, continuing: %v", s.cfg.Identity.Unit, err)
	} else {
		r.record(domain.PhaseStop, "stopped %s", s.cfg.Identity.Unit)
	}
	if r.cancelled(ctx, domain.PhaseStop) {
		return s.finish(r.abort(domain.KindCancelled, "cancelled after stop", nil))
	}

	procs, err := s.scanner.Scan(ctx)
	if err != nil {
		if r.cancelled(ctx, domain.PhaseScan) {
			return s.finish(r.abort(domain.KindCancelled, "cancelled during scan", nil))
		}
		r.record(domain.PhaseScan, "scan failed: %v", err)
		return s.finish(r.abort(domain.KindLocalProcessUnkillable, "process scan failed", nil))
	}
	r.record(domain.PhaseScan, "found %d matching process(es)", len(procs))
	for _, p := range procs {
		r.record(domain.PhaseScan, "match %s", p)
	}

	if len(procs) > 0 {
		report := s.terminator.Terminate(ctx, procs, s.cfg.Policy)
		for _, p := range report.Escalated {
			r.record(domain.PhaseTerminate, "pid %d survived %s, escalated to %s",
				p.PID, s.cfg.Policy.GracefulSignal, s.cfg.Policy.ForceSignal)
		}
		for _, so := range report.SignalErrors {
			r.record(domain.PhaseTerminate, "signal %s to pid %d failed: %v", so.Signal, so.PID, so.Err)
		}
		r.record(domain.PhaseTerminate, "%d residual process(es) after termination", len(report.Residual))
	} else {
		r.record(domain.PhaseTerminate, "nothing to terminate")
	}
	if r.cancelled(ctx, domain.PhaseTerminate) {
		return s.finish(r.abort(domain.KindCancelled, "cancelled during termination", nil))
	}

	// Reset must not race a live poller, so liveness is re-checked right
	// before it instead of trusting the terminator's last scan.
	residual, err := s.scanner.Scan(ctx)
	if err != nil {
		if r.cancelled(ctx, domain.PhaseScan) {
			return s.finish(r.abort(domain.KindCancelled, "cancelled before reset", nil))
		}
		r.record(domain.PhaseScan, "pre-reset scan failed: %v", err)
		return s.finish(r.abort(domain.KindLocalProcessUnkillable, "process scan failed", nil))
	}
	if len(residual) > 0 {
		for _, p := range residual {
			r.record(domain.PhaseTerminate, "still alive: %s", p)
		}
		return s.finish(r.abort(domain.KindLocalProcessUnkillable, "processes not terminable", residual))
	}
	if r.cancelled(ctx, domain.PhaseTerminate) {
		return s.finish(r.abort(domain.KindCancelled, "cancelled after termination", nil))
	}

	if res := s.resetter.Reset(ctx); res.OK {
		r.record(domain.PhaseReset, "remote session cleared: %s", res.Detail)
	} else {
		r.record(domain.PhaseReset, "remote session reset failed, continuing: %s", res.Detail)
	}
	if r.cancelled(ctx, domain.PhaseReset) {
		return s.finish(r.abort(domain.KindCancelled, "cancelled after reset", nil))
	}

	r.record(domain.PhaseCooldown, "waiting %s for the remote session lease to expire", s.cfg.Cooldown)
	s.clock.Sleep(ctx, s.cfg.Cooldown)
	if r.cancelled(ctx, domain.PhaseCooldown) {
		return s.finish(r.abort(domain.KindCancelled, "cancelled during cooldown", nil))
	}
	r.record(domain.PhaseCooldown, "cooldown elapsed")

	if err := s.controller.Start(ctx); err != nil {
		if r.cancelled(ctx, domain.PhaseRestart) {
			return s.finish(r.abort(domain.KindCancelled, "cancelled during start", nil))
		}
		r.record(domain.PhaseRestart, "start %s failed: %v", s.cfg.Identity.Unit, err)
		return s.finish(r.abort(domain.KindSupervisorFailure, fmt.Sprintf("start failed: %v", err), nil))
	}
	r.record(domain.PhaseRestart, "started %s", s.cfg.Identity.Unit)

	s.clock.Sleep(ctx, s.cfg.SettleDelay)
	if r.cancelled(ctx, domain.PhaseVerify) {
		return s.finish(r.abort(domain.KindCancelled, "cancelled before verification", nil))
	}

	pr := s.probe.Probe(ctx, s.cfg.ProbeTimeout)
	switch pr.Status {
	case domain.ProbeClear:
		r.record(domain.PhaseVerify, "probe clear, single poller confirmed")
		return s.finish(r.verdict(domain.OutcomeResolved, domain.KindNone, ""))
	case domain.ProbeConflict:
		r.record(domain.PhaseVerify, "probe still reports conflict: %s", pr.Detail)
		return s.finish(r.verdict(domain.OutcomeStillConflicting, domain.KindSessionConflict, "conflict persists after remediation"))
	default:
		r.record(domain.PhaseVerify, "probe failed, conflict cannot be ruled out: %s", pr.Detail)
		v := r.verdict(domain.OutcomeStillConflicting, domain.KindTransientRemote, pr.Detail)
		v.RetryAfter = pr.RetryAfter
		return s.finish(v)
	}
}

// RecoverWithRetry re-invokes Recover while the verdict is retryable, up to
// attempts times, waiting backoff*n before attempt n+1, or longer when the
// Bot API asked for a longer pause. Aborted runs are never retried.
func (s *Service) RecoverWithRetry(ctx context.Context, attempts int, backoff time.Duration) []domain.RecoveryVerdict {
	if attempts < 1 {
		attempts = 1
	}
	var verdicts []domain.RecoveryVerdict
	for n := 1; n <= attempts; n++ {
		v := s.Recover(ctx)
		verdicts = append(verdicts, v)
		if !v.Retryable() || n == attempts || ctx.Err() != nil {
			break
		}
		wait := max(backoff*time.Duration(n), v.RetryAfter)
		s.logger.Warn("recovery unresolved, retrying", "attempt", n, "kind", v.Kind, "wait", wait)
		s.clock.Sleep(ctx, wait)
	}
	return verdicts
}

// Diagnose inspects local processes, the supervisor and the remote session
// without changing anything.
func (s *Service) Diagnose(ctx context.Context) domain.Diagnosis {
	r := s.newRun()
	d := domain.Diagnosis{Service: s.controller.Status(ctx)}
	r.record(domain.PhaseStatus, "unit %s is %s %s", s.cfg.Identity.Unit, d.Service.State, d.Service.Detail)

	procs, err := s.scanner.Scan(ctx)
	if err != nil {
		r.record(domain.PhaseScan, "scan failed: %v", err)
	} else {
		d.Processes = procs
		r.record(domain.PhaseScan, "found %d matching process(es)", len(procs))
		if len(procs) > 1 {
			r.record(domain.PhaseScan, "more than one local poller is running")
		}
	}

	if s.webhook != nil {
		info, err := s.webhook.WebhookInfo(ctx)
		if err != nil {
			r.record(domain.PhaseProbe, "webhook info unavailable: %v", err)
		} else {
			d.Webhook = &info
			if info.URL != "" {
				r.record(domain.PhaseProbe, "webhook registered at %s, it competes with polling", info.URL)
			}
			r.record(domain.PhaseProbe, "%d pending update(s)", info.PendingUpdateCount)
		}
	}

	// The probe competes with a running poller; its verdict is sharpest
	// while the unit is stopped.
	d.Probe = s.probe.Probe(ctx, s.cfg.ProbeTimeout)
	switch d.Probe.Status {
	case domain.ProbeClear:
		d.Outcome = domain.OutcomeResolved
		r.record(domain.PhaseProbe, "probe clear")
	case domain.ProbeConflict:
		d.Outcome = domain.OutcomeStillConflicting
		r.record(domain.PhaseProbe, "session conflict: %s", d.Probe.Detail)
	default:
		d.Outcome = domain.OutcomeInconclusive
		r.record(domain.PhaseProbe, "probe error: %s", d.Probe.Detail)
	}
	d.Events = r.events
	return d
}

// Status reports the supervisor's view of the managed unit.
func (s *Service) Status(ctx context.Context) domain.ServiceStatus {
	return s.controller.Status(ctx)
}

// Scan lists processes currently classified as the service's poller.
func (s *Service) Scan(ctx context.Context) ([]domain.ProcessRecord, error) {
	return s.scanner.Scan(ctx)
}

func (s *Service) newRun() *run {
	id, err := s.runIDs.Generate()
	if err != nil {
		s.logger.Error("run id generation failed", "err", err)
		id = "unknown"
	}
	return &run{id: id, clock: s.clock, logger: s.logger}
}

// finish logs the verdict and hands it to the evidence sink.
func (s *Service) finish(v domain.RecoveryVerdict) domain.RecoveryVerdict {
	args := []any{"run", v.RunID, "outcome", v.Outcome}
	if v.Kind != domain.KindNone {
		args = append(args, "kind", v.Kind, "reason", v.Reason)
	}
	switch v.Outcome {
	case domain.OutcomeResolved:
		s.logger.Info("recovery finished", args...)
	case domain.OutcomeAborted:
		s.logger.Error("recovery aborted", args...)
	default:
		s.logger.Warn("recovery finished unresolved", args...)
	}
	if s.sink != nil {
		if err := s.sink.Append(v); err != nil {
			s.logger.Error("write evidence failed", "run", v.RunID, "err", err)
		}
	}
	return v
}

// run accumulates the evidence trail of one invocation.
type run struct {
	id     string
	clock  domain.Clock
	logger domain.Logger
	events []domain.ConflictEvent
}

func (r *run) record(phase domain.Phase, format string, args ...any) {
	detail := fmt.Sprintf(format, args...)
	r.events = append(r.events, domain.ConflictEvent{Time: r.clock.Now(), Phase: phase, Detail: detail})
	r.logger.Info(detail, "run", r.id, "phase", phase)
}

func (r *run) cancelled(ctx context.Context, phase domain.Phase) bool {
	if ctx.Err() == nil {
		return false
	}
	r.record(phase, "operator cancelled: %v", ctx.Err())
	return true
}

func (r *run) abort(kind domain.ErrorKind, reason string, residual []domain.ProcessRecord) domain.RecoveryVerdict {
	v := r.verdict(domain.OutcomeAborted, kind, reason)
	if residual != nil {
		v.Residual = residual
	}
	return v
}

func (r *run) verdict(outcome domain.Outcome, kind domain.ErrorKind, reason string) domain.RecoveryVerdict {
	return domain.RecoveryVerdict{
		RunID:    r.id,
		Outcome:  outcome,
		Kind:     kind,
		Reason:   reason,
		Residual: []domain.ProcessRecord{},
		Events:   r.events,
	}
}
