package domain

import (
	"context"
	"syscall"
	"time"
)

// ProcessScanner enumerates processes that belong to the managed service.
// Zero matches is an empty slice, not an error.
type ProcessScanner interface {
	Scan(ctx context.Context) ([]ProcessRecord, error)
}

// Signaler delivers a signal to a pid. Delivering to a pid that no longer
// exists is a success.
type Signaler interface {
	Signal(pid int, sig syscall.Signal) error
}

// SessionProbe issues one update-fetch call and classifies the result.
// Implementations must not retry.
type SessionProbe interface {
	Probe(ctx context.Context, timeout time.Duration) ProbeResult
}

// SessionResetter clears remote session state (webhook and pending updates).
type SessionResetter interface {
	Reset(ctx context.Context) ResetResult
}

// WebhookInspector reads the remote webhook registration.
type WebhookInspector interface {
	WebhookInfo(ctx context.Context) (WebhookInfo, error)
}

// ServiceController drives the external process supervisor.
type ServiceController interface {
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
	Status(ctx context.Context) ServiceStatus
}

// Clock abstracts time so waits are observable in tests.
// Sleep returns early when ctx is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// EvidenceSink receives the finished verdict of every run.
type EvidenceSink interface {
	Append(v RecoveryVerdict) error
}

// RunIDGenerator creates identifiers that correlate a run's log lines.
type RunIDGenerator interface {
	Generate() (string, error)
}

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
