package domain

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

var (
	// ErrUnitNotConfigured is returned when no supervisor unit name is set.
	ErrUnitNotConfigured = errors.New("service unit not configured")

	// ErrTokenMissing is returned when the bot token cannot be resolved.
	ErrTokenMissing = errors.New("bot token not set")
)

// ProcessRecord is a snapshot of one OS process taken during a scan.
type ProcessRecord struct {
	PID         int    `json:"pid"`
	PPID        int    `json:"ppid"`
	CommandLine string `json:"command_line"`
	OwnerUser   string `json:"owner_user"`
}

func (p ProcessRecord) String() string {
	return fmt.Sprintf("pid=%d user=%s cmd=%q", p.PID, p.OwnerUser, p.CommandLine)
}

// ServiceIdentity describes what makes a process "the bot" and which
// supervisor unit runs it.
type ServiceIdentity struct {
	Unit               string `yaml:"unit"`
	BinaryPath         string `yaml:"binary_path"`
	ProcessNamePattern string `yaml:"process_name_pattern"`
	WorkingDirectory   string `yaml:"working_directory"`
}

// Phase labels the recovery step an event belongs to.
type Phase string

const (
	PhaseStatus    Phase = "status"
	PhaseStop      Phase = "stop"
	PhaseScan      Phase = "scan"
	PhaseTerminate Phase = "terminate"
	PhaseProbe     Phase = "probe"
	PhaseReset     Phase = "reset"
	PhaseCooldown  Phase = "cooldown"
	PhaseRestart   Phase = "restart"
	PhaseVerify    Phase = "verify"
)

// ConflictEvent is one entry of the ordered evidence trail.
type ConflictEvent struct {
	Time   time.Time `json:"time"`
	Phase  Phase     `json:"phase"`
	Detail string    `json:"detail"`
}

func (e ConflictEvent) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.Format(time.RFC3339Nano), e.Phase, e.Detail)
}

// Outcome is the final classification of a recovery or diagnosis run.
type Outcome string

const (
	OutcomeResolved         Outcome = "resolved"
	OutcomeStillConflicting Outcome = "still-conflicting"
	OutcomeInconclusive     Outcome = "inconclusive"
	OutcomeAborted          Outcome = "aborted"
)

// ErrorKind classifies why a run did not resolve.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindTransientRemote        ErrorKind = "transient-remote"
	KindSessionConflict        ErrorKind = "session-conflict"
	KindLocalProcessUnkillable ErrorKind = "local-process-unkillable"
	KindSupervisorFailure      ErrorKind = "supervisor-failure"
	KindCancelled              ErrorKind = "cancelled"
)

// RecoveryVerdict is the single output value of a recovery run.
type RecoveryVerdict struct {
	RunID    string          `json:"run_id"`
	Outcome  Outcome         `json:"outcome"`
	Kind     ErrorKind       `json:"kind,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Residual []ProcessRecord `json:"residual_processes"`
	Events   []ConflictEvent `json:"events"`

	// RetryAfter is the pause the Bot API requested with a 429, if any.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Evidence renders the event trail as ordered text lines.
func (v RecoveryVerdict) Evidence() []string {
	lines := make([]string, 0, len(v.Events))
	for _, e := range v.Events {
		lines = append(lines, e.String())
	}
	return lines
}

// Retryable reports whether re-invoking recovery could change the outcome.
// Aborted runs need an operator.
func (v RecoveryVerdict) Retryable() bool {
	return v.Outcome == OutcomeStillConflicting &&
		(v.Kind == KindSessionConflict || v.Kind == KindTransientRemote)
}

// ProbeStatus is the classification of a single update-fetch call.
type ProbeStatus string

const (
	ProbeClear      ProbeStatus = "clear"
	ProbeConflict   ProbeStatus = "conflict"
	ProbeOtherError ProbeStatus = "other-error"
)

// ProbeResult is returned by SessionProbe.
type ProbeResult struct {
	Status     ProbeStatus
	Detail     string
	RetryAfter time.Duration
}

// ResetResult is returned by SessionResetter.
type ResetResult struct {
	OK     bool
	Detail string
}

// ServiceState is the supervisor's view of the managed unit.
type ServiceState string

const (
	ServiceRunning ServiceState = "running"
	ServiceStopped ServiceState = "stopped"
	ServiceFailed  ServiceState = "failed"
)

// ServiceStatus pairs a state with the supervisor's raw detail.
type ServiceStatus struct {
	State  ServiceState
	Detail string
}

// TerminatePolicy controls signal escalation.
type TerminatePolicy struct {
	GracefulSignal syscall.Signal
	ForceSignal    syscall.Signal
	GracePeriod    time.Duration
	PollInterval   time.Duration
	ForceWait      time.Duration
}

// SignalOutcome records a failed signal delivery.
type SignalOutcome struct {
	PID    int
	Signal syscall.Signal
	Err    error
}

// TerminationReport is the result of a Terminator pass. Residual is
// authoritative: a non-empty residual means termination failed.
type TerminationReport struct {
	Residual     []ProcessRecord
	Escalated    []ProcessRecord
	SignalErrors []SignalOutcome
}

// WebhookInfo is the remote webhook registration state.
type WebhookInfo struct {
	URL                string
	PendingUpdateCount int
	LastErrorMessage   string
}

// Diagnosis is the read-only counterpart of RecoveryVerdict.
type Diagnosis struct {
	Outcome   Outcome
	Processes []ProcessRecord
	Probe     ProbeResult
	Webhook   *WebhookInfo
	Service   ServiceStatus
	Events    []ConflictEvent
}
