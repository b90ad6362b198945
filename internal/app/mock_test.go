package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"syscall"
	"time"

	"pollguard/internal/domain"
)

// callLog records the order in which collaborators are invoked.
type callLog struct {
	calls []string
}

func (c *callLog) add(format string, args ...any) {
	if c != nil {
		c.calls = append(c.calls, fmt.Sprintf(format, args...))
	}
}

// fakeProc describes how a process reacts to signals.
type fakeProc struct {
	rec domain.ProcessRecord
	// diesOn lists the signals that kill the process.
	diesOn map[syscall.Signal]bool
	// lingerScans is how many scans a dying process stays visible for.
	lingerScans int
	dying       bool
	// denied makes every signal fail with EPERM.
	denied bool
}

// fakeTable is both the process scanner and the signal target.
type fakeTable struct {
	procs   map[int]*fakeProc
	scanErr error
	scans   int
	signals []string
	log     *callLog
}

func newFakeTable(log *callLog, procs ...*fakeProc) *fakeTable {
	t := &fakeTable{procs: make(map[int]*fakeProc), log: log}
	for _, p := range procs {
		t.procs[p.rec.PID] = p
	}
	return t
}

// Scan fails on a cancelled ctx the way the /proc walk does.
func (t *fakeTable) Scan(ctx context.Context) ([]domain.ProcessRecord, error) {
	t.scans++
	if err := ctx.Err(); err != nil {
		t.log.add("scan:cancelled")
		return nil, err
	}
	if t.scanErr != nil {
		t.log.add("scan:error")
		return nil, t.scanErr
	}
	for pid, p := range t.procs {
		if !p.dying {
			continue
		}
		if p.lingerScans <= 0 {
			delete(t.procs, pid)
			continue
		}
		p.lingerScans--
	}
	out := []domain.ProcessRecord{}
	for _, p := range t.procs {
		out = append(out, p.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	t.log.add("scan:%d", len(out))
	return out, nil
}

func (t *fakeTable) Signal(pid int, sig syscall.Signal) error {
	t.signals = append(t.signals, fmt.Sprintf("%d:%s", pid, sig))
	t.log.add("signal:%d:%s", pid, sig)
	p, ok := t.procs[pid]
	if !ok {
		return nil
	}
	if p.denied {
		return fmt.Errorf("kill %d: %w", pid, syscall.EPERM)
	}
	if p.diesOn[sig] {
		p.dying = true
	}
	return nil
}

func (t *fakeTable) signalled(sig syscall.Signal) bool {
	for _, s := range t.signals {
		if strings.HasSuffix(s, ":"+sig.String()) {
			return true
		}
	}
	return false
}

func botProc(pid int, diesOn ...syscall.Signal) *fakeProc {
	p := &fakeProc{
		rec:    domain.ProcessRecord{PID: pid, PPID: 1, CommandLine: "python3 /srv/bot/bot.py", OwnerUser: "bot"},
		diesOn: make(map[syscall.Signal]bool),
	}
	for _, s := range diesOn {
		p.diesOn[s] = true
	}
	return p
}

// mockClock advances only when Sleep is called.
type mockClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
	log     *callLog
}

func newMockClock(log *callLog) *mockClock {
	return &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), log: log}
}

func (c *mockClock) Now() time.Time { return c.now }

func (c *mockClock) Sleep(ctx context.Context, d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.log.add("sleep:%s", d)
	if c.onSleep != nil {
		c.onSleep(d)
	}
	if ctx.Err() != nil {
		return
	}
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// mockController records supervisor calls.
type mockController struct {
	stopErr   error
	startErr  error
	status    domain.ServiceStatus
	stopped   bool
	started   bool
	startedAt time.Time
	clock     *mockClock
	log       *callLog
	// onStart runs before Start returns.
	onStart func()
}

func (m *mockController) Stop(ctx context.Context) error {
	m.stopped = true
	m.log.add("stop")
	return m.stopErr
}

func (m *mockController) Start(ctx context.Context) error {
	m.started = true
	if m.clock != nil {
		m.startedAt = m.clock.Now()
	}
	m.log.add("start")
	if m.onStart != nil {
		m.onStart()
	}
	return m.startErr
}

func (m *mockController) Status(ctx context.Context) domain.ServiceStatus {
	m.log.add("status")
	return m.status
}

// mockProbe returns a configured result.
type mockProbe struct {
	result      domain.ProbeResult
	calls       int
	lastTimeout time.Duration
	log         *callLog
}

func (m *mockProbe) Probe(ctx context.Context, timeout time.Duration) domain.ProbeResult {
	m.calls++
	m.lastTimeout = timeout
	m.log.add("probe")
	return m.result
}

// mockResetter returns a configured result.
type mockResetter struct {
	result domain.ResetResult
	calls  int
	log    *callLog
}

func (m *mockResetter) Reset(ctx context.Context) domain.ResetResult {
	m.calls++
	m.log.add("reset")
	return m.result
}

type mockWebhook struct {
	info domain.WebhookInfo
	err  error
}

func (m *mockWebhook) WebhookInfo(ctx context.Context) (domain.WebhookInfo, error) {
	return m.info, m.err
}

type mockSink struct {
	verdicts []domain.RecoveryVerdict
	err      error
}

func (m *mockSink) Append(v domain.RecoveryVerdict) error {
	m.verdicts = append(m.verdicts, v)
	return m.err
}

type mockRunIDs struct {
	n   int
	err error
}

func (m *mockRunIDs) Generate() (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.n++
	return fmt.Sprintf("run-%d", m.n), nil
}

// mockLogger collects messages.
type mockLogger struct {
	messages []string
}

func (m *mockLogger) Debug(msg string, args ...any) { m.messages = append(m.messages, "DEBUG: "+msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.messages = append(m.messages, msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.messages = append(m.messages, "WARN: "+msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.messages = append(m.messages, "ERROR: "+msg) }

var errScan = errors.New("proc unreadable")
