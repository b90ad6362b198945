// Package signal delivers termination signals to processes by pid.
package signal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Sender implements domain.Signaler with kill(2).
type Sender struct{}

// NewSender creates a signal sender.
func NewSender() *Sender {
	return &Sender{}
}

// Signal sends sig to pid. A pid that no longer exists counts as delivered.
// Permission errors are returned.
func (s *Sender) Signal(pid int, sig syscall.Signal) error {
	// kill(0) and kill(-1) address process groups, never a single poller.
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	err := unix.Kill(pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("kill %d with %s: %w", pid, Name(sig), err)
}

// Parse accepts "TERM", "SIGTERM", "sigterm" or a signal number.
func Parse(name string) (syscall.Signal, error) {
	name = strings.TrimSpace(name)
	if n, err := strconv.Atoi(name); err == nil {
		if n <= 0 || unix.SignalName(syscall.Signal(n)) == "" {
			return 0, fmt.Errorf("unknown signal number %d", n)
		}
		return syscall.Signal(n), nil
	}
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	sig := unix.SignalNum(upper)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}

// Name returns the conventional name, e.g. SIGTERM.
func Name(sig syscall.Signal) string {
	if n := unix.SignalName(sig); n != "" {
		return n
	}
	return "signal " + strconv.Itoa(int(sig))
}
