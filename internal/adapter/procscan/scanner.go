package procscan

import (
	"context"
	"os"
	"sort"

	"pollguard/internal/domain"
)

// entry is one raw row of the process table.
type entry struct {
	pid     int
	ppid    int
	comm    string
	cmdline string
	cwd     string
	user    string
}

// Scanner implements domain.ProcessScanner.
type Scanner struct {
	root    string
	matcher *Matcher
	self    int
}

// New creates a scanner over the host process table.
func New(id domain.ServiceIdentity) (*Scanner, error) {
	m, err := NewMatcher(id)
	if err != nil {
		return nil, err
	}
	return &Scanner{root: "/proc", matcher: m, self: os.Getpid()}, nil
}

// Scan returns the processes classified as the service, ordered by pid.
// The scanner's own process and its direct children (e.g. a ps it spawned)
// are never reported.
func (s *Scanner) Scan(ctx context.Context) ([]domain.ProcessRecord, error) {
	entries, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	out := []domain.ProcessRecord{}
	for _, e := range entries {
		if e.pid == s.self || e.ppid == s.self {
			continue
		}
		if !s.matcher.Match(e.comm, e.cmdline, e.cwd) {
			continue
		}
		out = append(out, domain.ProcessRecord{
			PID:         e.pid,
			PPID:        e.ppid,
			CommandLine: e.cmdline,
			OwnerUser:   e.user,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}
