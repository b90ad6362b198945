// Package procscan enumerates host processes and picks out the ones that
// belong to the managed service.
package procscan

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"pollguard/internal/domain"
)

// Matcher is the classification predicate built from a ServiceIdentity.
type Matcher struct {
	binary  string
	pattern *regexp.Regexp
	workdir string
}

// NewMatcher compiles the identity into a predicate. At least one of
// BinaryPath and ProcessNamePattern must be set, otherwise every process
// would be a candidate.
func NewMatcher(id domain.ServiceIdentity) (*Matcher, error) {
	if id.BinaryPath == "" && id.ProcessNamePattern == "" {
		return nil, errors.New("service identity needs binary_path or process_name_pattern")
	}
	m := &Matcher{binary: id.BinaryPath}
	if id.ProcessNamePattern != "" {
		re, err := regexp.Compile(id.ProcessNamePattern)
		if err != nil {
			return nil, fmt.Errorf("compile process_name_pattern: %w", err)
		}
		m.pattern = re
	}
	if id.WorkingDirectory != "" {
		m.workdir = filepath.Clean(id.WorkingDirectory)
	}
	return m, nil
}

// Match reports whether a process is the service's poller. An empty cwd
// means it could not be read and is not held against the process. Kernel
// threads and zombies have no cmdline and never match, whatever their comm.
func (m *Matcher) Match(comm, cmdline, cwd string) bool {
	if cmdline == "" {
		return false
	}
	hit := false
	if m.binary != "" && strings.Contains(cmdline, m.binary) {
		hit = true
	}
	if !hit && m.pattern != nil && (m.pattern.MatchString(cmdline) || m.pattern.MatchString(comm)) {
		hit = true
	}
	if !hit {
		return false
	}
	if m.workdir != "" && cwd != "" && filepath.Clean(cwd) != m.workdir {
		return false
	}
	return true
}
