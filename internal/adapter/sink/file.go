package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pollguard/internal/domain"
)

// FileSink appends one JSON line per finished run to an evidence file.
// Existing lines are never rewritten.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the evidence file location.
func (s *FileSink) Path() string {
	return s.path
}

// EnsureDir creates the evidence directory if it does not exist.
func (s *FileSink) EnsureDir() error {
	return os.MkdirAll(filepath.Dir(s.path), 0700)
}

// Append writes v as a single line. Process command lines can carry
// secrets, so the file is created owner-only.
func (s *FileSink) Append(v domain.RecoveryVerdict) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict %s: %w", v.RunID, err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open evidence log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write evidence log: %w", err)
	}
	return f.Close()
}
