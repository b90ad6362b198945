package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Format selects the slog handler.
type Format string

const (
	// FormatAuto picks text on a terminal and JSON otherwise.
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --log-format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want auto, text or json)", s)
	}
}

// Slog writes structured log records through log/slog.
type Slog struct {
	l *slog.Logger
}

// NewStderr creates a logger on stderr.
func NewStderr(format Format, verbose bool) *Slog {
	return New(os.Stderr, format, verbose)
}

// New creates a logger writing to w. verbose enables debug records.
func New(w io.Writer, format Format, verbose bool) *Slog {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == FormatAuto || format == "" {
		format = FormatJSON
		if isTerminal(w) {
			format = FormatText
		}
	}
	var h slog.Handler
	if format == FormatText {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return &Slog{l: slog.New(h)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// With returns a logger that adds args to every record.
func (s *Slog) With(args ...any) *Slog {
	return &Slog{l: s.l.With(args...)}
}

// Debug logs a diagnostic message, shown only with verbose logging.
func (s *Slog) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }

// Info logs an informational message.
func (s *Slog) Info(msg string, args ...any) { s.l.Info(msg, args...) }

// Warn logs a recoverable problem.
func (s *Slog) Warn(msg string, args ...any) { s.l.Warn(msg, args...) }

// Error logs an error message.
func (s *Slog) Error(msg string, args ...any) { s.l.Error(msg, args...) }
