package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pollguard/internal/domain"
)

func verdict(id string, outcome domain.Outcome) domain.RecoveryVerdict {
	return domain.RecoveryVerdict{
		RunID:    id,
		Outcome:  outcome,
		Residual: []domain.ProcessRecord{},
		Events: []domain.ConflictEvent{
			{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Phase: domain.PhaseStop, Detail: "stopped quizbot.service"},
		},
	}
}

func readLines(t *testing.T, path string) []domain.RecoveryVerdict {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []domain.RecoveryVerdict
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v domain.RecoveryVerdict
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			t.Fatalf("line %q is not a verdict: %v", sc.Text(), err)
		}
		out = append(out, v)
	}
	return out
}

func TestAppend_AddsOneLinePerRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.jsonl")
	s := NewFileSink(path)

	if err := s.Append(verdict("a1", domain.OutcomeStillConflicting)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(verdict("b2", domain.OutcomeResolved)); err != nil {
		t.Fatal(err)
	}

	got := readLines(t, path)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if got[0].RunID != "a1" || got[1].RunID != "b2" {
		t.Errorf("runs out of order: %s, %s", got[0].RunID, got[1].RunID)
	}
	if got[1].Outcome != domain.OutcomeResolved {
		t.Errorf("outcome = %s", got[1].Outcome)
	}
	if len(got[0].Events) != 1 || got[0].Events[0].Phase != domain.PhaseStop {
		t.Errorf("events = %+v", got[0].Events)
	}
}

func TestAppend_OwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.jsonl")
	if err := NewFileSink(path).Append(verdict("a1", domain.OutcomeAborted)); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestAppend_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "evidence.jsonl")
	s := NewFileSink(path)

	if err := s.Append(verdict("a1", domain.OutcomeAborted)); err == nil {
		t.Fatal("expected error before EnsureDir")
	}
	if err := s.EnsureDir(); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(verdict("a1", domain.OutcomeAborted)); err != nil {
		t.Fatalf("Append() after EnsureDir: %v", err)
	}
}
