package procscan

import (
	"testing"

	"pollguard/internal/domain"
)

func TestParsePS(t *testing.T) {
	out := []byte(`    1     0 root     /sbin/launchd
  412     1 bot      /Applications/Bot Helper.app/Contents/MacOS/Bot Helper --poll
  500     1 bot      /usr/bin/python3 /srv/bot/bot.py
  613   500 bot
garbage line here
`)

	got, err := parsePS(out)
	if err != nil {
		t.Fatalf("parsePS: %v", err)
	}
	want := []entry{
		{pid: 1, ppid: 0, user: "root", comm: "launchd", cmdline: "/sbin/launchd"},
		{pid: 412, ppid: 1, user: "bot", comm: "Bot", cmdline: "/Applications/Bot Helper.app/Contents/MacOS/Bot Helper --poll"},
		{pid: 500, ppid: 1, user: "bot", comm: "python3", cmdline: "/usr/bin/python3 /srv/bot/bot.py"},
		{pid: 613, ppid: 500, user: "bot"},
	}
	if len(got) != len(want) {
		t.Fatalf("parsePS returned %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParsePS_SpacedPathStillMatches(t *testing.T) {
	entries, err := parsePS([]byte("412 1 bot /opt/Bot Helper/run.sh --poll\n"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("parsePS = %+v, %v", entries, err)
	}
	m, err := NewMatcher(domain.ServiceIdentity{BinaryPath: "/opt/Bot Helper/run.sh"})
	if err != nil {
		t.Fatal(err)
	}
	e := entries[0]
	if !m.Match(e.comm, e.cmdline, e.cwd) {
		t.Errorf("Match(%q, %q) = false, want true", e.comm, e.cmdline)
	}
}
