package procscan

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// list walks /proc. Processes that exit mid-walk are skipped.
func (s *Scanner) list(ctx context.Context) ([]entry, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.root, err)
	}

	users := make(map[uint32]string)
	var entries []entry
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(d.Name())
		if err != nil {
			continue
		}
		e, ok := s.readEntry(pid, users)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Scanner) readEntry(pid int, users map[uint32]string) (entry, bool) {
	dir := filepath.Join(s.root, strconv.Itoa(pid))

	stat, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return entry{}, false
	}
	comm, ppid, ok := parseStat(string(stat))
	if !ok {
		return entry{}, false
	}

	e := entry{pid: pid, ppid: ppid, comm: comm}
	if raw, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil {
		e.cmdline = strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " "))
	}
	if cwd, err := os.Readlink(filepath.Join(dir, "cwd")); err == nil {
		e.cwd = cwd
	}
	if info, err := os.Stat(dir); err == nil {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			e.user = lookupUser(st.Uid, users)
		}
	}
	return e, true
}

// parseStat extracts comm and ppid from /proc/<pid>/stat. comm may contain
// spaces and parentheses, so fields are read after the last ')'.
func parseStat(stat string) (comm string, ppid int, ok bool) {
	open := strings.IndexByte(stat, '(')
	closing := strings.LastIndexByte(stat, ')')
	if open < 0 || closing < open {
		return "", 0, false
	}
	comm = stat[open+1 : closing]
	fields := strings.Fields(stat[closing+1:])
	if len(fields) < 2 {
		return "", 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, false
	}
	return comm, ppid, true
}

func lookupUser(uid uint32, cache map[uint32]string) string {
	if name, ok := cache[uid]; ok {
		return name
	}
	id := strconv.FormatUint(uint64(uid), 10)
	name := id
	if u, err := user.LookupId(id); err == nil {
		name = u.Username
	}
	cache[uid] = name
	return name
}
