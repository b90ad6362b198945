package procscan

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strconv"
	"strings"
)

// psFormat puts args last so it is the only column that may hold spaces.
// comm is not requested: a name like "Bot Helper" would shift every later
// field. It is taken as the base name of the first args word instead.
const psFormat = "pid=,ppid=,user=,args="

// parsePS reads ps output produced with psFormat.
func parsePS(out []byte) ([]entry, error) {
	var entries []entry
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		e := entry{pid: pid, ppid: ppid, user: fields[2]}
		if len(fields) > 3 {
			e.cmdline = strings.Join(fields[3:], " ")
			e.comm = filepath.Base(fields[3])
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
