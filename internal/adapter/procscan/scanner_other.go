//go:build !linux

package procscan

import (
	"context"
	"fmt"
	"os/exec"
)

// list shells out to ps where /proc is unavailable. The ps child is this
// process's own child and is filtered out by Scan.
func (s *Scanner) list(ctx context.Context) ([]entry, error) {
	out, err := exec.CommandContext(ctx, "ps", "-axo", psFormat).Output()
	if err != nil {
		return nil, fmt.Errorf("ps: %w", err)
	}
	return parsePS(out)
}
