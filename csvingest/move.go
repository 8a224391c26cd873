package csvingest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MoveProcessed implements the atomicity rule from spec §4.4: on success
// the file is moved into doneDir with a timestamp prefix; on failure it is
// left in place for the next run to retry. The move is always the final
// step — call it only after a file's events have been durably handed to
// the reconciler.
func MoveProcessed(path, doneDir string, processedAt time.Time, success bool) error {
	if !success {
		return nil
	}

	if err := os.MkdirAll(doneDir, 0o755); err != nil {
		return fmt.Errorf("csvingest: create done dir: %w", err)
	}

	prefix := processedAt.UTC().Format("20060102_150405")
	dest := filepath.Join(doneDir, prefix+"_"+filepath.Base(path))

	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("csvingest: move %s to done: %w", path, err)
	}
	return nil
}
