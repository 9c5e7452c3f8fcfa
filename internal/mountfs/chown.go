package mountfs

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxReportedErrors bounds the message size for volumes where every entry fails.
const maxReportedErrors = 8

// ChownResult summarizes a recursive ownership change.
type ChownResult struct {
	Root    string
	Changed int
	Skipped int
	Failed  int
}

// ChownError carries the first failures of a recursive chown.
type ChownError struct {
	Root   string
	Failed int
	Errs   []error
}

func (e *ChownError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	s := fmt.Sprintf("chown errors in %s: %s", e.Root, strings.Join(msgs, "; "))
	if extra := e.Failed - len(e.Errs); extra > 0 {
		s += fmt.Sprintf(" (and %d more)", extra)
	}
	return s
}

func (e *ChownError) Unwrap() []error { return e.Errs }

// lchown is replaced in tests.
var lchown = unix.Lchown

// Chownr sets uid:gid on root and everything beneath it without following
// symlinks. Entries already owned by uid:gid are left untouched so that
// read-only volumes with correct ownership do not fail. Walking continues
// past errors; the returned error is a *ChownError.
func Chownr(root string, uid, gid int) (ChownResult, error) {
	res := ChownResult{Root: root}
	var errs []error

	record := func(err error) {
		res.Failed++
		if len(errs) < maxReportedErrors {
			errs = append(errs, err)
		}
	}

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			record(fmt.Errorf("%s: %w", path, err))
			return nil // continue walking
		}
		if info, err := entry.Info(); err == nil {
			if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) == uid && int(st.Gid) == gid {
				res.Skipped++
				return nil
			}
		}
		if err := lchown(path, uid, gid); err != nil {
			record(&fs.PathError{Op: "chown", Path: path, Err: err})
			return nil
		}
		res.Changed++
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("walking %s: %w", root, walkErr)
	}
	if res.Failed > 0 {
		return res, &ChownError{Root: root, Failed: res.Failed, Errs: errs}
	}
	return res, nil
}

// IsReadOnly reports whether err stems from a read-only filesystem.
func IsReadOnly(err error) bool {
	return errors.Is(err, syscall.EROFS)
}
