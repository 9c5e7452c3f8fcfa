package mountfs

import (
	"fmt"
	"os"
	"syscall"
)

// DirPerm is applied to directories the launcher creates. Existing
// directories keep their mode.
const DirPerm os.FileMode = 0o755

// EnsureDir creates path and any missing parents. An existing directory is
// not an error; an existing non-directory is.
func EnsureDir(path string) error {
	if path == "" {
		return &os.PathError{Op: "mkdir", Path: path, Err: syscall.EINVAL}
	}
	if err := os.MkdirAll(path, DirPerm); err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return &os.PathError{Op: "mkdir", Path: path, Err: syscall.ENOTDIR}
	}
	return nil
}

// Exists reports whether path exists as a directory.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// Owner returns the uid and gid of path without following symlinks.
func Owner(path string) (uid, gid int, err error) {
	st, err := os.Lstat(path)
	if err != nil {
		return 0, 0, err
	}
	sys, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("%s: no ownership information", path)
	}
	return int(sys.Uid), int(sys.Gid), nil
}
