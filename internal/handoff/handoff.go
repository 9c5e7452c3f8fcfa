// Package handoff replaces the launcher with the workload process running
// under the target identity.
package handoff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/monbot/entrypoint/internal/usermgr"
)

var (
	ErrEmptyCommand = errors.New("no command given")
	ErrNotFound     = errors.New("executable file not found in $PATH")
)

// DefaultPath is searched when the environment carries no PATH.
const DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Command is a fully resolved exec request.
type Command struct {
	// Path is the resolved executable.
	Path string
	// Args is the argument vector as given, including argv[0].
	Args []string
	Env  []string
}

// Runner performs the hand-off. The zero value is not usable; use New.
type Runner struct {
	// Exec replaces the process image and only returns on failure.
	Exec func(argv0 string, argv []string, envv []string) error
	// Drop switches the process to the target identity.
	Drop func(id usermgr.Identity) error
}

func New() *Runner {
	return &Runner{Exec: unix.Exec, Drop: DropPrivileges}
}

// Prepare resolves argv against the PATH in environ and builds the child
// environment. HOME is taken from the identity when it has one.
func Prepare(argv, environ []string, id usermgr.Identity) (Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Command{}, ErrEmptyCommand
	}
	env := append([]string(nil), environ...)
	if id.Home != "" {
		env = setEnv(env, "HOME", id.Home)
	}

	pathList, ok := lookupEnv(env, "PATH")
	if !ok {
		pathList = DefaultPath
	}
	path, err := LookPath(argv[0], pathList)
	if err != nil {
		return Command{}, err
	}
	return Command{Path: path, Args: append([]string(nil), argv...), Env: env}, nil
}

// Run drops privileges and execs cmd. On success it never returns.
// The goroutine stays on one thread from the drop until execve.
func (r *Runner) Run(cmd Command, id usermgr.Identity) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := r.Drop(id); err != nil {
		return fmt.Errorf("dropping privileges to %d:%d: %w", id.UID, id.GID, err)
	}
	if err := r.Exec(cmd.Path, cmd.Args, cmd.Env); err != nil {
		return fmt.Errorf("exec %s: %w", cmd.Path, err)
	}
	return nil
}

// DropPrivileges sets supplementary groups, then gid, then uid, on every
// thread of the process. It is a no-op when the process already runs as
// id.UID, which covers containers started with --user.
func DropPrivileges(id usermgr.Identity) error {
	if unix.Geteuid() == id.UID {
		return nil
	}
	groups := id.Groups
	if len(groups) == 0 {
		groups = []int{id.GID}
	}
	// unix.Setgroups only affects the calling thread.
	if err := syscall.Setgroups(groups); err != nil {
		return fmt.Errorf("setgroups %v: %w", groups, err)
	}
	if err := syscall.Setresgid(id.GID, id.GID, id.GID); err != nil {
		return fmt.Errorf("setgid %d: %w", id.GID, err)
	}
	if err := syscall.Setresuid(id.UID, id.UID, id.UID); err != nil {
		return fmt.Errorf("setuid %d: %w", id.UID, err)
	}
	return nil
}

// LookPath finds file in the colon-separated pathList. Names containing a
// slash are checked directly.
func LookPath(file, pathList string) (string, error) {
	if strings.Contains(file, "/") {
		if err := findExecutable(file); err != nil {
			return "", &fs.PathError{Op: "exec", Path: file, Err: err}
		}
		return file, nil
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			// Unix shell semantics: empty element means the current directory.
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%q: %w", file, ErrNotFound)
}

func findExecutable(file string) error {
	st, err := os.Stat(file)
	if err != nil {
		return err
	}
	m := st.Mode()
	if m.IsDir() {
		return unix.EISDIR
	}
	if m&0o111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
