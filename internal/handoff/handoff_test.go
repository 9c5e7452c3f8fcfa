package handoff

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/monbot/entrypoint/internal/usermgr"
)

func writeExecutable(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPrepareResolvesFromEnvironmentPath(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeExecutable(t, first, "monbot", 0o644) // not executable, skipped
	want := writeExecutable(t, second, "monbot", 0o755)

	environ := []string{"PATH=" + first + ":" + second, "TELEGRAM_TOKEN=x"}
	cmd, err := Prepare([]string{"monbot", "--serve", ""}, environ, usermgr.Identity{UID: 10001, GID: 10001})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if cmd.Path != want {
		t.Errorf("Path = %q, want %q", cmd.Path, want)
	}
	if !reflect.DeepEqual(cmd.Args, []string{"monbot", "--serve", ""}) {
		t.Errorf("Args = %q, want argv preserved", cmd.Args)
	}
	if !reflect.DeepEqual(cmd.Env, environ) {
		t.Errorf("Env = %v, want unchanged without a home", cmd.Env)
	}
}

func TestPrepareSetsHome(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "run", 0o755)
	environ := []string{"HOME=/root", "PATH=" + dir}

	cmd, err := Prepare([]string{"run"}, environ, usermgr.Identity{Home: "/home/app"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := []string{"PATH=" + dir, "HOME=/home/app"}
	if !reflect.DeepEqual(cmd.Env, want) {
		t.Errorf("Env = %v, want %v", cmd.Env, want)
	}
	if environ[0] != "HOME=/root" {
		t.Error("caller environment was modified")
	}
}

func TestPrepareErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Prepare(nil, nil, usermgr.Identity{}); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("empty argv: got %v", err)
	}
	if _, err := Prepare([]string{"missing"}, []string{"PATH=" + dir}, usermgr.Identity{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing binary: got %v", err)
	}
	if _, err := Prepare([]string{filepath.Join(dir, "nope")}, nil, usermgr.Identity{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing absolute path: got %v", err)
	}
	if _, err := Prepare([]string{dir}, nil, usermgr.Identity{}); err == nil {
		t.Error("expected error for a directory")
	}
}

func TestLookPathAbsolute(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "tool", 0o700)
	got, err := LookPath(path, "")
	if err != nil || got != path {
		t.Errorf("LookPath(%q) = %q, %v", path, got, err)
	}
}

func TestRunDropsBeforeExec(t *testing.T) {
	var calls []string
	id := usermgr.Identity{UID: 10001, GID: 10001, Groups: []int{10001}}
	cmd := Command{Path: "/bin/echo", Args: []string{"echo", "hello"}, Env: []string{"A=1"}}

	r := &Runner{
		Drop: func(got usermgr.Identity) error {
			calls = append(calls, "drop")
			if got.UID != id.UID {
				t.Errorf("drop uid = %d", got.UID)
			}
			return nil
		},
		Exec: func(argv0 string, argv, envv []string) error {
			calls = append(calls, "exec")
			if argv0 != cmd.Path || !reflect.DeepEqual(argv, cmd.Args) || !reflect.DeepEqual(envv, cmd.Env) {
				t.Errorf("exec(%q, %q, %q)", argv0, argv, envv)
			}
			return nil
		},
	}
	if err := r.Run(cmd, id); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(calls, []string{"drop", "exec"}) {
		t.Errorf("calls = %v", calls)
	}
}

func TestRunDropFailureSkipsExec(t *testing.T) {
	dropErr := errors.New("operation not permitted")
	r := &Runner{
		Drop: func(usermgr.Identity) error { return dropErr },
		Exec: func(string, []string, []string) error {
			t.Error("exec must not run after a failed drop")
			return nil
		},
	}
	err := r.Run(Command{Path: "/bin/true", Args: []string{"true"}}, usermgr.Identity{UID: 1, GID: 1})
	if !errors.Is(err, dropErr) {
		t.Errorf("Run error = %v, want wrapped drop error", err)
	}
}

func TestDropPrivilegesNoopForCurrentUser(t *testing.T) {
	id := usermgr.Identity{UID: os.Geteuid(), GID: os.Getegid()}
	if err := DropPrivileges(id); err != nil {
		t.Errorf("DropPrivileges to current uid: %v", err)
	}
}
