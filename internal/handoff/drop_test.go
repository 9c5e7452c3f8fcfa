package handoff

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/monbot/entrypoint/internal/usermgr"
)

// dropHelperEnv makes the test binary act as a launcher that drops to
// dropTarget and reports the credentials of every thread.
const dropHelperEnv = "MONBOT_HANDOFF_TEST_DROP"

var dropTarget = usermgr.Identity{UID: 10001, GID: 10002, Groups: []int{10002, 10003}}

func TestMain(m *testing.M) {
	if os.Getenv(dropHelperEnv) != "" {
		os.Exit(dropHelper())
	}
	os.Exit(m.Run())
}

func dropHelper() int {
	// Park goroutines on their own threads so the process has several.
	release := make(chan struct{})
	var ready sync.WaitGroup
	for i := 0; i < 8; i++ {
		ready.Add(1)
		go func() {
			runtime.LockOSThread()
			ready.Done()
			<-release
		}()
	}
	ready.Wait()
	defer close(release)

	r := &Runner{
		Drop: DropPrivileges,
		Exec: func(string, []string, []string) error { return checkThreads(dropTarget) },
	}
	if err := r.Run(Command{Path: "/bin/true", Args: []string{"true"}}, dropTarget); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// checkThreads compares the Uid, Gid and Groups lines of every task of the
// current process with id.
func checkThreads(id usermgr.Identity) error {
	files, err := filepath.Glob("/proc/self/task/*/status")
	if err != nil {
		return err
	}
	if len(files) < 2 {
		return fmt.Errorf("only %d threads to inspect", len(files))
	}

	uid := strings.Repeat(fmt.Sprintf("%d ", id.UID), 4)
	gid := strings.Repeat(fmt.Sprintf("%d ", id.GID), 4)
	var groups []string
	for _, g := range id.Groups {
		groups = append(groups, fmt.Sprint(g))
	}
	want := map[string]string{
		"Uid":    strings.TrimSpace(uid),
		"Gid":    strings.TrimSpace(gid),
		"Groups": strings.Join(groups, " "),
	}

	var bad []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(b), "\n") {
			key, val, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			w, tracked := want[key]
			if !tracked {
				continue
			}
			if got := strings.Join(strings.Fields(val), " "); got != w {
				bad = append(bad, fmt.Sprintf("%s %s=%q want %q", f, key, got, w))
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("credentials differ across threads:\n%s", strings.Join(bad, "\n"))
	}
	return nil
}

func TestDropPrivilegesAppliesToAllThreads(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	if _, err := os.Stat("/proc/self/task"); err != nil {
		t.Skipf("no procfs: %v", err)
	}

	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), dropHelperEnv+"=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("drop helper failed: %v\n%s", err, out)
	}
}
