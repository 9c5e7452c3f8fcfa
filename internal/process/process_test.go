package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, errors.New("preparing /data: not a directory"))
	if got, want := buf.String(), "error: preparing /data: not a directory\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}

func TestFatalExitsWithOne(t *testing.T) {
	code := -1
	orig := exit
	exit = func(c int) { code = c }
	defer func() { exit = orig }()

	Fatal(errors.New("boom"))
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
