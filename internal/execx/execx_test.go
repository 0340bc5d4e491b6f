package execx

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestOSRunner_Output(t *testing.T) {
	t.Parallel()

	out, err := NewOSRunner().Output(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("out=%q", out)
	}
}

func TestOSRunner_NonZeroExit(t *testing.T) {
	t.Parallel()

	_, err := NewOSRunner().Output(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.ExitCode != 3 || e.Stderr != "broken" {
		t.Fatalf("exit=%d stderr=%q", e.ExitCode, e.Stderr)
	}
}

func TestOSRunner_MissingTool(t *testing.T) {
	t.Parallel()

	_, err := NewOSRunner().Output(context.Background(), "definitely-not-a-real-tool-xyz")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOSRunner_TimeoutKillsProcess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := (&OSRunner{WaitDelay: 200 * time.Millisecond}).Output(ctx, "sleep", "10")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("process not killed in time: %s", elapsed)
	}
}
