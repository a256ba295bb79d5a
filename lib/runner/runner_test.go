package runner

import (
	"context"
	"testing"
	"time"
)

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	r := New()
	ctx := context.Background()

	res, err := r.Run(ctx, "sh", "-c", "echo out; echo err >&2; exit 3")
	if err != nil {
		t.Fatalf("unexpected spawn error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if res.Stdout != "out\n" {
		t.Errorf("expected stdout %q, got %q", "out\n", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Errorf("expected stderr %q, got %q", "err\n", res.Stderr)
	}
}

func TestRun_SpawnFailureReturnsError(t *testing.T) {
	r := New()
	_, err := r.Run(context.Background(), "/nonexistent/binary/gwsupervisor-test")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestRunUntilError_StopsOnFirstNonZeroExit(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := r.RunUntilError(ctx, 5, "sh", "-c", "exit 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("expected final exit code 1, got %d", res.ExitCode)
	}
}

func TestRunUntilError_StopsAtMaxRetriesWhenAlwaysSuccessful(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := r.RunUntilError(ctx, 3, "sh", "-c", "exit 0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0 after exhausting retries, got %d", res.ExitCode)
	}
}
