// Package runner wraps external-process invocation: spawning ip/iptables/
// ping/init-script commands, capturing their output, and retrying
// idempotent "delete until absent" teardown commands.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maksimkurb/gwsupervisor/lib/log"
)

// Result is the outcome of one external-process invocation. A non-zero
// ExitCode is a value, never an error: callers that need to distinguish
// "command ran and failed" from "command could not be spawned" inspect
// the returned error instead.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner spawns external binaries and awaits their completion.
type CommandRunner interface {
	// Run spawns argv[0] with the remaining elements as arguments, waits
	// for it to exit, and returns its exit code plus captured output. A
	// spawn failure (missing binary, permission denied) is returned as
	// an error; a non-zero exit code is not.
	Run(ctx context.Context, argv ...string) (Result, error)

	// RunUntilError repeatedly invokes Run, up to maxRetries times,
	// stopping as soon as a non-zero exit code is observed — the
	// expected terminal condition for draining an unknown number of
	// matching "delete" targets (e.g. repeated `ip rule del`). Returns
	// the final Result.
	RunUntilError(ctx context.Context, maxRetries int, argv ...string) (Result, error)
}

// ExecRunner is the production CommandRunner, backed by os/exec.
type ExecRunner struct {
	log *log.Logger
}

// New returns an ExecRunner.
func New() *ExecRunner {
	return &ExecRunner{log: log.Component("runner")}
}

func (r *ExecRunner) Run(ctx context.Context, argv ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debugf("%s", joinArgv(argv))

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if ok := isExitError(err, &exitErr); ok {
			return Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		// Spawn failure: missing binary, permission denied, etc. This is
		// fatal to the caller per spec.
		return Result{}, err
	}

	return Result{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (r *ExecRunner) RunUntilError(ctx context.Context, maxRetries int, argv ...string) (Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	var last Result
	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := r.Run(ctx, argv...)
		if err != nil {
			return Result{}, err
		}
		last = res
		if res.ExitCode != 0 {
			break
		}

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}
	}
	return last, nil
}

func isExitError(err error, target **exec.ExitError) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = exitErr
	return true
}

func joinArgv(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
