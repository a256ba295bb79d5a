// Package mocks holds hand-written test doubles shared across package
// tests, following the same call-recording shape as each interface they
// stand in for.
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/maksimkurb/gwsupervisor/lib/runner"
)

// MockCommandRunner is a test double for runner.CommandRunner. It records
// every argv it was asked to run and looks up a canned Result by joining
// the argv with spaces; RunFunc/RunUntilErrorFunc let a test override
// behavior for specific commands.
type MockCommandRunner struct {
	mu sync.Mutex

	// Results maps a space-joined argv to the Result it should return.
	// Unmatched argvs return a zero Result (exit code 0) from Run unless
	// RunFunc is set, and exit code 1 from RunUntilError unless
	// RunUntilErrorFunc is set.
	Results map[string]runner.Result

	// RunFunc, when set, is called instead of the Results lookup.
	RunFunc func(ctx context.Context, argv []string) (runner.Result, error)

	// RunUntilErrorFunc, when set, is called instead of the default
	// "return the canned Result once" behavior.
	RunUntilErrorFunc func(ctx context.Context, maxRetries int, argv []string) (runner.Result, error)

	Calls [][]string
}

// NewMockCommandRunner returns an empty MockCommandRunner.
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{Results: make(map[string]runner.Result)}
}

func (m *MockCommandRunner) Run(ctx context.Context, argv ...string) (runner.Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]string(nil), argv...))
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, argv)
	}
	if res, ok := m.Results[strings.Join(argv, " ")]; ok {
		return res, nil
	}
	return runner.Result{ExitCode: 0}, nil
}

func (m *MockCommandRunner) RunUntilError(ctx context.Context, maxRetries int, argv ...string) (runner.Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]string(nil), argv...))
	m.mu.Unlock()

	if m.RunUntilErrorFunc != nil {
		return m.RunUntilErrorFunc(ctx, maxRetries, argv)
	}
	if res, ok := m.Results[strings.Join(argv, " ")]; ok {
		return res, nil
	}
	return runner.Result{ExitCode: 1}, nil
}

// ArgvCalls returns every recorded call as space-joined argv strings, in
// invocation order.
func (m *MockCommandRunner) ArgvCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}
