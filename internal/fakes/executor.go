package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/systmms/dfops/pkg/exec"
)

// Invocation is one recorded process run.
type Invocation struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// Line renders the invocation as a shell-like string.
func (i Invocation) Line() string {
	return strings.TrimSpace(i.Name + " " + strings.Join(i.Args, " "))
}

// ExitError is an exec.ExitCoder for fake failures.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode returns the fake exit status.
func (e ExitError) ExitCode() int { return e.Code }

// Executor records invocations and returns scripted results keyed by the
// program name or the full command line.
type Executor struct {
	mu      sync.Mutex
	Calls   []Invocation
	Results map[string]error
	Output  map[string]string
	// OnRun, when set, runs after recording each invocation.
	OnRun func(Invocation) error
}

var _ exec.CommandExecutor = (*Executor)(nil)

func (e *Executor) result(inv Invocation) error {
	if e.OnRun != nil {
		if err := e.OnRun(inv); err != nil {
			return err
		}
	}
	if err, ok := e.Results[inv.Line()]; ok {
		return err
	}
	return e.Results[inv.Name]
}

// Execute implements exec.CommandExecutor.
func (e *Executor) Execute(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	inv := Invocation{Name: name, Args: args}
	e.mu.Lock()
	e.Calls = append(e.Calls, inv)
	e.mu.Unlock()
	return []byte(e.Output[inv.Line()]), nil, e.result(inv)
}

// Run implements exec.CommandExecutor.
func (e *Executor) Run(_ context.Context, c exec.Cmd) error {
	inv := Invocation{Name: c.Name, Args: c.Args, Dir: c.Dir, Env: c.Env}
	e.mu.Lock()
	e.Calls = append(e.Calls, inv)
	e.mu.Unlock()
	if out := e.Output[inv.Line()]; out != "" && c.Stdout != nil {
		_, _ = c.Stdout.Write([]byte(out))
	}
	return e.result(inv)
}

// Lines returns every recorded command line in order.
func (e *Executor) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Calls))
	for i, c := range e.Calls {
		out[i] = c.Line()
	}
	return out
}
