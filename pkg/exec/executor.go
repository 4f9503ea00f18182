// Package exec abstracts process execution so callers can be tested
// without spawning npm or the Dataform CLI.
package exec

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

// Cmd describes one process invocation.
type Cmd struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string // appended to the parent environment
	Stdout io.Writer
	Stderr io.Writer
}

// CommandExecutor runs processes.
type CommandExecutor interface {
	// Execute runs a command and captures its output.
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
	// Run runs a command, streaming output to c.Stdout and c.Stderr.
	Run(ctx context.Context, c Cmd) error
}

// ExitCoder is implemented by errors that carry a process exit status.
// *os/exec.ExitError satisfies it.
type ExitCoder interface {
	error
	ExitCode() int
}

// RealCommandExecutor executes actual processes using os/exec.
type RealCommandExecutor struct{}

// Execute runs an actual process and captures its output.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Run runs an actual process with output passed through.
func (r *RealCommandExecutor) Run(ctx context.Context, c Cmd) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// DefaultExecutor returns the production executor.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}
