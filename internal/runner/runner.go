// Package runner drives the Dataform CLI against a local project directory:
// optional global CLI install, npm install, then dataform run.
package runner

import (
	"context"
	"errors"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/pkg/exec"
)

const defaultCLIPackage = "@dataform/cli"

// Options selects what a run does.
type Options struct {
	ProjectDir string
	Tags       []string
	// InstallCLI runs npm i -g <package> before anything else.
	InstallCLI bool
	// SkipInstall omits npm install in the project directory.
	SkipInstall bool
	// ShowConfig logs dataform.json before running.
	ShowConfig bool
	Env        map[string]string
}

// Step is one process invocation of a run.
type Step struct {
	Name string
	Argv []string
	Dir  string
}

// Runner executes Dataform runs. Output passes through to Stdout/Stderr.
type Runner struct {
	Exec       exec.CommandExecutor
	Logger     *logging.Logger
	Stdout     io.Writer
	Stderr     io.Writer
	CLIPackage string
}

// New returns a Runner using the real process executor.
func New(logger *logging.Logger, cliPackage string) *Runner {
	return &Runner{Exec: exec.DefaultExecutor(), Logger: logger, Stdout: os.Stdout, Stderr: os.Stderr, CLIPackage: cliPackage}
}

func (r *Runner) cliPackage() string {
	if r.CLIPackage == "" {
		return defaultCLIPackage
	}
	return r.CLIPackage
}

// Steps lists the invocations Run performs, in order.
func (r *Runner) Steps(opts Options) []Step {
	var steps []Step
	if opts.InstallCLI {
		steps = append(steps, Step{Name: "install-cli", Argv: []string{"npm", "i", "-g", r.cliPackage()}})
	}
	if !opts.SkipInstall {
		steps = append(steps, Step{Name: "npm-install", Argv: []string{"npm", "install"}, Dir: opts.ProjectDir})
	}
	run := []string{"dataform", "run"}
	for _, tag := range opts.Tags {
		run = append(run, "--tags", tag)
	}
	steps = append(steps, Step{Name: "dataform-run", Argv: run, Dir: opts.ProjectDir})
	return steps
}

// Command renders the run as the equivalent shell line.
func (r *Runner) Command(opts Options) string {
	var parts []string
	cwd := ""
	for _, s := range r.Steps(opts) {
		if s.Dir != "" && s.Dir != cwd {
			parts = append(parts, "cd "+s.Dir)
			cwd = s.Dir
		}
		if s.Name == "dataform-run" && opts.ShowConfig {
			parts = append(parts, "cat dataform.json")
		}
		parts = append(parts, strings.Join(s.Argv, " "))
	}
	return strings.Join(parts, " && ")
}

// Run executes the steps in order and stops at the first failure. A
// non-zero exit becomes a CommandError carrying the exit code. There is no
// retry.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if opts.ProjectDir != "" {
		if info, err := os.Stat(opts.ProjectDir); err != nil || !info.IsDir() {
			return dserrors.LocalStateError{Path: opts.ProjectDir, Message: "project directory does not exist", Err: err}
		}
	}
	if opts.ShowConfig {
		path := filepath.Join(opts.ProjectDir, "dataform.json")
		data, err := os.ReadFile(path)
		if err != nil {
			return dserrors.LocalStateError{Path: path, Message: "cannot read project configuration", Err: err}
		}
		logger.Info("%s:\n%s", path, strings.TrimRight(string(data), "\n"))
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	executor := r.Exec
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	for _, step := range r.Steps(opts) {
		line := strings.Join(step.Argv, " ")
		logger.Info("Running %s", line)
		err := executor.Run(ctx, exec.Cmd{
			Name:   step.Argv[0],
			Args:   step.Argv[1:],
			Dir:    step.Dir,
			Env:    env,
			Stdout: r.Stdout,
			Stderr: r.Stderr,
		})
		if err != nil {
			return commandError(ctx, step, line, err)
		}
	}
	return nil
}

// Versions reports the installed npm and dataform versions; missing tools
// yield an error.
func (r *Runner) Versions(ctx context.Context) (map[string]string, error) {
	executor := r.Exec
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	out := map[string]string{}
	for _, tool := range []string{"npm", "dataform"} {
		stdout, _, err := executor.Execute(ctx, tool, "--version")
		if err != nil {
			if errors.Is(err, osexec.ErrNotFound) {
				return out, dserrors.WrapCommandNotFound(tool, err)
			}
			return out, err
		}
		out[tool] = strings.TrimSpace(string(stdout))
	}
	return out, nil
}

func commandError(ctx context.Context, step Step, line string, err error) error {
	if errors.Is(err, osexec.ErrNotFound) {
		return dserrors.WrapCommandNotFound(step.Argv[0], err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var coder exec.ExitCoder
	if errors.As(err, &coder) {
		return dserrors.CommandError{
			Command:    line,
			ExitCode:   coder.ExitCode(),
			Suggestion: "Check the command output above for details",
		}
	}
	return dserrors.CommandError{Command: line, Message: err.Error()}
}
