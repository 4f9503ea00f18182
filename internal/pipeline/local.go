package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/workflow"
)

// PackageDir is where compiled packages are written.
const PackageDir = "pipeline-packages"

// Entrypoint runs a component in-process with its resolved args.
type Entrypoint func(ctx context.Context, args []string) error

// WritePackage compiles p into dir and returns the file path.
func (p *Pipeline) WritePackage(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dserrors.LocalStateError{Path: dir, Message: "cannot create package directory", Err: err}
	}
	var buf bytes.Buffer
	if err := p.Compile(&buf); err != nil {
		return "", err
	}
	path := filepath.Join(dir, PackageName(now))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", dserrors.LocalStateError{Path: path, Message: "cannot write pipeline package", Err: err}
	}
	return path, nil
}

// Publish uploads the package file at path to {root}/packages/.
func Publish(ctx context.Context, store objectstore.Store, root, path string) (objectstore.Location, error) {
	loc, err := objectstore.ParseURI(root)
	if err != nil {
		return objectstore.Location{}, err
	}
	dest := loc.Join("packages", filepath.Base(path))

	f, err := os.Open(path)
	if err != nil {
		return dest, dserrors.LocalStateError{Path: path, Message: "cannot open pipeline package", Err: err}
	}
	defer f.Close()

	if err := store.Upload(ctx, dest.Bucket, dest.Prefix, f); err != nil {
		return dest, err
	}
	return dest, nil
}

// DAG converts the pipeline into a workflow whose tasks call the
// entrypoint named by each component's command.
func (p *Pipeline) DAG(entrypoints map[string]Entrypoint, overrides map[string]string) (*workflow.DAG, error) {
	values, err := p.Values(overrides)
	if err != nil {
		return nil, err
	}

	d := &workflow.DAG{ID: p.Name, Description: p.Description}
	for _, step := range p.Steps {
		step := step
		if len(step.Component.Command) < 2 {
			return nil, fmt.Errorf("step %s: component command must name an entrypoint", step.Name)
		}
		entry, ok := entrypoints[step.Component.Command[1]]
		if !ok {
			return nil, fmt.Errorf("step %s: no local entrypoint for %q", step.Name, step.Component.Command[1])
		}
		args, err := ResolveArgs(step.Component.Args, values)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name, err)
		}

		d.Tasks = append(d.Tasks, &workflow.Task{
			ID:        step.Name,
			DependsOn: step.After,
			Fn: func(ctx context.Context, tc *workflow.TaskContext) (interface{}, error) {
				tc.Logger.Info("%s: %s %s", step.DisplayName, step.Component.Image, strings.Join(redactArgs(args), " "))
				return nil, entry(ctx, args)
			},
		})
	}
	return d, nil
}

// RunLocal executes the compiled steps in dependency order on this host.
func (p *Pipeline) RunLocal(ctx context.Context, entrypoints map[string]Entrypoint, overrides map[string]string, logger *logging.Logger) (*workflow.RunResult, error) {
	d, err := p.DAG(entrypoints, overrides)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, nil, logger)
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.Contains(a, "://") {
			a = logging.RedactURL(a)
		}
		out[i] = a
	}
	return out
}
