package commands

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/systmms/dfops/internal/config"
	"github.com/systmms/dfops/internal/dataformapi"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/repo"
	"github.com/systmms/dfops/internal/retry"
	"github.com/systmms/dfops/internal/runner"
	"github.com/systmms/dfops/internal/secrets"
	"github.com/systmms/dfops/internal/secure"
	"github.com/systmms/dfops/internal/tasks"
	"github.com/systmms/dfops/internal/trigger"
	"github.com/systmms/dfops/pkg/exec"
)

// Runtime is shared by every command. The factory fields default to the
// real cloud clients; tests replace them.
type Runtime struct {
	Config *config.Config

	NewAccessor  func(ctx context.Context) (secrets.Accessor, error)
	NewStore     func(ctx context.Context) (objectstore.Store, func() error, error)
	NewCloner    func() repo.Cloner
	NewRemoteRun func(ctx context.Context, accessor secrets.Accessor) (trigger.Runner, error)
	Exec         exec.CommandExecutor
	Now          func() time.Time
	Stdout       io.Writer
	Stderr       io.Writer
}

// NewRuntime wraps cfg with the production factories.
func NewRuntime(cfg *config.Config) *Runtime {
	return &Runtime{Config: cfg}
}

func (rt *Runtime) def() (*config.Definition, error) {
	if rt.Config.Definition == nil {
		if err := rt.Config.Load(); err != nil {
			return nil, err
		}
	}
	return rt.Config.Def(), nil
}

func (rt *Runtime) stdout() io.Writer {
	if rt.Stdout == nil {
		return os.Stdout
	}
	return rt.Stdout
}

func (rt *Runtime) stderr() io.Writer {
	if rt.Stderr == nil {
		return os.Stderr
	}
	return rt.Stderr
}

func (rt *Runtime) now() time.Time {
	if rt.Now == nil {
		return time.Now()
	}
	return rt.Now()
}

func (rt *Runtime) retryPolicy() retry.Policy {
	r := rt.Config.Def().Retry
	return retry.Policy{MaxAttempts: r.MaxAttempts, InitialInterval: r.InitialInterval, MaxInterval: r.MaxInterval}
}

func (rt *Runtime) accessor(ctx context.Context) (secrets.Accessor, error) {
	if rt.NewAccessor != nil {
		return rt.NewAccessor(ctx)
	}
	def := rt.Config.Def()
	opts := secrets.Options{
		Type:     def.SecretStore.Type,
		Settings: def.SecretStore.Config,
		Logger:   rt.Config.Logger,
	}
	storeType := strings.ToLower(def.SecretStore.Type)
	if storeType == "" || storeType == "gcp" {
		projectID, err := rt.Config.ResolveProject(ctx)
		if err != nil {
			return nil, err
		}
		opts.ProjectID = projectID
	}
	return secrets.NewAccessor(ctx, opts)
}

func (rt *Runtime) store(ctx context.Context) (objectstore.Store, func() error, error) {
	if rt.NewStore != nil {
		return rt.NewStore(ctx)
	}
	gcs, err := objectstore.NewGCS(ctx)
	if err != nil {
		return nil, nil, err
	}
	return gcs, gcs.Close, nil
}

func (rt *Runtime) cloner() repo.Cloner {
	if rt.NewCloner != nil {
		return rt.NewCloner()
	}
	return repo.GoGitCloner{}
}

// deps builds the task collaborators. withStore controls whether an object
// store client is opened. The returned cleanup is never nil.
func (rt *Runtime) deps(ctx context.Context, withStore bool) (*tasks.Deps, func(), error) {
	logger := rt.Config.Logger
	noop := func() {}

	accessor, err := rt.accessor(ctx)
	if err != nil {
		return nil, noop, err
	}

	def := rt.Config.Def()
	token, err := secrets.GetSecure(ctx, accessor, def.Secrets.GitToken)
	if err != nil {
		return nil, noop, err
	}

	d := &tasks.Deps{
		Config:  rt.Config,
		Secrets: accessor,
		Fetcher: &repo.Fetcher{Cloner: rt.cloner(), Token: token, Logger: logger},
		Runner: &runner.Runner{
			Exec:       rt.Exec,
			Logger:     logger,
			Stdout:     rt.stdout(),
			Stderr:     rt.stderr(),
			CLIPackage: def.CLIPackage(),
		},
		Logger: logger,
	}
	cleanup := func() { token.Destroy() }

	if withStore {
		store, closeStore, err := rt.store(ctx)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		d.Transfer = &objectstore.Transfer{Store: store, Retry: rt.retryPolicy(), Logger: logger}
		cleanup = func() {
			token.Destroy()
			if closeStore != nil {
				if err := closeStore(); err != nil {
					logger.Debug("Closing object store: %v", err)
				}
			}
		}
	}
	return d, cleanup, nil
}

// remoteRun builds the Dataform API runner used by the storage trigger.
func (rt *Runtime) remoteRun(ctx context.Context, accessor secrets.Accessor) (trigger.Runner, error) {
	if rt.NewRemoteRun != nil {
		return rt.NewRemoteRun(ctx, accessor)
	}
	apiKey, err := secrets.GetSecure(ctx, accessor, rt.Config.Def().APIKeySecret())
	if err != nil {
		return nil, err
	}
	return rt.remoteRunner(ctx, apiKey)
}

// remoteRunner consumes apiKey: the enclave is destroyed once the HTTP
// client holds its token, whether or not construction succeeds.
func (rt *Runtime) remoteRunner(ctx context.Context, apiKey *secure.Value) (trigger.Runner, error) {
	defer apiKey.Destroy()

	def := rt.Config.Def()
	client, err := dataformapi.NewClient(ctx, def.APIBaseURL(), def.Dataform.ProjectID, apiKey)
	if err != nil {
		return nil, err
	}
	client.Retry = rt.retryPolicy()
	client.Logger = rt.Config.Logger

	poller := &dataformapi.Poller{
		Interval:    def.PollInterval(),
		MaxDuration: def.RunTimeout(),
		Logger:      rt.Config.Logger,
	}
	return trigger.RunnerFunc(func(ctx context.Context) (string, string, error) {
		res, err := dataformapi.Execute(ctx, client, poller)
		return res.RunID, string(res.Status), err
	}), nil
}
