// Package tasks composes the adapters into the units of work shared by the
// CLI commands, the task DAGs and the pipeline components.
package tasks

import (
	"context"
	"os"
	"path/filepath"

	"github.com/systmms/dfops/internal/config"
	"github.com/systmms/dfops/internal/dfconfig"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/repo"
	"github.com/systmms/dfops/internal/runner"
	"github.com/systmms/dfops/internal/secrets"
)

// Var names written into dataform.json.
const (
	VarExampleValue      = "exampleValue"
	VarAuthor            = "author"
	VarIsAudienceEnabled = "isAudienceEnabled"

	DefaultExampleValue = "default-value"
)

// Deps are the collaborators a task needs. Fields a task does not use may
// be nil.
type Deps struct {
	Config   *config.Config
	Secrets  secrets.Accessor
	Fetcher  *repo.Fetcher
	Transfer *objectstore.Transfer
	Runner   *runner.Runner
	Logger   *logging.Logger
}

func (d *Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.Discard()
	}
	return d.Logger
}

func (d *Deps) credentialsSecret() string {
	if d.Config == nil {
		return config.DefaultCredentialsSecret
	}
	return d.Config.Def().CredentialsSecret()
}

// Vars builds the standard overrides. extra wins over the named values.
func Vars(exampleValue, author string, extra map[string]interface{}) map[string]interface{} {
	if exampleValue == "" {
		exampleValue = DefaultExampleValue
	}
	vars := map[string]interface{}{
		VarExampleValue: exampleValue,
		VarAuthor:       author,
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// CloneInput configures CloneAndConfigure.
type CloneInput struct {
	RepoURL          string
	Dest             string
	Vars             map[string]interface{}
	WriteCredentials bool
}

// CloneAndConfigure clones the project into Dest, optionally writes the
// warehouse credentials next to it, and merges Vars into dataform.json.
// It returns the credential-free repository URL.
func (d *Deps) CloneAndConfigure(ctx context.Context, in CloneInput) (string, error) {
	cleanURL, err := d.Fetcher.Clone(ctx, in.RepoURL, in.Dest)
	if err != nil {
		return cleanURL, err
	}

	if in.WriteCredentials {
		path, err := secrets.WriteCredentialsFile(ctx, d.Secrets, d.credentialsSecret(), in.Dest)
		if err != nil {
			return cleanURL, err
		}
		d.logger().Debug("Wrote %s", path)
	}

	configPath := filepath.Join(in.Dest, dfconfig.FileName)
	if err := dfconfig.MergeVars(configPath, in.Vars); err != nil {
		return cleanURL, err
	}
	d.logger().Info("Set vars %v in %s", dfconfig.Keys(in.Vars), configPath)
	return cleanURL, nil
}

// LoadInput configures LoadAndSave.
type LoadInput struct {
	RepoURL string
	WorkDir string // clone location; removed afterwards unless Keep
	Vars    map[string]interface{}
	Dest    objectstore.Location
	Keep    bool
}

// LoadAndSave clones and configures the project, then uploads it to Dest.
func (d *Deps) LoadAndSave(ctx context.Context, in LoadInput) (objectstore.Result, error) {
	if in.Dest.Bucket == "" {
		return objectstore.Result{}, dserrors.ConfigError{
			Field:      "output-gcs-bucket",
			Message:    "destination bucket is required",
			Suggestion: "Pass --output-gcs-bucket or set project_id so the build bucket can be derived",
		}
	}
	if !in.Keep {
		defer d.cleanup(in.WorkDir)
	}

	if _, err := d.CloneAndConfigure(ctx, CloneInput{RepoURL: in.RepoURL, Dest: in.WorkDir, Vars: in.Vars}); err != nil {
		return objectstore.Result{}, err
	}
	return d.Transfer.UploadDir(ctx, in.WorkDir, in.Dest)
}

// RunInput configures DownloadAndRun.
type RunInput struct {
	Src         objectstore.Location
	DestDir     string
	Tags        []string
	InstallCLI  bool
	SkipInstall bool
	ShowConfig  bool
	Keep        bool
}

// DownloadAndRun fetches the project from Src into DestDir, writes the
// warehouse credentials and runs the Dataform CLI.
func (d *Deps) DownloadAndRun(ctx context.Context, in RunInput) error {
	if !in.Keep {
		defer d.cleanup(in.DestDir)
	}

	if _, err := d.Transfer.DownloadPrefix(ctx, in.Src, in.DestDir); err != nil {
		return err
	}
	if _, err := secrets.WriteCredentialsFile(ctx, d.Secrets, d.credentialsSecret(), in.DestDir); err != nil {
		return err
	}
	return d.Runner.Run(ctx, runner.Options{
		ProjectDir:  in.DestDir,
		Tags:        in.Tags,
		InstallCLI:  in.InstallCLI,
		SkipInstall: in.SkipInstall,
		ShowConfig:  in.ShowConfig,
	})
}

func (d *Deps) cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		d.logger().Warn("Failed to remove %s: %v", dir, err)
	}
}
