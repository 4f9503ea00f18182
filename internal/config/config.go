package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

const (
	DefaultCredentialsSecret = "dataform_credentials"
	DefaultAPIKeySecret      = "dataform_api_key"
	DefaultAPIBaseURL        = "https://api.dataform.co/v1"
	DefaultCLIPackage        = "@dataform/cli"
	DefaultImageFolder       = "dataform-basic-example"
	DefaultImageRegistry     = "eu.gcr.io"
	DefaultPrefix            = "dataform_folder"
	DefaultPollInterval      = 5 * time.Second
	DefaultRunTimeout        = time.Hour
)

// Config holds the runtime configuration. It is populated once at process
// start and passed to every command.
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the dfops.yaml structure
type Definition struct {
	Version     int               `yaml:"version"`
	ProjectID   string            `yaml:"project_id,omitempty"`
	Author      string            `yaml:"author,omitempty"`
	RepoURL     string            `yaml:"repo_url,omitempty"`
	SecretStore SecretStoreConfig `yaml:"secret_store,omitempty"`
	Secrets     SecretNames       `yaml:"secrets,omitempty"`
	Storage     StorageConfig     `yaml:"storage,omitempty"`
	Dataform    DataformConfig    `yaml:"dataform,omitempty"`
	Pipeline    PipelineConfig    `yaml:"pipeline,omitempty"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
}

// SecretStoreConfig selects and configures the secret backend
type SecretStoreConfig struct {
	Type   string                 `yaml:"type"` // gcp (default), aws, azure, keyring
	Config map[string]interface{} `yaml:",inline"`
}

// SecretNames are the names of the secrets dfops reads
type SecretNames struct {
	Credentials string `yaml:"credentials,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	GitToken    string `yaml:"git_token,omitempty"` // optional; injected into clones
}

// StorageConfig holds bucket layout
type StorageConfig struct {
	BuildBucket   string `yaml:"build_bucket,omitempty"`
	StagingBucket string `yaml:"staging_bucket,omitempty"`
	Prefix        string `yaml:"prefix,omitempty"`
}

// DataformConfig holds CLI and web API settings
type DataformConfig struct {
	ProjectID    string        `yaml:"project_id,omitempty"`
	APIBaseURL   string        `yaml:"api_base_url,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	RunTimeout   time.Duration `yaml:"run_timeout,omitempty"`
	CLIPackage   string        `yaml:"cli_package,omitempty"`
	DefaultTags  []string      `yaml:"default_tags,omitempty"`
}

// PipelineConfig holds container pipeline settings
type PipelineConfig struct {
	ImageRegistry string `yaml:"image_registry,omitempty"`
	ImageFolder   string `yaml:"image_folder,omitempty"`
	PipelineRoot  string `yaml:"pipeline_root,omitempty"`
}

// RetryConfig bounds retries of transient failures
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
}

// projectLookup resolves the project from Application Default Credentials.
// Replaced in tests.
var projectLookup = func(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.ProjectID, nil
}

// Load reads dfops.yaml if present, then applies environment overrides.
// A missing file is not an error: defaults and environment are enough for
// most commands.
func (c *Config) Load() error {
	var def Definition

	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return dserrors.ConfigError{
				Message:    "invalid YAML syntax in configuration file",
				Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
			}
		}
		if def.Version != 0 {
			return dserrors.ConfigError{
				Field:      "version",
				Value:      def.Version,
				Message:    "unsupported configuration version",
				Suggestion: "Set 'version: 0' at the top of your dfops.yaml file",
			}
		}
	case os.IsNotExist(err):
		if c.Logger != nil {
			c.Logger.Debug("No configuration file at %s, using defaults", c.Path)
		}
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def.applyEnv()
	c.Definition = &def
	return nil
}

func (d *Definition) applyEnv() {
	if v := os.Getenv("AUTHOR"); v != "" {
		d.Author = v
	}
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" && d.ProjectID == "" {
			d.ProjectID = v
		}
	}
	if v := os.Getenv("DFOPS_REPO_URL"); v != "" {
		d.RepoURL = v
	}
	if v := os.Getenv("DATAFORM_PROJECT_ID"); v != "" {
		d.Dataform.ProjectID = v
	}
}

// Def returns the loaded definition, or an empty one if Load was not called.
func (c *Config) Def() *Definition {
	if c.Definition == nil {
		c.Definition = &Definition{}
	}
	return c.Definition
}

// ResolveProject returns the GCP project, falling back to Application
// Default Credentials. The result is cached on the definition.
func (c *Config) ResolveProject(ctx context.Context) (string, error) {
	d := c.Def()
	if d.ProjectID != "" {
		return d.ProjectID, nil
	}
	projectID, err := projectLookup(ctx)
	if err != nil || projectID == "" {
		return "", dserrors.ConfigError{
			Field:      "project_id",
			Message:    "GCP project could not be determined",
			Suggestion: "Set project_id in dfops.yaml, export GOOGLE_CLOUD_PROJECT, or run 'gcloud auth application-default login'",
		}
	}
	d.ProjectID = projectID
	return projectID, nil
}

// RequireAuthor returns the configured author or a ConfigError.
func (c *Config) RequireAuthor() (string, error) {
	author := strings.TrimSpace(c.Def().Author)
	if author == "" {
		return "", dserrors.ConfigError{
			Field:      "author",
			Message:    "author is required to scope object-store paths",
			Suggestion: "Pass --author, set 'author' in dfops.yaml, or export AUTHOR",
		}
	}
	if strings.Contains(author, "/") {
		return "", dserrors.ConfigError{
			Field:   "author",
			Value:   author,
			Message: "author must not contain '/'",
		}
	}
	return author, nil
}

// CredentialsSecret returns the name of the Dataform credentials secret.
func (d *Definition) CredentialsSecret() string {
	return firstNonEmpty(d.Secrets.Credentials, DefaultCredentialsSecret)
}

// APIKeySecret returns the name of the Dataform API key secret.
func (d *Definition) APIKeySecret() string {
	return firstNonEmpty(d.Secrets.APIKey, DefaultAPIKeySecret)
}

// BuildBucket returns the bucket holding uploaded projects.
func (d *Definition) BuildBucket() string {
	if d.Storage.BuildBucket != "" {
		return d.Storage.BuildBucket
	}
	if d.ProjectID == "" {
		return ""
	}
	return d.ProjectID + "-dataform-build"
}

// StagingBucket returns the bucket holding compiled pipeline packages.
func (d *Definition) StagingBucket() string {
	if d.Storage.StagingBucket != "" {
		return d.Storage.StagingBucket
	}
	if d.ProjectID == "" {
		return ""
	}
	return d.ProjectID + "-staging"
}

// Prefix returns the object prefix below the author segment.
func (d *Definition) Prefix() string {
	return firstNonEmpty(d.Storage.Prefix, DefaultPrefix)
}

// PipelineRoot returns the gs:// root for pipeline artifacts.
func (d *Definition) PipelineRoot() string {
	if d.Pipeline.PipelineRoot != "" {
		return d.Pipeline.PipelineRoot
	}
	if bucket := d.StagingBucket(); bucket != "" {
		return fmt.Sprintf("gs://%s/kfp", bucket)
	}
	return ""
}

// ImageRegistry returns the container registry host.
func (d *Definition) ImageRegistry() string {
	return firstNonEmpty(d.Pipeline.ImageRegistry, DefaultImageRegistry)
}

// ImageFolder returns the per-example image folder.
func (d *Definition) ImageFolder() string {
	return firstNonEmpty(d.Pipeline.ImageFolder, DefaultImageFolder)
}

// APIBaseURL returns the Dataform web API base URL.
func (d *Definition) APIBaseURL() string {
	return strings.TrimRight(firstNonEmpty(d.Dataform.APIBaseURL, DefaultAPIBaseURL), "/")
}

// PollInterval returns the remote-run poll interval.
func (d *Definition) PollInterval() time.Duration {
	if d.Dataform.PollInterval > 0 {
		return d.Dataform.PollInterval
	}
	return DefaultPollInterval
}

// RunTimeout returns the maximum time to wait for a remote run.
func (d *Definition) RunTimeout() time.Duration {
	if d.Dataform.RunTimeout > 0 {
		return d.Dataform.RunTimeout
	}
	return DefaultRunTimeout
}

// CLIPackage returns the npm package providing the dataform binary.
func (d *Definition) CLIPackage() string {
	return firstNonEmpty(d.Dataform.CLIPackage, DefaultCLIPackage)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
