// Package validation checks a loaded dfops definition before any external
// system is contacted.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/systmms/dfops/internal/config"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

// Result contains the outcome of a validation.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err returns nil for a valid result, otherwise a ConfigError listing every
// problem.
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	return dserrors.ConfigError{
		Message:    strings.Join(r.Errors, "; "),
		Suggestion: "Fix dfops.yaml or the matching environment variables",
	}
}

var (
	// GCS bucket names: 3-63 chars, lowercase letters, digits, dashes,
	// underscores and dots, starting and ending with a letter or digit.
	bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)
	numericID     = regexp.MustCompile(`^[0-9]+$`)
	secretName    = regexp.MustCompile(`^[A-Za-z0-9_/.:-]+$`)
)

var knownStores = map[string]bool{"": true, "gcp": true, "aws": true, "azure": true, "keyring": true}

// Options select the checks that depend on the command being run.
type Options struct {
	RequireAuthor   bool
	RequireDataform bool // remote runs need dataform.project_id
}

// Definition validates def.
func Definition(def *config.Definition, opts Options, logger *logging.Logger) *Result {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Result{Valid: true}

	if def.ProjectID == "" {
		r.warn("project_id is not set; it will be taken from application default credentials")
	}

	author := strings.TrimSpace(def.Author)
	switch {
	case author == "" && opts.RequireAuthor:
		r.fail("author is required")
	case strings.Contains(author, "/"):
		r.fail("author %q must not contain '/'", author)
	}

	if def.RepoURL != "" {
		checkRepoURL(r, def.RepoURL)
	}

	if !knownStores[strings.ToLower(def.SecretStore.Type)] {
		r.fail("secret_store.type %q is not one of gcp, aws, azure, keyring", def.SecretStore.Type)
	}
	for field, name := range map[string]string{
		"secrets.credentials": def.Secrets.Credentials,
		"secrets.api_key":     def.Secrets.APIKey,
		"secrets.git_token":   def.Secrets.GitToken,
	} {
		if name != "" && !secretName.MatchString(name) {
			r.fail("%s %q is not a valid secret name", field, name)
		}
	}

	for field, bucket := range map[string]string{
		"storage.build_bucket":   def.Storage.BuildBucket,
		"storage.staging_bucket": def.Storage.StagingBucket,
	} {
		if bucket != "" && !bucketPattern.MatchString(bucket) {
			r.fail("%s %q is not a valid bucket name", field, bucket)
		}
	}
	if strings.HasPrefix(def.Storage.Prefix, "/") || strings.HasSuffix(def.Storage.Prefix, "/") {
		r.warn("storage.prefix %q has leading or trailing slashes; they are ignored", def.Storage.Prefix)
	}
	if root := def.Pipeline.PipelineRoot; root != "" && !strings.HasPrefix(root, "gs://") {
		r.fail("pipeline.pipeline_root %q must be a gs:// URI", root)
	}

	switch id := def.Dataform.ProjectID; {
	case id == "" && opts.RequireDataform:
		r.fail("dataform.project_id is required")
	case id != "" && !numericID.MatchString(id):
		r.warn("dataform.project_id %q is not numeric", id)
	}
	if _, err := url.ParseRequestURI(def.APIBaseURL()); err != nil {
		r.fail("dataform.api_base_url %q is not a URL", def.Dataform.APIBaseURL)
	}
	if def.PollInterval() > def.RunTimeout() {
		r.fail("dataform.poll_interval %s exceeds dataform.run_timeout %s", def.PollInterval(), def.RunTimeout())
	}
	if def.Retry.MaxAttempts < 0 {
		r.fail("retry.max_attempts must not be negative")
	}

	for _, w := range r.Warnings {
		logger.Debug("config: %s", w)
	}
	return r
}

func checkRepoURL(r *Result, raw string) {
	if strings.HasPrefix(raw, "git@") {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Host == "" && u.Scheme != "file") {
		r.fail("repo_url %q is not a URL", maskURL(raw))
		return
	}
	if u.User != nil {
		r.warn("repo_url %s embeds credentials; prefer secrets.git_token", maskURL(raw))
	}
}

// maskURL hides userinfo so tokens never reach error messages.
func maskURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + maskValue(raw[scheme+3:at]) + raw[at:]
}

// maskValue masks a credential for safe display.
func maskValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "***" + value[len(value)-3:]
}
