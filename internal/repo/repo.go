// Package repo fetches a fresh working copy of the Dataform project
// repository.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/secure"
)

// Cloner performs a full clone of opts.URL into dest.
type Cloner interface {
	Clone(ctx context.Context, dest string, opts *git.CloneOptions) error
}

// GoGitCloner clones with go-git, no git binary required.
type GoGitCloner struct{}

// Clone implements Cloner.
func (GoGitCloner) Clone(ctx context.Context, dest string, opts *git.CloneOptions) error {
	_, err := git.PlainCloneContext(ctx, dest, false, opts)
	return err
}

// Fetcher clones repositories, injecting credentials at clone time.
type Fetcher struct {
	Cloner Cloner
	// Token, when set, authenticates the clone and takes precedence over
	// any credentials embedded in the URL.
	Token  *secure.Value
	Logger *logging.Logger
}

// New returns a Fetcher backed by go-git.
func New(token *secure.Value, logger *logging.Logger) *Fetcher {
	return &Fetcher{Cloner: GoGitCloner{}, Token: token, Logger: logger}
}

// Clone replaces dest with a full clone of rawURL. Any directory already at
// dest is removed first. It returns the repository URL with credentials
// stripped, safe to log or store.
func (f *Fetcher) Clone(ctx context.Context, rawURL, dest string) (string, error) {
	cleanURL, auth, err := f.authFor(rawURL)
	if err != nil {
		return "", err
	}

	if err := resetDir(dest); err != nil {
		return cleanURL, err
	}

	logger := f.logger()
	logger.Info("Cloning %s into %s", cleanURL, dest)

	cloner := f.Cloner
	if cloner == nil {
		cloner = GoGitCloner{}
	}
	opts := &git.CloneOptions{URL: cleanURL}
	if auth != nil {
		opts.Auth = auth
	}
	if err := cloner.Clone(ctx, dest, opts); err != nil {
		return cleanURL, classify(cleanURL, err)
	}
	return cleanURL, nil
}

func (f *Fetcher) logger() *logging.Logger {
	if f.Logger == nil {
		return logging.Discard()
	}
	return f.Logger
}

// authFor splits rawURL into a credential-free URL and basic auth. A token
// in the userinfo may appear as the password or alone as the username.
func (f *Fetcher) authFor(rawURL string) (string, *githttp.BasicAuth, error) {
	if rawURL == "" {
		return "", nil, dserrors.ConfigError{
			Field:      "repo_url",
			Message:    "repository URL is required",
			Suggestion: "Pass --repo-url or set repo_url in dfops.yaml",
		}
	}
	if ep, err := transport.NewEndpoint(rawURL); err == nil && ep.Protocol == "ssh" {
		return f.sshURL(rawURL, ep)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, dserrors.ConfigError{
			Field:   "repo_url",
			Value:   logging.RedactURL(rawURL),
			Message: "invalid repository URL",
		}
	}

	var auth *githttp.BasicAuth
	if u.User != nil {
		user := u.User.Username()
		pass, hasPass := u.User.Password()
		if !hasPass {
			user, pass = "git", user
		}
		auth = &githttp.BasicAuth{Username: user, Password: pass}
		u.User = nil
	}

	if !f.Token.Empty() {
		token, err := f.Token.Reveal()
		if err != nil {
			return "", nil, err
		}
		auth = &githttp.BasicAuth{Username: "git", Password: token}
	}
	return u.String(), auth, nil
}

// sshURL passes ssh and scp-style URLs (git@host:org/repo.git) through
// unchanged. Authentication is left to the ssh agent and known_hosts.
func (f *Fetcher) sshURL(rawURL string, ep *transport.Endpoint) (string, *githttp.BasicAuth, error) {
	if ep.Password != "" {
		return "", nil, dserrors.ConfigError{
			Field:      "repo_url",
			Value:      logging.RedactURL(rawURL),
			Message:    "passwords are not supported in ssh repository URLs",
			Suggestion: "Use an https URL with secrets.git_token, or an ssh key",
		}
	}
	if !f.Token.Empty() {
		f.logger().Debug("secrets.git_token is ignored for ssh URL %s", rawURL)
	}
	return rawURL, nil, nil
}

func resetDir(dest string) error {
	info, err := os.Stat(dest)
	switch {
	case err == nil && info.IsDir():
		if err := os.RemoveAll(dest); err != nil {
			return dserrors.LocalStateError{Path: dest, Message: "cannot remove previous checkout", Err: err}
		}
	case err == nil:
		return dserrors.LocalStateError{Path: dest, Message: "destination exists and is not a directory"}
	case !os.IsNotExist(err):
		return dserrors.LocalStateError{Path: dest, Message: "cannot inspect destination", Err: err}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return dserrors.LocalStateError{Path: dest, Message: "cannot create checkout directory", Err: err}
	}
	return nil
}

func classify(cleanURL string, err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return dserrors.AuthError{System: "git", Op: "clone " + cleanURL, Err: err}
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return dserrors.NotFoundError{System: "git", Name: cleanURL, Err: err}
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return dserrors.LocalStateError{Path: cleanURL, Message: "remote repository is empty", Err: err}
	}
	return fmt.Errorf("clone %s: %w", cleanURL, err)
}
