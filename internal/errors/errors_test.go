package errors_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/dfops/internal/errors"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
}

func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "storage.build_bucket",
		Value:      "",
		Message:    "bucket is required",
		Suggestion: "Set storage.build_bucket in dfops.yaml",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "storage.build_bucket")
	assert.Contains(t, errMsg, "bucket is required")
	assert.Contains(t, errMsg, "dfops.yaml")
}

func TestCommandErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.CommandError{
		Command:  "dataform run",
		ExitCode: 2,
		Message:  "compilation failed",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "dataform run")
	assert.Contains(t, errMsg, "exit code: 2")
	assert.Contains(t, errMsg, "compilation failed")
}

func TestLocalStateErrorCarriesPath(t *testing.T) {
	t.Parallel()

	err := errors.LocalStateError{Path: "/tmp/x/dataform.json", Message: "invalid JSON", Err: fmt.Errorf("unexpected EOF")}

	assert.Contains(t, err.Error(), "/tmp/x/dataform.json")
	assert.Contains(t, err.Error(), "unexpected EOF")
	assert.Equal(t, errors.ClassLocalState, errors.Classify(fmt.Errorf("merge: %w", err)))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want errors.Class
	}{
		{"auth", errors.AuthError{System: "git", Op: "clone"}, errors.ClassAuth},
		{"not_found", errors.NotFoundError{System: "secretmanager", Name: "x"}, errors.ClassNotFound},
		{"transient", errors.TransientError{Op: "gcs upload", Err: fmt.Errorf("503")}, errors.ClassTransient},
		{"run_failed", errors.RunFailedError{RunID: "42", Status: "FAILED"}, errors.ClassRunFailed},
		{"canceled", fmt.Errorf("poll: %w", context.Canceled), errors.ClassCanceled},
		{"grpc_permission", status.Error(codes.PermissionDenied, "denied"), errors.ClassAuth},
		{"grpc_unauthenticated", status.Error(codes.Unauthenticated, "no creds"), errors.ClassAuth},
		{"grpc_not_found", status.Error(codes.NotFound, "missing"), errors.ClassNotFound},
		{"grpc_unavailable", status.Error(codes.Unavailable, "down"), errors.ClassTransient},
		{"plain", fmt.Errorf("boom"), errors.ClassUnknown},
		{"nil", nil, errors.ClassUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.Classify(tt.err))
		})
	}
}

func TestFromGRPC(t *testing.T) {
	t.Parallel()

	err := errors.FromGRPC("secretmanager", "access", "dataform_api_key", status.Error(codes.NotFound, "no such secret"))
	var nf errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "dataform_api_key", nf.Name)

	err = errors.FromGRPC("secretmanager", "access", "x", status.Error(codes.PermissionDenied, "denied"))
	var auth errors.AuthError
	assert.ErrorAs(t, err, &auth)
	assert.Contains(t, err.Error(), "denied")

	plain := fmt.Errorf("plain")
	assert.Equal(t, plain, errors.FromGRPC("s", "op", "n", plain))
	assert.NoError(t, errors.FromGRPC("s", "op", "n", nil))
}

// TestWrapCommandNotFound verifies command not found errors have helpful suggestions
func TestWrapCommandNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command            string
		expectedSuggestion string
	}{
		{"npm", "Node.js"},
		{"dataform", "@dataform/cli"},
		{"git", "Git"},
		{"unknown-cmd", "in your PATH"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()

			err := errors.WrapCommandNotFound(tt.command, fmt.Errorf("command not found"))

			errMsg := err.Error()
			assert.Contains(t, errMsg, tt.command)
			assert.Contains(t, errMsg, tt.expectedSuggestion)
		})
	}
}

// TestIsRetryable verifies retryable error detection
func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"timeout", fmt.Errorf("operation timeout"), true},
		{"rate_limit", fmt.Errorf("rate limit exceeded"), true},
		{"connection_reset", fmt.Errorf("connection reset by peer"), true},
		{"transient_type", errors.TransientError{Op: "status", Err: fmt.Errorf("HTTP 502")}, true},
		{"grpc_unavailable", status.Error(codes.Unavailable, "try later"), true},
		{"auth", errors.AuthError{System: "dataform-api", Op: "trigger"}, false},
		{"not_found", fmt.Errorf("resource not found"), false},
		{"nil_error", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, errors.IsRetryable(tt.err))
		})
	}
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	simplified := errors.SimplifyError(fmt.Errorf("yaml: line 5: mapping values are not allowed"))
	_, ok := simplified.(errors.ConfigError)
	assert.True(t, ok, "Should be ConfigError type")

	simplified = errors.SimplifyError(fmt.Errorf("open x: permission denied"))
	_, ok = simplified.(errors.UserError)
	assert.True(t, ok, "Should be UserError type")

	runErr := errors.RunFailedError{RunID: "1", Status: "FAILED"}
	assert.Equal(t, runErr, errors.SimplifyError(runErr))

	assert.Nil(t, errors.SimplifyError(nil))
}
