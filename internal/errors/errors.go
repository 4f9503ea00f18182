package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// AuthError is an authentication or authorization failure against an
// external system. It is never retried.
type AuthError struct {
	System  string // "secretmanager", "git", "gcs", "dataform-api"
	Op      string
	Message string
	Err     error
}

func (e AuthError) Error() string {
	msg := fmt.Sprintf("%s %s: not authorized", e.System, e.Op)
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e AuthError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing secret, object or repository.
type NotFoundError struct {
	System string
	Name   string
	Err    error
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found", e.System, e.Name)
}

func (e NotFoundError) Unwrap() error {
	return e.Err
}

// TransientError marks a failure that may succeed when retried.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// LocalStateError reports malformed or missing local state and carries the
// offending path.
type LocalStateError struct {
	Path    string
	Message string
	Err     error
}

func (e LocalStateError) Error() string {
	msg := e.Path + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e LocalStateError) Unwrap() error {
	return e.Err
}

// RunFailedError reports a remote run that reached a terminal failure state.
type RunFailedError struct {
	RunID  string
	Status string
}

func (e RunFailedError) Error() string {
	return fmt.Sprintf("dataform run %s finished with status %s", e.RunID, e.Status)
}

// Class is the failure category of an error.
type Class int

const (
	ClassUnknown Class = iota
	ClassAuth
	ClassNotFound
	ClassTransient
	ClassLocalState
	ClassRunFailed
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassAuth:
		return "auth"
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	case ClassLocalState:
		return "local_state"
	case ClassRunFailed:
		return "run_failed"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify returns the failure category of err, looking through wrapped
// errors first and falling back to gRPC status codes.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var authErr AuthError
	var notFound NotFoundError
	var transient TransientError
	var local LocalStateError
	var runFailed RunFailedError

	switch {
	case errors.As(err, &authErr):
		return ClassAuth
	case errors.As(err, &notFound):
		return ClassNotFound
	case errors.As(err, &local):
		return ClassLocalState
	case errors.As(err, &runFailed):
		return ClassRunFailed
	case errors.As(err, &transient):
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return ClassAuth
		case codes.NotFound:
			return ClassNotFound
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
			return ClassTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	return ClassUnknown
}

// FromGRPC converts a gRPC error from a Google client into the matching
// classified error. Unrecognised codes are returned unchanged.
func FromGRPC(system, op, name string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return AuthError{System: system, Op: op, Message: st.Message(), Err: err}
	case codes.NotFound:
		return NotFoundError{System: system, Name: name, Err: err}
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return TransientError{Op: system + " " + op, Err: err}
	}
	return err
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"npm":      "Install Node.js from https://nodejs.org/",
		"dataform": "Install the Dataform CLI: npm i -g @dataform/cli",
		"git":      "Install Git from https://git-scm.com/",
		"sh":       "A POSIX shell is required to run pipeline steps",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if Classify(err) == ClassTransient {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	switch err.(type) {
	case UserError, ConfigError, CommandError, AuthError, NotFoundError, LocalStateError, RunFailedError:
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
