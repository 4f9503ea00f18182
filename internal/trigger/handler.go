// Package trigger reacts to object-finalized notifications: when a JSON
// object lands under the author's folder it triggers a remote Dataform run
// and waits for it.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/metrics"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/retry"
)

// Event identifies a finalized object.
type Event struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Outcome of handling one event.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Runner triggers a remote run and waits for it to finish.
type Runner interface {
	Execute(ctx context.Context) (runID string, status string, err error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) (string, string, error)

// Execute calls f.
func (f RunnerFunc) Execute(ctx context.Context) (string, string, error) { return f(ctx) }

// Handler processes storage events for one author.
type Handler struct {
	Author string
	Store  objectstore.Store
	Runner Runner
	Retry  retry.Policy
	Logger *logging.Logger
}

// Matches reports whether the object name lies in a folder named after the
// author and ends in .json.
func (h *Handler) Matches(name string) bool {
	if h.Author == "" || !strings.HasSuffix(name, ".json") {
		return false
	}
	segments := strings.Split(name, "/")
	for _, seg := range segments[:len(segments)-1] {
		if seg == h.Author {
			return true
		}
	}
	return false
}

// Handle processes one event. Objects outside the author's folder or not
// ending in .json are skipped without side effects.
func (h *Handler) Handle(ctx context.Context, ev Event) (Outcome, error) {
	logger := h.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if !h.Matches(ev.Name) {
		logger.Debug("Ignoring gs://%s/%s", ev.Bucket, ev.Name)
		metrics.RecordStorageEvent(string(OutcomeSkipped))
		return OutcomeSkipped, nil
	}

	outcome, err := h.handle(ctx, ev, logger)
	metrics.RecordStorageEvent(string(outcome))
	return outcome, err
}

func (h *Handler) handle(ctx context.Context, ev Event, logger *logging.Logger) (Outcome, error) {
	uri := fmt.Sprintf("gs://%s/%s", ev.Bucket, ev.Name)

	var buf bytes.Buffer
	err := retry.Do(ctx, h.Retry, logger, "download "+uri, func(ctx context.Context) error {
		buf.Reset()
		_, err := h.Store.Download(ctx, ev.Bucket, ev.Name, &buf)
		return err
	})
	if err != nil {
		return OutcomeFailed, err
	}

	var content interface{}
	if err := json.Unmarshal(buf.Bytes(), &content); err != nil {
		return OutcomeFailed, dserrors.LocalStateError{Path: uri, Message: "malformed JSON", Err: err}
	}
	logger.Info("Received %s: %s", uri, compact(buf.Bytes()))

	runID, status, err := h.Runner.Execute(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	logger.Info("Dataform run %s finished with status %s", runID, status)
	return OutcomeSucceeded, nil
}

func compact(data []byte) string {
	var out bytes.Buffer
	if err := json.Compact(&out, data); err != nil {
		return string(data)
	}
	return out.String()
}
