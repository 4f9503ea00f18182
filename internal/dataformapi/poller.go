package dataformapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/metrics"
)

// Status is the state of a remote run.
type Status string

const (
	StatusRunning    Status = "RUNNING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// Running reports whether the run has not reached a terminal state.
func (s Status) Running() bool { return s == StatusRunning }

// Succeeded reports a successful terminal state.
func (s Status) Succeeded() bool { return s == StatusSuccessful || s == StatusSuccess }

// Failed reports an unsuccessful terminal state.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusTimedOut
}

var (
	// ErrRunTimeout is returned when a run is still RUNNING at MaxDuration.
	ErrRunTimeout = errors.New("dataform run did not finish in time")
	// ErrUnknownStatus is returned for a status outside the known set.
	ErrUnknownStatus = errors.New("unknown dataform run status")
)

// StatusClient is what Poller needs from Client.
type StatusClient interface {
	Status(ctx context.Context, runID string) (Status, error)
}

// Poller waits for a run to reach a terminal state.
type Poller struct {
	Client StatusClient
	// Interval between polls while RUNNING. Zero means 5s.
	Interval time.Duration
	// MaxDuration bounds the whole wait. Zero means no bound beyond ctx.
	MaxDuration time.Duration
	// Sleep waits d or until ctx is done. Nil uses a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *logging.Logger
}

const defaultInterval = 5 * time.Second

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait polls runID immediately, then every Interval while it is RUNNING.
// Success returns the status and nil. Failure states return
// RunFailedError. Any other status returns ErrUnknownStatus.
func (p *Poller) Wait(ctx context.Context, runID string) (Status, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	waitCtx := ctx
	if p.MaxDuration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.MaxDuration)
		defer cancel()
	}

	start := time.Now()
	for polls := 1; ; polls++ {
		st, err := p.Client.Status(waitCtx, runID)
		metrics.RecordPoll()
		if err != nil {
			return "", p.interrupted(ctx, waitCtx, runID, err)
		}
		logger.Debug("Run %s status %s (poll %d)", runID, st, polls)

		switch {
		case st.Running():
			if err := sleep(waitCtx, interval); err != nil {
				return st, p.interrupted(ctx, waitCtx, runID, err)
			}
			continue
		case st.Succeeded():
			metrics.RecordRemoteRun(string(st), time.Since(start))
			logger.Info("Dataform run %s finished: %s", runID, st)
			return st, nil
		case st.Failed():
			metrics.RecordRemoteRun(string(st), time.Since(start))
			return st, dserrors.RunFailedError{RunID: runID, Status: string(st)}
		default:
			metrics.RecordRemoteRun("UNKNOWN", time.Since(start))
			return st, fmt.Errorf("%w: %q for run %s", ErrUnknownStatus, st, runID)
		}
	}
}

// interrupted distinguishes caller cancellation from our own deadline.
func (p *Poller) interrupted(parent, waitCtx context.Context, runID string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if waitCtx.Err() != nil {
		metrics.RecordRemoteRun("DEADLINE", p.MaxDuration)
		return fmt.Errorf("%w: run %s after %s", ErrRunTimeout, runID, p.MaxDuration)
	}
	return err
}

// Result describes a finished remote run.
type Result struct {
	RunID  string
	Status Status
}

// Execute triggers a run and waits for it. p.Client defaults to c.
func Execute(ctx context.Context, c *Client, p *Poller) (Result, error) {
	runID, err := c.Trigger(ctx)
	if err != nil {
		return Result{}, err
	}
	var poller Poller
	if p != nil {
		poller = *p
	}
	if poller.Client == nil {
		poller.Client = c
	}
	if poller.Logger == nil {
		poller.Logger = c.Logger
	}
	st, err := poller.Wait(ctx, runID)
	return Result{RunID: runID, Status: st}, err
}
