package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/trigger"
)

// triggerHandler wires the storage-event handler for the configured author.
func (rt *Runtime) triggerHandler(ctx context.Context, author string) (*trigger.Handler, func(), error) {
	noop := func() {}
	if _, err := rt.def(); err != nil {
		return nil, noop, err
	}
	who, err := resolveAuthor(rt.Config, author)
	if err != nil {
		return nil, noop, err
	}
	if rt.Config.Def().Dataform.ProjectID == "" {
		return nil, noop, dserrors.ConfigError{
			Field:      "dataform.project_id",
			Message:    "Dataform project id is required to trigger runs",
			Suggestion: "Set dataform.project_id in dfops.yaml or export DATAFORM_PROJECT_ID",
		}
	}

	accessor, err := rt.accessor(ctx)
	if err != nil {
		return nil, noop, err
	}
	runner, err := rt.remoteRun(ctx, accessor)
	if err != nil {
		return nil, noop, err
	}
	store, closeStore, err := rt.store(ctx)
	if err != nil {
		return nil, noop, err
	}
	cleanup := noop
	if closeStore != nil {
		cleanup = func() { _ = closeStore() }
	}

	return &trigger.Handler{
		Author: who,
		Store:  store,
		Runner: runner,
		Retry:  rt.retryPolicy(),
		Logger: rt.Config.Logger,
	}, cleanup, nil
}

func NewTriggerCommand(rt *Runtime) *cobra.Command {
	var (
		bucket string
		object string
		author string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Handle one storage event: trigger a remote Dataform run and wait for it",
		Long: `Process a single object-finalized event the way the storage-triggered
function does. Objects outside the author's folder or not ending in .json
are ignored.

Examples:
  dfops trigger --bucket mms-dataform-events --object jdoe/run.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			h, cleanup, err := rt.triggerHandler(ctx, author)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := h.Handle(ctx, trigger.Event{Bucket: bucket, Name: object})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket of the finalized object (required)")
	cmd.Flags().StringVar(&object, "object", "", "Name of the finalized object (required)")
	cmd.Flags().StringVar(&author, "author", "", "Author folder to react to (default: author from config)")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("object")

	return cmd
}
