package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/dfops/internal/dfconfig"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/tasks"
)

func NewLoadCommand(rt *Runtime) *cobra.Command {
	var (
		repoURL      string
		exampleValue string
		author       string
		bucket       string
		prefix       string
		vars         []string
		workDir      string
		keep         bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Clone the Dataform project, set its vars and save it to GCS",
		Long: `Clone the Dataform project repository, merge vars into dataform.json and
upload the working copy to a GCS prefix. This is the first pipeline step.

Examples:
  dfops load --example-value nightly --author jdoe \
    --output-gcs-bucket mms-dataform-builds --output-gcs-prefix jdoe/dataform_folder

  # Extra vars
  dfops load --example-value x --var region=eu --var isAudienceEnabled=true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := rt.def()
			if err != nil {
				return err
			}
			who, err := resolveAuthor(rt.Config, author)
			if err != nil {
				return err
			}
			if repoURL == "" {
				repoURL = def.RepoURL
			}
			if repoURL == "" {
				return dserrors.UserError{
					Message:    "Repository URL is required",
					Suggestion: "Use --repo-url or set repo_url in dfops.yaml",
				}
			}
			if bucket == "" {
				bucket = def.BuildBucket()
			}
			if prefix == "" {
				prefix = def.Prefix()
			}

			extra, err := dfconfig.ParseAssignments(vars)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			deps, cleanup, err := rt.deps(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			dest := objectstore.NewLocation(bucket, prefix)
			rt.Config.Logger.Info("Loading %s into %s", logging.RedactURL(repoURL), dest)
			res, err := deps.LoadAndSave(ctx, tasks.LoadInput{
				RepoURL: repoURL,
				WorkDir: workDir,
				Vars:    tasks.Vars(exampleValue, who, extra),
				Dest:    dest,
				Keep:    keep,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d objects)\n", dest, res.Objects)
			return nil
		},
	}

	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Git URL of the Dataform project (default: repo_url from config)")
	cmd.Flags().StringVar(&exampleValue, "example-value", "", "Value written to vars.exampleValue (required)")
	cmd.Flags().StringVar(&author, "author", "", "Author name (default: author from config or $AUTHOR)")
	cmd.Flags().StringVar(&bucket, "output-gcs-bucket", "", "Destination bucket (default: build bucket)")
	cmd.Flags().StringVar(&prefix, "output-gcs-prefix", "", "Destination prefix (default: storage.prefix)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Extra var as key=value (repeatable)")
	cmd.Flags().StringVar(&workDir, "work-dir", "dataform", "Local clone directory")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the local clone after uploading")

	_ = cmd.MarkFlagRequired("example-value")

	return cmd
}
