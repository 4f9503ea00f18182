package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/dfops/internal/objectstore"
	"github.com/systmms/dfops/internal/tasks"
)

// DefaultInputBucket is used when neither the flag nor the config names a
// build bucket.
const DefaultInputBucket = "mms-dataform-builds"

func NewRunCommand(rt *Runtime) *cobra.Command {
	var (
		projectID   string
		bucket      string
		prefix      string
		tags        []string
		outputDir   string
		skipInstall bool
		installCLI  bool
		keep        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download a Dataform project from GCS and run it",
		Long: `Download the project saved under a GCS prefix, write the warehouse
credentials next to it and run the Dataform CLI. This is the second
pipeline step.

Examples:
  dfops run --input-gcs-bucket mms-dataform-builds --input-gcs-prefix jdoe/dataform_folder
  dfops run --tags orchestrator_audience --output-dir gcs_example`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := rt.def()
			if err != nil {
				return err
			}
			if projectID != "" {
				def.ProjectID = projectID
			}
			if bucket == "" {
				bucket = def.BuildBucket()
			}
			if bucket == "" {
				bucket = DefaultInputBucket
			}
			if prefix == "" {
				prefix = def.Prefix()
			}
			if len(tags) == 0 {
				tags = def.Dataform.DefaultTags
			}

			ctx := cmd.Context()
			deps, cleanup, err := rt.deps(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			return deps.DownloadAndRun(ctx, tasks.RunInput{
				Src:         objectstore.NewLocation(bucket, prefix),
				DestDir:     outputDir,
				Tags:        tags,
				InstallCLI:  installCLI,
				SkipInstall: skipInstall,
				ShowConfig:  rt.Config.Logger.DebugEnabled(),
				Keep:        keep,
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "GCP project (default: from config or application default credentials)")
	cmd.Flags().StringVar(&bucket, "input-gcs-bucket", "", "Source bucket (default: build bucket, else "+DefaultInputBucket+")")
	cmd.Flags().StringVar(&prefix, "input-gcs-prefix", "", "Source prefix (default: storage.prefix)")
	cmd.Flags().StringArrayVar(&tags, "tags", nil, "Only run actions with this tag (repeatable)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "Local directory the project is downloaded into")
	cmd.Flags().BoolVar(&skipInstall, "skip-install", false, "Skip npm install in the project directory")
	cmd.Flags().BoolVar(&installCLI, "install-cli", false, "Install the Dataform CLI globally first")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the downloaded project after the run")

	return cmd
}
