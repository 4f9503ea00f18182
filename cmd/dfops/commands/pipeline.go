package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/dfops/internal/config"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/pipeline"
)

func NewPipelineCommand(rt *Runtime) *cobra.Command {
	var (
		author string
		flavor string
		mode   string
	)

	build := func() (*pipeline.Pipeline, *config.Definition, error) {
		def, err := rt.def()
		if err != nil {
			return nil, nil, err
		}
		who, err := resolveAuthor(rt.Config, author)
		if err != nil {
			return nil, nil, err
		}
		f, err := pipeline.ParseFlavor(flavor)
		if err != nil {
			return nil, nil, err
		}
		if def.ProjectID == "" {
			if _, err := rt.Config.ResolveProject(context.Background()); err != nil {
				return nil, nil, err
			}
		}
		p, err := pipeline.Build(def, who, f)
		return p, def, err
	}

	compile := newPipelineCompileCommand(rt, build)
	run := newPipelineRunCommand(rt, build)

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Compile or locally run the container pipeline",
		Long: `Build the two-step container pipeline (load the repository into GCS, then
run Dataform from GCS) for an author.

Examples:
  dfops pipeline compile --author jdoe
  dfops pipeline compile --author jdoe --flavor v2
  dfops pipeline run --author jdoe --param example_value=nightly
  dfops pipeline --mode compile --author jdoe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch mode {
			case "":
				return cmd.Help()
			case "compile":
				return compile.RunE(compile, nil)
			case "run":
				return run.RunE(run, nil)
			}
			return dserrors.UserError{
				Message:    fmt.Sprintf("unknown mode %q", mode),
				Suggestion: "Use --mode compile or --mode run",
			}
		},
	}
	cmd.PersistentFlags().StringVar(&author, "author", "", "Author the pipeline and its images are scoped to")
	cmd.PersistentFlags().StringVar(&flavor, "flavor", string(pipeline.FlavorV1), "Package flavor: v1 or v2")
	cmd.Flags().StringVar(&mode, "mode", "", "Alias for the compile and run subcommands")

	cmd.AddCommand(compile, run)
	return cmd
}

type pipelineBuilder func() (*pipeline.Pipeline, *config.Definition, error)

func newPipelineCompileCommand(rt *Runtime, build pipelineBuilder) *cobra.Command {
	var (
		outDir string
		upload bool
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Write the pipeline package and upload it to the pipeline root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, def, err := build()
			if err != nil {
				return err
			}
			logger := rt.Config.Logger
			logger.Info("Compiling pipeline...")
			path, err := p.WritePackage(outDir, rt.now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)

			if !upload {
				return nil
			}
			root := p.Root
			if root == "" {
				root = def.PipelineRoot()
			}
			if root == "" {
				logger.Warn("No pipeline root configured, package not uploaded")
				return nil
			}

			ctx := commandContext(cmd)
			store, closeStore, err := rt.store(ctx)
			if err != nil {
				return err
			}
			if closeStore != nil {
				defer closeStore()
			}
			dest, err := pipeline.Publish(ctx, store, root, path)
			if err != nil {
				return err
			}
			logger.Info("Uploaded pipeline package to %s", dest)
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", pipeline.PackageDir, "Directory the package is written to")
	cmd.Flags().BoolVar(&upload, "upload", true, "Upload the package to {pipeline_root}/packages/")
	return cmd
}

func newPipelineRunCommand(rt *Runtime, build pipelineBuilder) *cobra.Command {
	var (
		pkg    string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the compiled pipeline steps on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseConf(params)
			if err != nil {
				return err
			}

			var p *pipeline.Pipeline
			if pkg != "" {
				if _, err := rt.def(); err != nil {
					return err
				}
				f, err := os.Open(pkg)
				if err != nil {
					return dserrors.LocalStateError{Path: pkg, Message: "cannot open pipeline package", Err: err}
				}
				defer f.Close()
				if p, err = pipeline.Load(f); err != nil {
					return err
				}
			} else {
				if p, _, err = build(); err != nil {
					return err
				}
			}

			res, err := p.RunLocal(commandContext(cmd), rt.entrypoints(), overrides, rt.Config.Logger)
			if res != nil {
				for _, id := range res.Order {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, res.States[id])
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "Compiled package to run (default: build from config)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Pipeline parameter as key=value (repeatable)")
	return cmd
}

// entrypoints maps component commands to the in-process load and run
// commands.
func (rt *Runtime) entrypoints() map[string]pipeline.Entrypoint {
	wrap := func(newCmd func(*Runtime) *cobra.Command) pipeline.Entrypoint {
		return func(ctx context.Context, args []string) error {
			c := newCmd(rt)
			c.SetArgs(args)
			c.SetOut(rt.stdout())
			c.SilenceUsage = true
			c.SilenceErrors = true
			return c.ExecuteContext(ctx)
		}
	}
	return map[string]pipeline.Entrypoint{
		"load": wrap(NewLoadCommand),
		"run":  wrap(NewRunCommand),
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
