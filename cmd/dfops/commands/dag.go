package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/workflow"
)

func NewDAGCommand(rt *Runtime) *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "List and trigger the built-in task DAGs",
	}
	cmd.PersistentFlags().StringVar(&workDir, "work-dir", "", "Directory for working copies (default: current directory)")

	registry := func() (*workflow.Registry, error) {
		return workflow.Builtin(workflow.Env{Config: rt.Config, WorkDir: workDir})
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered DAGs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := registry()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAG\tTAGS\tTASKS")
			for _, d := range r.List() {
				ordered, err := d.Order()
				if err != nil {
					return err
				}
				ids := make([]string, len(ordered))
				for i, t := range ordered {
					ids[i] = t.ID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, strings.Join(d.Tags, ","), strings.Join(ids, " -> "))
			}
			return w.Flush()
		},
	}

	var conf []string
	trigger := &cobra.Command{
		Use:   "trigger <dag-id>",
		Short: "Run a DAG in-process",
		Long: `Run one of the built-in DAGs to completion in this process.

Examples:
  dfops dag trigger dataform_simple_example --conf example_value=nightly
  dfops dag trigger dataform_audience_example --conf author=jdoe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.def(); err != nil {
				return err
			}
			values, err := parseConf(conf)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			deps, cleanup, err := rt.deps(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			r, err := workflow.Builtin(workflow.Env{Config: rt.Config, Deps: deps, WorkDir: workDir})
			if err != nil {
				return err
			}
			d, ok := r.Get(args[0])
			if !ok {
				var known []string
				for _, d := range r.List() {
					known = append(known, d.ID)
				}
				return dserrors.UserError{
					Message:    fmt.Sprintf("unknown DAG %q", args[0]),
					Suggestion: "Available DAGs: " + strings.Join(known, ", "),
				}
			}

			if len(values) > 0 {
				rt.Config.Logger.Debug("Conf keys: %v", sortedKeys(values))
			}
			res, runErr := d.Run(ctx, values, rt.Config.Logger)
			if res != nil {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, id := range res.Order {
					fmt.Fprintf(w, "%s\t%s\n", id, res.States[id])
				}
				_ = w.Flush()
			}
			return runErr
		},
	}
	trigger.Flags().StringArrayVar(&conf, "conf", nil, "Run configuration as key=value (repeatable)")

	cmd.AddCommand(list, trigger)
	return cmd
}
