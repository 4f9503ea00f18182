package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/dfops/internal/runner"
	"github.com/systmms/dfops/internal/validation"
)

// CheckResult is one line of the doctor report.
type CheckResult struct {
	Name    string
	Status  string // ok, warn, error
	Message string
}

func NewDoctorCommand(rt *Runtime) *cobra.Command {
	var skipSecrets bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, secret access and local tooling",
		Long: `Verify that dfops is ready to run.

This command checks:
- Configuration validity
- Access to the warehouse credentials secret
- The npm and dataform binaries used for local runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := rt.def()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			var results []CheckResult

			v := validation.Definition(def, validation.Options{}, rt.Config.Logger)
			switch {
			case !v.Valid:
				results = append(results, CheckResult{"config", "error", strings.Join(v.Errors, "; ")})
			case len(v.Warnings) > 0:
				results = append(results, CheckResult{"config", "warn", strings.Join(v.Warnings, "; ")})
			default:
				results = append(results, CheckResult{"config", "ok", rt.Config.Path})
			}

			if !skipSecrets {
				results = append(results, checkCredentials(cmd, rt, def.CredentialsSecret()))
			}

			r := &runner.Runner{Exec: rt.Exec, Logger: rt.Config.Logger}
			versions, err := r.Versions(ctx)
			for _, tool := range []string{"npm", "dataform"} {
				if version, ok := versions[tool]; ok {
					results = append(results, CheckResult{tool, "ok", version})
				}
			}
			if err != nil {
				results = append(results, CheckResult{"tools", "error", err.Error()})
			}

			failed := displayResults(cmd.OutOrStdout(), results)
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			rt.Config.Logger.Info("✓ All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipSecrets, "skip-secrets", false, "Do not contact the secret store")
	return cmd
}

func checkCredentials(cmd *cobra.Command, rt *Runtime, name string) CheckResult {
	ctx := commandContext(cmd)
	accessor, err := rt.accessor(ctx)
	if err != nil {
		return CheckResult{"secret " + name, "error", err.Error()}
	}
	payload, err := accessor.Get(ctx, name)
	if err != nil {
		return CheckResult{"secret " + name, "error", err.Error()}
	}
	if !json.Valid([]byte(payload)) {
		return CheckResult{"secret " + name, "error", "payload is not valid JSON"}
	}
	return CheckResult{"secret " + name, "ok", "readable"}
}

func displayResults(w io.Writer, results []CheckResult) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "CHECK\tSTATUS\tDETAIL\n")

	failed := 0
	for _, r := range results {
		status := r.Status
		switch r.Status {
		case "ok":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
			failed++
		default:
			status = "! " + status
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, status, r.Message)
	}
	_ = tw.Flush()
	return failed
}
