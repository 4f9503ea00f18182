package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/dfops/cmd/dfops/commands"
	"github.com/systmms/dfops/internal/config"
	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	secure.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	cfg := &config.Config{}
	rt := commands.NewRuntime(cfg)

	rootCmd := &cobra.Command{
		Use:   "dfops",
		Short: "Dataform orchestration - load, stage and run Dataform projects",
		Long: `dfops moves a Dataform project between its git repository, Cloud Storage
and the Dataform CLI, and runs it from task DAGs, container pipelines or
storage events.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.NonInteractive = nonInteractive
			return cfg.Load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "dfops.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	rootCmd.AddCommand(
		commands.NewLoadCommand(rt),
		commands.NewRunCommand(rt),
		commands.NewDAGCommand(rt),
		commands.NewPipelineCommand(rt),
		commands.NewTriggerCommand(rt),
		commands.NewServeCommand(rt),
		commands.NewSecretCommand(rt),
		commands.NewDoctorCommand(rt),
	)

	return rootCmd.Execute()
}
