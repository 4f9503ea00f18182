package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/secrets"
)

func NewSecretCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Inspect secrets in the configured store",
	}

	var mask bool
	get := &cobra.Command{
		Use:   "get <name>",
		Short: "Print the latest version of a secret",
		Long: `Print the latest version of a secret from the configured store.

Examples:
  dfops secret get dataform_credentials
  dfops secret get dataform_api_key --mask`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.def(); err != nil {
				return err
			}
			ctx := commandContext(cmd)
			accessor, err := rt.accessor(ctx)
			if err != nil {
				return err
			}
			value, err := secrets.GetSecure(ctx, accessor, args[0])
			if err != nil {
				return err
			}
			defer value.Destroy()

			return value.Use(func(plaintext []byte) error {
				if mask {
					fmt.Fprintln(cmd.OutOrStdout(), logging.Secret(string(plaintext)))
					return nil
				}
				_, err := cmd.OutOrStdout().Write(plaintext)
				return err
			})
		},
	}
	get.Flags().BoolVar(&mask, "mask", false, "Print a redacted placeholder instead of the value")

	cmd.AddCommand(get)
	return cmd
}
