package commands

import (
	"time"

	"github.com/spf13/cobra"
)

// resolve <zip>: print the bundle for a ZIP code.
func resolveCmd() *cobra.Command {
	var deadline time.Duration
	cmd := &cobra.Command{
		Use:   "resolve <zip>",
		Short: "Resolve a ZIP code to its jurisdiction and representatives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			bundle, err := engine.Service.Resolve(cmd.Context(), args[0], deadline)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), bundle)
		},
	}
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall deadline (default from config)")
	return cmd
}
