// Package commands implements civicctl, the operator CLI.
package commands

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"civic/internal/app"
	"civic/internal/platform/config"
	"civic/internal/platform/logger"
)

var (
	configPath string
	logLevel   string
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "civicctl",
		Short:        "Resolve ZIP codes and manage the representative directory",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CIVIC_CONFIG)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for engine diagnostics on stderr")

	root.AddCommand(resolveCmd(), publishCmd(), validateCmd(), invalidateCmd())
	return root
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// buildApp wires the engine with diagnostics on the command's stderr.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), logLevel, "text")
	return app.Build(cmd.Context(), cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
