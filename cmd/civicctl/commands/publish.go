package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"civic/internal/directory"
)

// publish <file>...: validate roster files and publish them as new directory
// snapshots.
func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <roster.yaml>...",
		Short: "Publish roster files as directory snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			if engine.Config.Directory.Backend != "postgres" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: directory backend is in-memory; the snapshot will not outlive this command")
			}
			for _, path := range args {
				snap, err := directory.LoadRosterFile(path)
				if err != nil {
					return err
				}
				if err := engine.Directory.Publish(cmd.Context(), snap); err != nil {
					return fmt.Errorf("publish %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %s v%d: %d districts, %d records\n",
					snap.Level, snap.Version, len(snap.Districts), snap.Count())
			}
			return nil
		},
	}
}
