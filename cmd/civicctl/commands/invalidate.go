package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"civic/pkg/domain"
)

// invalidate --zip <zip> | --level <level> --district <id>: drop cache
// entries so the next lookup resolves afresh.
func invalidateCmd() *cobra.Command {
	var zip, level, district string
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop a cached jurisdiction or district roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (zip == "") == (level == "" && district == "") {
				return errors.New("give either --zip or --level with --district")
			}
			engine, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			if zip != "" {
				if err := engine.Service.Invalidate(cmd.Context(), zip); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated zip:%s\n", zip)
				return nil
			}
			lvl, err := domain.ParseLevel(level)
			if err != nil {
				return err
			}
			if district == "" {
				return errors.New("--district is required with --level")
			}
			if err := engine.Service.InvalidateDistrict(cmd.Context(), lvl, district); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated district:%s:%s\n", lvl, district)
			return nil
		},
	}
	cmd.Flags().StringVar(&zip, "zip", "", "ZIP code whose jurisdiction to drop")
	cmd.Flags().StringVar(&level, "level", "", "level of the district roster to drop")
	cmd.Flags().StringVar(&district, "district", "", "district ID of the roster to drop")
	return cmd
}
