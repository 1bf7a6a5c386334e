package commands

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"civic/internal/directory"
	"civic/internal/quality"
)

type recordReport struct {
	ID         string              `json:"id"`
	DistrictID string              `json:"district_id"`
	Accepted   bool                `json:"accepted"`
	Violations []quality.Violation `json:"violations,omitempty"`
	Warnings   []quality.Violation `json:"warnings,omitempty"`
}

// validate <file>: run the quality gate over a roster file without
// publishing it. Exits non-zero when any record is rejected.
func validateCmd() *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "validate <roster.yaml>",
		Short: "Check a roster file against the quality rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := quality.DefaultRules()
			if rulesFile != "" {
				loaded, err := quality.LoadRules(rulesFile)
				if err != nil {
					return err
				}
				rules = loaded
			}
			gate, err := quality.NewGate(rules)
			if err != nil {
				return err
			}
			snap, err := directory.LoadRosterFile(args[0])
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			var reports []recordReport
			rejected := 0
			for _, districtID := range slices.Sorted(maps.Keys(snap.Districts)) {
				for _, rep := range snap.Districts[districtID] {
					res := gate.ValidateRecord(rep, now)
					if !res.Accepted {
						rejected++
					}
					reports = append(reports, recordReport{
						ID:         rep.ID,
						DistrictID: districtID,
						Accepted:   res.Accepted,
						Violations: res.Violations,
						Warnings:   res.Warnings,
					})
				}
			}
			if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			if rejected > 0 {
				return fmt.Errorf("%d of %d records rejected", rejected, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rules file overriding the built-in rules")
	return cmd
}
