package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type onceOutput struct {
	CycleID      string `json:"cycle_id"`
	Discovered   int    `json:"discovered"`
	Captured     int    `json:"captured"`
	Unavailable  int    `json:"unavailable"`
	Skipped      int    `json:"skipped"`
	Archived     int    `json:"archived"`
	ArchiveFails int    `json:"archive_failures"`
	Floods       int    `json:"floods"`
	Aborted      bool   `json:"aborted"`
	AbortReason  string `json:"abort_reason,omitempty"`
}

func newOnceCmd(load configLoader) *cobra.Command {
	var failOnAbort bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single capture cycle and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService(cmd.Context(), load)
			if err != nil {
				return err
			}
			report, err := svc.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("once: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(onceOutput{
				CycleID:      report.ID,
				Discovered:   report.Summary.Discovered,
				Captured:     report.Summary.Captured,
				Unavailable:  report.Summary.Unavailable,
				Skipped:      report.Summary.Skipped,
				Archived:     report.Archived,
				ArchiveFails: report.Failed,
				Floods:       report.Floods,
				Aborted:      report.Summary.Aborted,
				AbortReason:  report.Summary.AbortReason,
			}); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if failOnAbort && report.Summary.Aborted {
				return fmt.Errorf("cycle %s aborted: %s", report.ID, report.Summary.AbortReason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnAbort, "fail-on-abort", false, "exit non-zero when the cycle aborts")
	return cmd
}
