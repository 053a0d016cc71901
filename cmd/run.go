package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture cycles forever, serving status and metrics",
		Long: `Repeats capture cycles with cycle.interval between them until interrupted.
The status server listens on server.addr when it is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService(cmd.Context(), load)
			if err != nil {
				return err
			}
			if err := svc.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			return nil
		},
	}
}
