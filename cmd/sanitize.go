package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/floodcam/internal/capture"
)

func newSanitizeCmd() *cobra.Command {
	var (
		ordinal  int
		filename bool
	)
	cmd := &cobra.Command{
		Use:   "sanitize <label>",
		Short: "Print the file-safe name for a camera label",
		Long: `Print the file-safe name for a camera label.

A label that sanitizes to nothing prints the placeholder "` + capture.DefaultFallbackName + `",
the same name a capture cycle writes for it.`,
		Example: `  floodcam sanitize "Câmera: Av. Presidente Kennedy"
  floodcam sanitize --filename --ordinal 4 "Câmera: Canal 3"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := capture.Sanitize(strings.Join(args, " "))
			if name == "" {
				name = capture.DefaultFallbackName
			}
			if filename {
				name = capture.Filename(name, time.Now(), ordinal)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), name)
			return err
		},
	}
	cmd.Flags().BoolVar(&filename, "filename", false, "print the full screenshot filename")
	cmd.Flags().IntVar(&ordinal, "ordinal", 0, "zero-based marker ordinal used with --filename")
	return cmd
}
