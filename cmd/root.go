// Package cmd defines and implements the CLI commands for the floodcam
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/floodcam/internal/app"
	"github.com/JakeFAU/floodcam/internal/config"
	"github.com/JakeFAU/floodcam/internal/pipeline"
)

// Service is what the run and once commands drive. It lets tests inject a
// fake in place of the fully wired application.
type Service interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) (pipeline.CycleReport, error)
}

// newService is the application factory. It's a variable so tests can
// replace it.
var newService = func(ctx context.Context, cfg config.Config) (Service, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "floodcam",
		Short: "Captures frames from a municipal traffic-camera map.",
		Long: `floodcam opens the public camera map, clicks every marker in turn and
screenshots the live frame behind it. Frames are classified for flooding,
archived and announced downstream.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	load := func() (config.Config, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cmd.AddCommand(newRunCmd(load))
	cmd.AddCommand(newOnceCmd(load))
	cmd.AddCommand(newSanitizeCmd())
	return cmd
}

type configLoader func() (config.Config, error)

func buildService(ctx context.Context, load configLoader) (Service, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	svc, err := newService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return svc, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "floodcam:", err)
		return 1
	}
	return 0
}
