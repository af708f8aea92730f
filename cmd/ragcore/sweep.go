package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ragcore/internal/di"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep and exit",
	Long: `Purges idle memories past the retention window and deletes expired
evaluation runs. The serve command schedules the same sweep on a cron;
this is for one-off runs and external schedulers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		container, err := di.InitializeContainer(cfg)
		if err != nil {
			return fmt.Errorf("initialize container: %w", err)
		}
		defer container.Shutdown(context.Background())

		container.Janitor.Sweep(cmd.Context())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
