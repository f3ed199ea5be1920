package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSweepCmd runs one sweep pass for deployments driven by an external scheduler.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Start due contests, expire finished ones and auto-submit overdue participants once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			report, err := comps.sweeper.Run(cmd.Context())
			logger.Info("sweep done",
				zap.Int("started", report.Started),
				zap.Int("ended", report.Ended),
				zap.Int("auto_submitted", report.AutoSubmitted))
			return err
		},
	}
}
