package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/usecase/lifecycle"
	"morcore/internal/usecase/reportconsole"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Terminal console commands",
}

var consoleReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Start the report operations console",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, _ := cmd.Flags().GetString("actor")
		status, _ := cmd.Flags().GetString("status")
		includeClosed, _ := cmd.Flags().GetBool("closed")
		limit, _ := cmd.Flags().GetInt("limit")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")

		if err := reportconsole.Run(ctx, svc, reportconsole.Options{
			Actor:           actor,
			StatusFilter:    status,
			IncludeClosed:   includeClosed,
			Limit:           limit,
			RefreshInterval: refreshInterval,
		}); err != nil {
			return errs.Wrap(err, "run report console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.AddCommand(consoleReportsCmd)

	consoleReportsCmd.Flags().String("actor", "console", "Name recorded on every change")
	consoleReportsCmd.Flags().String("status", "", "Optional status filter (open|in_progress|review|paused|awaiting_reporter)")
	consoleReportsCmd.Flags().Bool("closed", false, "Include closed and cancelled reports")
	consoleReportsCmd.Flags().Int("limit", 100, "Maximum number of reports")
	consoleReportsCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
