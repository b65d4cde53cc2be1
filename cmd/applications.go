package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/applications"
	"morcore/internal/usecase/lifecycle"
)

var applicationsCmd = &cobra.Command{
	Use:   "applications",
	Short: "Manage the external applications tasks are handed to",
}

var applicationsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load the application registry file into the database",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		if strings.TrimSpace(file) == "" {
			file = app.Config.Applications.RegistryFile
		}
		ctx = logging.WithAttrs(ctx, slog.String("registry_file", file))

		apps, err := applications.LoadRegistry(file)
		if err != nil {
			logging.Error(ctx, "load application registry failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "load application registry")
		}

		synced, err := svc.SyncApplications(ctx, apps)
		if err != nil {
			logging.Error(ctx, "sync applications failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "sync applications")
		}

		for _, item := range synced {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "synced %s base_url=%s task_types=%d\n",
				item.Name, item.BaseURL, len(item.TaskTypes)); err != nil {
				return errs.Wrap(err, "write sync output")
			}
		}
		return nil
	}),
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the known applications",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		items, err := svc.ListApplications(ctx)
		if err != nil {
			logging.Error(ctx, "list applications failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list applications")
		}

		if len(items) == 0 {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no applications"); err != nil {
				return errs.Wrap(err, "write list output")
			}
			return nil
		}

		for _, item := range items {
			credentials := "none"
			if item.Username != "" {
				credentials = item.Username
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s base_url=%s user=%s task_types=%s\n",
				item.Name, item.BaseURL, credentials, joinOrDash(item.TaskTypes)); err != nil {
				return errs.Wrap(err, "write list item")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(applicationsCmd)
	applicationsCmd.AddCommand(applicationsSyncCmd)
	applicationsCmd.AddCommand(applicationsListCmd)

	applicationsSyncCmd.Flags().String("file", "", "Registry TOML file (default: applications.registry_file)")
}
