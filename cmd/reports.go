package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
	"morcore/internal/usecase/lifecycle"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect and change reports",
}

var reportsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a report with its status history, events and tasks",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}

		detail, err := svc.GetReport(ctx, reportUUID)
		if err != nil {
			logging.Error(ctx, "get report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "get report")
		}

		out := cmd.OutOrStdout()
		item := detail.Report
		if _, err := fmt.Fprintf(out, "report %s status=%s urgency=%.2f subjects=%s\n",
			item.UUID, statusLabel(item.CurrentStatusName()), item.Urgency, joinOrDash(item.Subjects)); err != nil {
			return errs.Wrap(err, "write report header")
		}
		if item.ClosedAt != nil {
			resolution := "-"
			if item.Resolution != nil {
				resolution = string(*item.Resolution)
			}
			if _, err := fmt.Fprintf(out, "closed_at=%s resolution=%s\n", item.ClosedAt.Format("2006-01-02 15:04:05"), resolution); err != nil {
				return errs.Wrap(err, "write report closure")
			}
		}
		if _, err := fmt.Fprintf(out, "signals=%d locations=%d\n", len(detail.Signals), len(detail.Locations)); err != nil {
			return errs.Wrap(err, "write report counts")
		}

		if _, err := fmt.Fprintln(out, "statuses:"); err != nil {
			return errs.Wrap(err, "write statuses header")
		}
		for _, status := range detail.Statuses {
			if _, err := fmt.Fprintf(out, "- %s %s\n", status.CreatedAt.Format("2006-01-02 15:04:05"), status.Name); err != nil {
				return errs.Wrap(err, "write status")
			}
		}

		if _, err := fmt.Fprintln(out, "events:"); err != nil {
			return errs.Wrap(err, "write events header")
		}
		for _, event := range detail.Events {
			if _, err := fmt.Fprintf(out, "- %s %s actor=%s %s\n",
				event.CreatedAt.Format("2006-01-02 15:04:05"), event.Type, dashIfEmpty(event.Actor), event.DescriptionInternal); err != nil {
				return errs.Wrap(err, "write event")
			}
		}

		if _, err := fmt.Fprintln(out, "tasks:"); err != nil {
			return errs.Wrap(err, "write tasks header")
		}
		for _, task := range detail.Tasks {
			state := "open"
			if !task.IsOpen() {
				state = "closed"
			}
			if _, err := fmt.Fprintf(out, "- %s [%s] type=%s status=%s title=%s\n",
				task.UUID, state, task.TaskType, dashIfEmpty(string(task.CurrentStatusName())), task.Title); err != nil {
				return errs.Wrap(err, "write task")
			}
		}
		return nil
	}),
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		rawStatuses, _ := cmd.Flags().GetStringSlice("status")
		openOnly, _ := cmd.Flags().GetBool("open")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := ports.ReportFilter{OpenOnly: openOnly, Limit: limit}
		for _, raw := range rawStatuses {
			name, err := report.ParseStatusName(raw)
			if err != nil {
				return errs.Wrap(err, "parse --status")
			}
			filter.Statuses = append(filter.Statuses, name)
		}

		items, err := svc.ListReports(ctx, filter)
		if err != nil {
			logging.Error(ctx, "list reports failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list reports")
		}

		if len(items) == 0 {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no reports"); err != nil {
				return errs.Wrap(err, "write list output")
			}
			return nil
		}

		for _, item := range items {
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s [%s] urgency=%.2f subjects=%s created=%s\n",
				item.UUID,
				statusLabel(item.CurrentStatusName()),
				item.Urgency,
				joinOrDash(item.Subjects),
				item.OriginalCreatedAt.Format("2006-01-02 15:04"),
			); err != nil {
				return errs.Wrap(err, "write list item")
			}
		}
		return nil
	}),
}

var reportsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Move a report to another status",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}
		rawStatus, _ := cmd.Flags().GetString("to")
		status, err := report.ParseStatusName(rawStatus)
		if err != nil {
			return errs.Wrap(err, "parse --to")
		}

		input := lifecycle.ChangeStatusInput{
			ReportUUID: reportUUID,
			Status:     status,
		}
		input.Actor, _ = cmd.Flags().GetString("actor")
		input.DescriptionInternal, _ = cmd.Flags().GetString("internal")
		input.DescriptionExternal, _ = cmd.Flags().GetString("external")
		if raw, _ := cmd.Flags().GetString("resolution"); strings.TrimSpace(raw) != "" {
			resolution := report.Resolution(strings.ToLower(strings.TrimSpace(raw)))
			input.Resolution = &resolution
		}
		if cmd.Flags().Changed("close-reason") {
			reason, _ := cmd.Flags().GetString("close-reason")
			input.CloseReason = &reason
		}

		item, err := svc.ChangeStatus(ctx, input)
		if err != nil {
			logging.Error(ctx, "change report status failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "change report status")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "report %s status=%s\n", item.UUID, statusLabel(item.CurrentStatusName())); err != nil {
			return errs.Wrap(err, "write status output")
		}
		return nil
	}),
}

var reportsUrgencyCmd = &cobra.Command{
	Use:   "urgency",
	Short: "Change the urgency of a report",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}
		urgency, _ := cmd.Flags().GetFloat64("value")
		actor, _ := cmd.Flags().GetString("actor")
		internal, _ := cmd.Flags().GetString("internal")

		item, err := svc.ChangeUrgency(ctx, lifecycle.ChangeUrgencyInput{
			ReportUUID:          reportUUID,
			Urgency:             urgency,
			Actor:               actor,
			DescriptionInternal: internal,
		})
		if err != nil {
			logging.Error(ctx, "change urgency failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "change urgency")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "report %s urgency=%.2f\n", item.UUID, item.Urgency); err != nil {
			return errs.Wrap(err, "write urgency output")
		}
		return nil
	}),
}

var reportsEventCmd = &cobra.Command{
	Use:   "event",
	Short: "Append an event, optionally with a location or attachments",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}
		rawLocation, _ := cmd.Flags().GetString("location")
		location, err := parseLocationDocument(rawLocation)
		if err != nil {
			return err
		}
		eventType, _ := cmd.Flags().GetString("type")
		attachments, _ := cmd.Flags().GetStringSlice("attachment")

		input := lifecycle.AddEventInput{
			ReportUUID:  reportUUID,
			Type:        report.EventType(strings.TrimSpace(eventType)),
			Location:    location,
			Attachments: attachmentsFromPaths(attachments),
		}
		input.Actor, _ = cmd.Flags().GetString("actor")
		input.DescriptionInternal, _ = cmd.Flags().GetString("internal")
		input.DescriptionExternal, _ = cmd.Flags().GetString("external")

		event, err := svc.AddEvent(ctx, input)
		if err != nil {
			logging.Error(ctx, "add report event failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "add report event")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "added event %s type=%s\n", event.UUID, event.Type); err != nil {
			return errs.Wrap(err, "write event output")
		}
		return nil
	}),
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a report with everything that hangs off it",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}

		deleted, err := svc.DeleteReport(ctx, reportUUID)
		if err != nil {
			logging.Error(ctx, "delete report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "delete report")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted report %s\n", deleted.ReportUUID); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

var reportsRefreshCmd = &cobra.Command{
	Use:     "refresh-search-text",
	Aliases: []string{"refresh"},
	Short:   "Recompute search text, thumbnail and reference location",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		all, _ := cmd.Flags().GetBool("all")
		if all {
			count, err := svc.RefreshAllDerivedState(ctx)
			if err != nil {
				logging.Error(ctx, "refresh all reports failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "refresh all reports")
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d reports\n", count); err != nil {
				return errs.Wrap(err, "write refresh output")
			}
			return nil
		}

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}
		state, err := svc.RefreshDerivedStateByUUID(ctx, reportUUID)
		if err != nil {
			logging.Error(ctx, "refresh report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "refresh report")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "refreshed report %s search_text=%q\n", reportUUID, state.SearchText); err != nil {
			return errs.Wrap(err, "write refresh output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsStatusCmd)
	reportsCmd.AddCommand(reportsUrgencyCmd)
	reportsCmd.AddCommand(reportsEventCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsRefreshCmd)

	reportsShowCmd.Flags().String("report", "", "Report UUID")
	_ = reportsShowCmd.MarkFlagRequired("report")

	reportsListCmd.Flags().StringSlice("status", nil, "Only reports in these statuses")
	reportsListCmd.Flags().Bool("open", false, "Only reports that are not closed")
	reportsListCmd.Flags().Int("limit", 50, "Maximum number of reports")

	reportsStatusCmd.Flags().String("report", "", "Report UUID")
	reportsStatusCmd.Flags().String("to", "", "Target status")
	reportsStatusCmd.Flags().String("actor", "", "Who made the change")
	reportsStatusCmd.Flags().String("internal", "", "Internal description")
	reportsStatusCmd.Flags().String("external", "", "Description shown to the reporter")
	reportsStatusCmd.Flags().String("resolution", "", "Resolution when closing: resolved|unresolved")
	reportsStatusCmd.Flags().String("close-reason", "", "Reason when closing")
	_ = reportsStatusCmd.MarkFlagRequired("report")
	_ = reportsStatusCmd.MarkFlagRequired("to")

	reportsUrgencyCmd.Flags().String("report", "", "Report UUID")
	reportsUrgencyCmd.Flags().Float64("value", 0, "New urgency between 0 and 1")
	reportsUrgencyCmd.Flags().String("actor", "", "Who made the change")
	reportsUrgencyCmd.Flags().String("internal", "", "Internal description")
	_ = reportsUrgencyCmd.MarkFlagRequired("report")
	_ = reportsUrgencyCmd.MarkFlagRequired("value")

	reportsEventCmd.Flags().String("report", "", "Report UUID")
	reportsEventCmd.Flags().String("type", string(report.EventStandard), "Event type")
	reportsEventCmd.Flags().String("location", "", "Location as a JSON object")
	reportsEventCmd.Flags().StringSlice("attachment", nil, "Attachment path relative to the media root (repeatable)")
	reportsEventCmd.Flags().String("actor", "", "Who added the event")
	reportsEventCmd.Flags().String("internal", "", "Internal description")
	reportsEventCmd.Flags().String("external", "", "Description shown to the reporter")
	_ = reportsEventCmd.MarkFlagRequired("report")

	reportsDeleteCmd.Flags().String("report", "", "Report UUID")
	_ = reportsDeleteCmd.MarkFlagRequired("report")

	reportsRefreshCmd.Flags().String("report", "", "Report UUID")
	reportsRefreshCmd.Flags().Bool("all", false, "Refresh every report")
	reportsRefreshCmd.MarkFlagsOneRequired("report", "all")
	reportsRefreshCmd.MarkFlagsMutuallyExclusive("report", "all")
}

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errs.Wrapf(err, "parse --%s", name)
	}
	return id, nil
}

func statusLabel(name report.StatusName) string {
	return dashIfEmpty(string(name))
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
