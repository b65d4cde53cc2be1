package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/usecase/lifecycle"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Create and follow up tasks handed to external applications",
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task for a report; registration with the application happens in the worker",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reportUUID, err := uuidFlag(cmd, "report")
		if err != nil {
			return err
		}
		rawInfo, _ := cmd.Flags().GetString("info")
		info, err := parseAdditionalInfo(rawInfo)
		if err != nil {
			return err
		}

		input := lifecycle.CreateTaskInput{
			ReportUUID:     reportUUID,
			AdditionalInfo: info,
		}
		input.TaskType, _ = cmd.Flags().GetString("type")
		input.Title, _ = cmd.Flags().GetString("title")
		input.Message, _ = cmd.Flags().GetString("message")
		input.Actor, _ = cmd.Flags().GetString("actor")

		task, err := svc.CreateTask(ctx, input)
		if err != nil {
			logging.Error(ctx, "create task failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create task")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created task %s type=%s\n", task.UUID, task.TaskType); err != nil {
			return errs.Wrap(err, "write create output")
		}
		return nil
	}),
}

var tasksNotifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Record a status notification sent by the application owning a task",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		taskUUID, err := uuidFlag(cmd, "task")
		if err != nil {
			return err
		}
		rawInfo, _ := cmd.Flags().GetString("info")
		info, err := parseAdditionalInfo(rawInfo)
		if err != nil {
			return err
		}
		createdAt := time.Now().UTC()
		if raw, _ := cmd.Flags().GetString("created-at"); strings.TrimSpace(raw) != "" {
			createdAt, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
			if err != nil {
				return errs.Wrap(err, "parse --created-at")
			}
		}
		attachments, _ := cmd.Flags().GetStringSlice("attachment")

		input := lifecycle.TaskNotificationInput{
			TaskUUID:       taskUUID,
			CreatedAt:      createdAt,
			AdditionalInfo: info,
			Attachments:    attachmentsFromPaths(attachments),
		}
		if raw, _ := cmd.Flags().GetString("status"); strings.TrimSpace(raw) != "" {
			status := report.TaskStatusName(strings.ToLower(strings.TrimSpace(raw)))
			input.Status = &status
		}
		if raw, _ := cmd.Flags().GetString("resolution"); strings.TrimSpace(raw) != "" {
			resolution := report.TaskResolution(strings.ToLower(strings.TrimSpace(raw)))
			input.Resolution = &resolution
		}
		input.ResolutionRevised, _ = cmd.Flags().GetBool("revised")
		input.Actor, _ = cmd.Flags().GetString("actor")
		input.DescriptionInternal, _ = cmd.Flags().GetString("internal")

		result, err := svc.TaskStatusNotification(ctx, input)
		if err != nil {
			logging.Error(ctx, "task notification failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "task notification")
		}

		outcome := "recorded"
		switch {
		case result.Discarded:
			outcome = "discarded"
		case result.Reopened:
			outcome = "reopened report"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "task %s notification %s (report %s status=%s)\n",
			taskUUID, outcome, result.Report.UUID, statusLabel(result.Report.CurrentStatusName())); err != nil {
			return errs.Wrap(err, "write notify output")
		}
		return nil
	}),
}

var tasksStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Change the status of a task from this side",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		taskUUID, err := uuidFlag(cmd, "task")
		if err != nil {
			return err
		}
		rawStatus, _ := cmd.Flags().GetString("to")
		status := report.TaskStatusName(strings.ToLower(strings.TrimSpace(rawStatus)))
		if !report.IsKnownTaskStatus(status) {
			return errs.Wrapf(report.ErrInvalidStatus, "parse --to %q", rawStatus)
		}

		input := lifecycle.ChangeTaskStatusInput{
			TaskUUID: taskUUID,
			Status:   status,
		}
		if raw, _ := cmd.Flags().GetString("resolution"); strings.TrimSpace(raw) != "" {
			resolution := report.TaskResolution(strings.ToLower(strings.TrimSpace(raw)))
			input.Resolution = &resolution
		}
		input.ExternallyUnresolved, _ = cmd.Flags().GetBool("externally-unresolved")
		input.Actor, _ = cmd.Flags().GetString("actor")
		input.DescriptionInternal, _ = cmd.Flags().GetString("internal")

		task, err := svc.ChangeTaskStatus(ctx, input)
		if err != nil {
			logging.Error(ctx, "change task status failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "change task status")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "task %s status=%s\n", task.UUID, dashIfEmpty(string(task.CurrentStatusName()))); err != nil {
			return errs.Wrap(err, "write status output")
		}
		return nil
	}),
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Soft-delete a task; the application is told in the worker",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		taskUUID, err := uuidFlag(cmd, "task")
		if err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")

		task, err := svc.DeleteTask(ctx, lifecycle.DeleteTaskInput{TaskUUID: taskUUID, Actor: actor})
		if err != nil {
			logging.Error(ctx, "delete task failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "delete task")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", task.UUID); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

var tasksRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a task with its application right away instead of waiting for the worker",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		taskUUID, err := uuidFlag(cmd, "task")
		if err != nil {
			return err
		}
		detail, err := svc.GetTask(ctx, taskUUID)
		if err != nil {
			logging.Error(ctx, "get task failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "get task")
		}

		task, err := svc.RegisterExternalTask(ctx, detail.Task.ID)
		if err != nil {
			logging.Error(ctx, "register task failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "register task")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "registered task %s url=%s\n", task.UUID, dashIfEmpty(task.TaskURL)); err != nil {
			return errs.Wrap(err, "write register output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksNotifyCmd)
	tasksCmd.AddCommand(tasksStatusCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	tasksCmd.AddCommand(tasksRegisterCmd)

	tasksCreateCmd.Flags().String("report", "", "Report UUID")
	tasksCreateCmd.Flags().String("type", "", "Task type served by one of the applications")
	tasksCreateCmd.Flags().String("title", "", "Task title")
	tasksCreateCmd.Flags().String("message", "", "Message for the application")
	tasksCreateCmd.Flags().String("actor", "", "Who created the task")
	tasksCreateCmd.Flags().String("info", "", "Additional info as a JSON object")
	_ = tasksCreateCmd.MarkFlagRequired("report")
	_ = tasksCreateCmd.MarkFlagRequired("type")
	_ = tasksCreateCmd.MarkFlagRequired("title")

	tasksNotifyCmd.Flags().String("task", "", "Task UUID")
	tasksNotifyCmd.Flags().String("created-at", "", "Upstream event time (RFC3339); defaults to now")
	tasksNotifyCmd.Flags().String("status", "", "New task status: new|completed|completed_with_feedback")
	tasksNotifyCmd.Flags().String("resolution", "", "Resolution: resolved|unresolved|cancelled|not_found")
	tasksNotifyCmd.Flags().Bool("revised", false, "The application revised an earlier resolution")
	tasksNotifyCmd.Flags().String("actor", "", "Who reported the change")
	tasksNotifyCmd.Flags().String("internal", "", "Internal description")
	tasksNotifyCmd.Flags().String("info", "", "Additional info as a JSON object")
	tasksNotifyCmd.Flags().StringSlice("attachment", nil, "Attachment path relative to the media root (repeatable)")
	_ = tasksNotifyCmd.MarkFlagRequired("task")

	tasksStatusCmd.Flags().String("task", "", "Task UUID")
	tasksStatusCmd.Flags().String("to", "", "Target status: new|completed|completed_with_feedback")
	tasksStatusCmd.Flags().String("resolution", "", "Resolution: resolved|unresolved|cancelled|not_found")
	tasksStatusCmd.Flags().Bool("externally-unresolved", false, "Mark the task as unresolved outside the application")
	tasksStatusCmd.Flags().String("actor", "", "Who made the change")
	tasksStatusCmd.Flags().String("internal", "", "Internal description")
	_ = tasksStatusCmd.MarkFlagRequired("task")
	_ = tasksStatusCmd.MarkFlagRequired("to")

	tasksDeleteCmd.Flags().String("task", "", "Task UUID")
	tasksDeleteCmd.Flags().String("actor", "", "Who deleted the task")
	_ = tasksDeleteCmd.MarkFlagRequired("task")

	tasksRegisterCmd.Flags().String("task", "", "Task UUID")
	_ = tasksRegisterCmd.MarkFlagRequired("task")
}
