package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/usecase/lifecycle"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Ingest incoming signals",
}

var signalsIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a signal from a JSON document and attach it to a report",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *lifecycle.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		input, err := readSignalDocument(file)
		if err != nil {
			return err
		}

		result, err := svc.IngestSignal(ctx, input)
		if err != nil {
			logging.Error(ctx, "ingest signal failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "ingest signal")
		}

		outcome := "attached"
		switch {
		case result.Replayed:
			outcome = "replayed"
		case result.Created:
			outcome = "created"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "signal %s %s report %s (urgency=%.2f)\n",
			result.Signal.UUID, outcome, result.Report.UUID, result.Report.Urgency); err != nil {
			return errs.Wrap(err, "write ingest output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(signalsCmd)
	signalsCmd.AddCommand(signalsIngestCmd)

	signalsIngestCmd.Flags().String("file", "", "Path to the signal JSON document")
	_ = signalsIngestCmd.MarkFlagRequired("file")
}
