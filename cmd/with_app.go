package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/metrics"
	"morcore/internal/ports"
	"morcore/internal/usecase/jobs"
	"morcore/internal/usecase/lifecycle"
)

// workerDeps is what the worker needs beyond the lifecycle service.
type workerDeps struct {
	Runner     *jobs.Runner
	Store      ports.JobStore
	Cache      ports.Cache
	Registry   *prometheus.Registry
	Collectors *metrics.Collectors
}

func withApp(run func(cmd *cobra.Command, app *bootstrap.App, svc *lifecycle.Service) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var app *bootstrap.App
		var svc *lifecycle.Service
		stop, err := startApp(cmd, fx.Populate(&app, &svc))
		if err != nil {
			return err
		}
		defer stop()

		cmd.SetContext(withConfiguredLogger(cmd, app))
		if err := run(cmd, app, svc); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}

func withWorker(run func(cmd *cobra.Command, app *bootstrap.App, deps workerDeps) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var app *bootstrap.App
		var deps workerDeps
		stop, err := startApp(cmd, fx.Populate(&app, &deps.Runner, &deps.Store, &deps.Cache, &deps.Registry, &deps.Collectors))
		if err != nil {
			return err
		}
		defer stop()

		cmd.SetContext(withConfiguredLogger(cmd, app))
		if err := run(cmd, app, deps); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}

func startApp(cmd *cobra.Command, populate fx.Option) (func(), error) {
	ctx := logging.WithAttrs(
		cmd.Context(),
		slog.String("command", cmd.CommandPath()),
		slog.String("config_file", cfgFile),
	)

	fxApp := fx.New(
		bootstrap.Module,
		fx.Provide(func() context.Context { return ctx }),
		fx.Provide(
			fx.Annotate(
				func() string { return cfgFile },
				fx.ResultTags(`name:"configFile"`),
			),
		),
		populate,
	)

	startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
		return nil, errs.Wrap(err, "start fx application")
	}

	return func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelStop()
		if err := fxApp.Stop(stopCtx); err != nil {
			logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
		}
	}, nil
}

// withConfiguredLogger swaps the bootstrap logger for the one described by
// the logging section of the config.
func withConfiguredLogger(cmd *cobra.Command, app *bootstrap.App) context.Context {
	ctx := cmd.Context()
	logger, err := logging.NewLogger(cmd.ErrOrStderr(), app.Config.Logging.Level, app.Config.Logging.Format)
	if err != nil {
		logging.Warn(ctx, "keep default logger", slog.Any("err", errs.Loggable(err)))
		return ctx
	}
	return logging.WithLogger(ctx, logger)
}
