package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"morcore/internal/bootstrap"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/metrics"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute queued jobs until interrupted",
	RunE: withWorker(func(cmd *cobra.Command, app *bootstrap.App, deps workerDeps) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		queueInterval, _ := cmd.Flags().GetDuration("queue-interval")
		purgeInterval, _ := cmd.Flags().GetDuration("purge-interval")

		var wg sync.WaitGroup
		if addr := strings.TrimSpace(app.Config.Metrics.ListenAddr); addr != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := metrics.Serve(ctx, addr, metrics.NewRouter(deps.Registry, app.Ping)); err != nil {
					logging.Error(ctx, "ops http server failed", slog.Any("err", errs.Loggable(err)))
				}
			}()
		}
		if queueInterval > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				deps.Collectors.WatchQueue(ctx, deps.Store, queueInterval)
			}()
		}
		if purger, ok := deps.Cache.(cachePurger); ok && purgeInterval > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				purgeCache(ctx, purger, purgeInterval)
			}()
		}

		logging.Info(ctx, "worker started")
		err := deps.Runner.Run(ctx)
		stop()
		wg.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return errs.Wrap(err, "run worker")
		}
		logging.Info(ctx, "worker stopped")
		return nil
	}),
}

var workerOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Execute the jobs that are due right now and exit",
	RunE: withWorker(func(cmd *cobra.Command, _ *bootstrap.App, deps workerDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		stats, err := deps.Runner.RunOnce(ctx)
		if err != nil {
			logging.Error(ctx, "run due jobs failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "run due jobs")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d done=%d retried=%d failed=%d\n",
			stats.Claimed, stats.Done, stats.Retried, stats.Failed); err != nil {
			return errs.Wrap(err, "write worker output")
		}
		return nil
	}),
}

// cachePurger is implemented by caches that keep expired rows around.
type cachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

func purgeCache(ctx context.Context, purger cachePurger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		removed, err := purger.Purge(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logging.Warn(ctx, "purge cache failed", slog.Any("err", errs.Loggable(err)))
			}
			continue
		}
		if removed > 0 {
			logging.Debug(ctx, "purged expired cache entries", slog.Int64("removed", removed))
		}
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerRunCmd)
	workerCmd.AddCommand(workerOnceCmd)

	workerRunCmd.Flags().Duration("queue-interval", 15*time.Second, "How often the job queue gauge is refreshed (0 disables)")
	workerRunCmd.Flags().Duration("purge-interval", 10*time.Minute, "How often expired cache rows are removed (0 disables)")
}
