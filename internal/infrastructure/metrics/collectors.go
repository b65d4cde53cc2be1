package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

const namespace = "morcore"

type Collectors struct {
	domainEvents     *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	lockFailures     *prometheus.CounterVec
	jobs             *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobQueue         *prometheus.GaugeVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them through promhttp.Handler.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		domainEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "domain_events_total",
				Help:      "Committed mutations handed to dispatchers",
			},
			[]string{"event"},
		),
		dispatchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_failures_total",
				Help:      "Dispatcher calls that returned an error",
			},
			[]string{"event"},
		),
		lockFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_contention_total",
				Help:      "Row locks that could not be taken without waiting",
			},
			[]string{"entity"},
		),
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Executed background jobs by outcome",
			},
			[]string{"kind", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Background job handler duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		jobQueue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_state",
				Help:      "Jobs in the queue by state",
			},
			[]string{"state"},
		),
	}
}

// LockFailed matches repository.LockObserver.
func (c *Collectors) LockFailed(entity string) {
	c.lockFailures.WithLabelValues(entity).Inc()
}

// ObserveJob satisfies jobs.Observer.
func (c *Collectors) ObserveJob(kind string, outcome string, elapsed time.Duration) {
	c.jobs.WithLabelValues(kind, outcome).Inc()
	c.jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RefreshQueue copies the job counts per state into the queue gauge.
func (c *Collectors) RefreshQueue(ctx context.Context, store ports.JobStore) error {
	counts, err := store.CountByState(ctx)
	if err != nil {
		return errs.Wrap(err, "count jobs")
	}
	for _, state := range []ports.JobState{ports.JobPending, ports.JobRunning, ports.JobDone, ports.JobFailed} {
		c.jobQueue.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
	return nil
}

// WatchQueue refreshes the queue gauge until ctx ends.
func (c *Collectors) WatchQueue(ctx context.Context, store ports.JobStore, interval time.Duration) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "infrastructure.metrics"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := c.RefreshQueue(ctx, store); err != nil && ctx.Err() == nil {
			logging.Warn(logCtx, "refresh job queue gauge failed", slog.Any("err", errs.Loggable(err)))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collectors) dispatched(event string, err error) {
	c.domainEvents.WithLabelValues(event).Inc()
	if err != nil {
		c.dispatchFailures.WithLabelValues(event).Inc()
	}
}
