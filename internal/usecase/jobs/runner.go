package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// Handler executes one job. Returning backoff.Permanent(err) fails the job
// without further attempts.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Observer receives the outcome of every executed job.
type Observer interface {
	ObserveJob(kind string, outcome string, elapsed time.Duration)
}

const (
	OutcomeDone    = "done"
	OutcomeRetried = "retried"
	OutcomeFailed  = "failed"
)

type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		BatchSize:       20,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Minute,
	}
}

type Runner struct {
	store    ports.JobStore
	cfg      Config
	observer Observer
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

type RunnerOption func(*Runner)

func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store ports.JobStore, cfg Config, opts ...RunnerOption) *Runner {
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = defaults.MaxInterval
	}

	r := &Runner{
		store:    store,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.TrimSpace(kind)] = h
}

func (r *Runner) handler(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

type RunStats struct {
	Claimed int
	Done    int
	Retried int
	Failed  int
}

// RunOnce claims the due jobs and executes them one after the other. A
// failed store write does not stop the batch; the affected job stays
// running until its lease expires and ClaimDue hands it out again.
func (r *Runner) RunOnce(ctx context.Context) (RunStats, error) {
	if ctx == nil {
		return RunStats{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return RunStats{}, errs.Wrap(err, "check context")
	}
	if r.store == nil {
		return RunStats{}, errors.New("job store is required")
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "jobs.runner"))

	records, err := r.store.ClaimDue(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return RunStats{}, err
	}

	stats := RunStats{Claimed: len(records)}
	var storeErrs []error
	for _, rec := range records {
		outcome, err := r.execute(ctx, rec)
		if err != nil {
			logging.Error(ctx, "record job outcome failed",
				slog.Uint64("job_id", rec.ID),
				slog.String("job_kind", rec.Kind),
				slog.Any("err", errs.Loggable(err)))
			storeErrs = append(storeErrs, errs.Wrapf(err, "record job %d", rec.ID))
			continue
		}
		switch outcome {
		case OutcomeDone:
			stats.Done++
		case OutcomeRetried:
			stats.Retried++
		case OutcomeFailed:
			stats.Failed++
		}
	}
	return stats, errors.Join(storeErrs...)
}

// Run polls the queue until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		stats, err := r.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return errs.Wrap(ctx.Err(), "job runner stopped")
			}
			logging.Error(ctx, "job runner tick failed", slog.Any("err", errs.Loggable(err)))
		} else if stats.Claimed > 0 {
			logging.Info(ctx, "job runner tick",
				slog.Int("claimed", stats.Claimed),
				slog.Int("done", stats.Done),
				slog.Int("retried", stats.Retried),
				slog.Int("failed", stats.Failed))
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(ctx.Err(), "job runner stopped")
		case <-ticker.C:
		}
	}
}

func (r *Runner) execute(ctx context.Context, rec ports.JobRecord) (string, error) {
	attempts := rec.Attempts + 1
	ctx = logging.WithJob(ctx, rec.ID, rec.Kind, attempts)
	started := time.Now()

	var runErr error
	h, ok := r.handler(rec.Kind)
	if !ok {
		runErr = backoff.Permanent(fmt.Errorf("no handler for job kind %q", rec.Kind))
	} else {
		runErr = invoke(ctx, h, rec.Payload)
	}

	outcome := OutcomeDone
	var storeErr error
	switch {
	case runErr == nil:
		storeErr = r.store.MarkDone(ctx, rec.ID, attempts)
	case isPermanent(runErr) || attempts >= rec.MaxAttempts:
		outcome = OutcomeFailed
		logging.Error(ctx, "job failed", slog.Int("attempts", attempts), slog.Any("err", errs.Loggable(runErr)))
		storeErr = r.store.MarkFailed(ctx, rec.ID, attempts, runErr.Error())
	default:
		outcome = OutcomeRetried
		next := r.now().Add(r.RetryDelay(attempts))
		logging.Warn(ctx, "job attempt failed, retrying",
			slog.Int("attempts", attempts),
			slog.Time("run_at", next),
			slog.Any("err", errs.Loggable(runErr)))
		storeErr = r.store.MarkRetry(ctx, rec.ID, attempts, next, runErr.Error())
	}
	if storeErr != nil {
		return "", storeErr
	}

	if r.observer != nil {
		r.observer.ObserveJob(rec.Kind, outcome, time.Since(started))
	}
	return outcome, nil
}

// RetryDelay is the wait before the next attempt after attempt n (1-based):
// exponential from InitialInterval, capped at MaxInterval, with jitter.
func (r *Runner) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop || delay > r.cfg.MaxInterval {
		delay = r.cfg.MaxInterval
	}
	return delay
}

func invoke(ctx context.Context, h Handler, payload json.RawMessage) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = backoff.Permanent(errs.WithStack(fmt.Errorf("job handler panic: %v", recovered)))
		}
	}()
	return h(ctx, payload)
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

// permanentFor marks classified errors that will not go away on retry.
// Unclassified errors keep retrying.
func permanentFor(err error) error {
	if err == nil || errs.IsRetryable(err) || errs.KindOf(err) == errs.KindUnknown {
		return err
	}
	return backoff.Permanent(err)
}

func decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, backoff.Permanent(errs.Wrap(err, "decode job payload"))
	}
	return out, nil
}
