package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// Fanout hands every event to all dispatchers in order. A failing or
// panicking dispatcher is logged and does not stop the others; Fanout
// itself never returns an error.
type Fanout struct {
	dispatchers []ports.Dispatcher
}

var _ ports.Dispatcher = (*Fanout)(nil)

func NewFanout(dispatchers ...ports.Dispatcher) *Fanout {
	kept := make([]ports.Dispatcher, 0, len(dispatchers))
	for _, d := range dispatchers {
		if d != nil {
			kept = append(kept, d)
		}
	}
	return &Fanout{dispatchers: kept}
}

func (f *Fanout) Len() int { return len(f.dispatchers) }

func (f *Fanout) each(ctx context.Context, event string, fn func(ports.Dispatcher) error) error {
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.dispatch"), slog.String("event", event))
	for i, d := range f.dispatchers {
		if err := safeCall(d, fn); err != nil {
			logging.Error(ctx, "dispatcher failed",
				slog.Int("dispatcher", i),
				slog.String("type", fmt.Sprintf("%T", d)),
				slog.Any("err", errs.Loggable(err)))
		}
	}
	return nil
}

func safeCall(d ports.Dispatcher, fn func(ports.Dispatcher) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("dispatcher panic: %v", recovered)
		}
	}()
	return fn(d)
}

func (f *Fanout) OnReportCreated(ctx context.Context, event report.ReportCreated) error {
	return f.each(ctx, "report_created", func(d ports.Dispatcher) error { return d.OnReportCreated(ctx, event) })
}

func (f *Fanout) OnSignalAttached(ctx context.Context, event report.SignalAttached) error {
	return f.each(ctx, "signal_attached", func(d ports.Dispatcher) error { return d.OnSignalAttached(ctx, event) })
}

func (f *Fanout) OnStatusChanged(ctx context.Context, event report.StatusChanged) error {
	return f.each(ctx, "status_changed", func(d ports.Dispatcher) error { return d.OnStatusChanged(ctx, event) })
}

func (f *Fanout) OnReportClosed(ctx context.Context, event report.StatusChanged) error {
	return f.each(ctx, "report_closed", func(d ports.Dispatcher) error { return d.OnReportClosed(ctx, event) })
}

func (f *Fanout) OnUrgencyChanged(ctx context.Context, event report.UrgencyChanged) error {
	return f.each(ctx, "urgency_changed", func(d ports.Dispatcher) error { return d.OnUrgencyChanged(ctx, event) })
}

func (f *Fanout) OnEventAdded(ctx context.Context, event report.EventAdded) error {
	return f.each(ctx, "event_added", func(d ports.Dispatcher) error { return d.OnEventAdded(ctx, event) })
}

func (f *Fanout) OnTaskCreated(ctx context.Context, event report.TaskCreated) error {
	return f.each(ctx, "task_created", func(d ports.Dispatcher) error { return d.OnTaskCreated(ctx, event) })
}

func (f *Fanout) OnTaskStatusChanged(ctx context.Context, event report.TaskStatusChanged) error {
	return f.each(ctx, "task_status_changed", func(d ports.Dispatcher) error { return d.OnTaskStatusChanged(ctx, event) })
}

func (f *Fanout) OnTaskDeleted(ctx context.Context, event report.TaskDeleted) error {
	return f.each(ctx, "task_deleted", func(d ports.Dispatcher) error { return d.OnTaskDeleted(ctx, event) })
}

func (f *Fanout) OnReportDeleted(ctx context.Context, event report.ReportDeleted) error {
	return f.each(ctx, "report_deleted", func(d ports.Dispatcher) error { return d.OnReportDeleted(ctx, event) })
}
