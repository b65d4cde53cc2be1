package metrics

import (
	"context"

	"morcore/internal/domain/report"
	"morcore/internal/ports"
)

// Dispatcher counts every domain event before handing it to next.
type Dispatcher struct {
	next ports.Dispatcher
	c    *Collectors
}

var _ ports.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(next ports.Dispatcher, c *Collectors) *Dispatcher {
	return &Dispatcher{next: next, c: c}
}

func (d *Dispatcher) OnReportCreated(ctx context.Context, event report.ReportCreated) error {
	return d.count("report_created", func(next ports.Dispatcher) error { return next.OnReportCreated(ctx, event) })
}

func (d *Dispatcher) OnSignalAttached(ctx context.Context, event report.SignalAttached) error {
	return d.count("signal_attached", func(next ports.Dispatcher) error { return next.OnSignalAttached(ctx, event) })
}

func (d *Dispatcher) OnStatusChanged(ctx context.Context, event report.StatusChanged) error {
	return d.count("status_changed", func(next ports.Dispatcher) error { return next.OnStatusChanged(ctx, event) })
}

func (d *Dispatcher) OnReportClosed(ctx context.Context, event report.StatusChanged) error {
	return d.count("report_closed", func(next ports.Dispatcher) error { return next.OnReportClosed(ctx, event) })
}

func (d *Dispatcher) OnUrgencyChanged(ctx context.Context, event report.UrgencyChanged) error {
	return d.count("urgency_changed", func(next ports.Dispatcher) error { return next.OnUrgencyChanged(ctx, event) })
}

func (d *Dispatcher) OnEventAdded(ctx context.Context, event report.EventAdded) error {
	return d.count("event_added", func(next ports.Dispatcher) error { return next.OnEventAdded(ctx, event) })
}

func (d *Dispatcher) OnTaskCreated(ctx context.Context, event report.TaskCreated) error {
	return d.count("task_created", func(next ports.Dispatcher) error { return next.OnTaskCreated(ctx, event) })
}

func (d *Dispatcher) OnTaskStatusChanged(ctx context.Context, event report.TaskStatusChanged) error {
	return d.count("task_status_changed", func(next ports.Dispatcher) error { return next.OnTaskStatusChanged(ctx, event) })
}

func (d *Dispatcher) OnTaskDeleted(ctx context.Context, event report.TaskDeleted) error {
	return d.count("task_deleted", func(next ports.Dispatcher) error { return next.OnTaskDeleted(ctx, event) })
}

func (d *Dispatcher) OnReportDeleted(ctx context.Context, event report.ReportDeleted) error {
	return d.count("report_deleted", func(next ports.Dispatcher) error { return next.OnReportDeleted(ctx, event) })
}

func (d *Dispatcher) count(event string, fn func(ports.Dispatcher) error) error {
	var err error
	if d.next != nil {
		err = fn(d.next)
	}
	if d.c != nil {
		d.c.dispatched(event, err)
	}
	return err
}
