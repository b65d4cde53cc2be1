package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

const DefaultSubjectPrefix = "mor"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher announces report and task changes on NATS subjects of the form
// <prefix>.report.<uuid>.created. Events without a subscriber-facing
// meaning are ignored.
type Publisher struct {
	conn   Conn
	prefix string
	now    func() time.Time
}

var _ ports.Dispatcher = (*Publisher)(nil)

func NewPublisher(conn Conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix, now: time.Now}
}

// Connect dials url. The caller drains the connection on shutdown.
func Connect(ctx context.Context, url string, name string) (*nats.Conn, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "infrastructure.messaging"))
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %s", url)
	}
	logging.Info(logCtx, "nats connected", slog.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// Message is the JSON body of every published event.
type Message struct {
	Type       string    `json:"type"`
	ReportUUID uuid.UUID `json:"report_uuid"`
	TaskUUID   string    `json:"task_uuid,omitempty"`
	Status     string    `json:"status,omitempty"`
	Urgency    float64   `json:"urgency"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (p *Publisher) OnReportCreated(ctx context.Context, event report.ReportCreated) error {
	return p.publish(ctx, p.subject("report", event.Report.UUID, "created"), Message{
		Type:       "report.created",
		ReportUUID: event.Report.UUID,
		Status:     string(event.Report.CurrentStatusName()),
		Urgency:    event.Report.Urgency,
	})
}

func (p *Publisher) OnTaskCreated(ctx context.Context, event report.TaskCreated) error {
	return p.publish(ctx, p.subject("task", event.Task.UUID, "created"), Message{
		Type:       "task.created",
		ReportUUID: event.Report.UUID,
		TaskUUID:   event.Task.UUID.String(),
		Status:     string(event.Report.CurrentStatusName()),
		Urgency:    event.Report.Urgency,
	})
}

func (p *Publisher) OnTaskStatusChanged(ctx context.Context, event report.TaskStatusChanged) error {
	return p.tasksChanged(ctx, event.Report, event.Task)
}

func (p *Publisher) OnTaskDeleted(ctx context.Context, event report.TaskDeleted) error {
	return p.tasksChanged(ctx, event.Report, event.Task)
}

func (p *Publisher) OnSignalAttached(context.Context, report.SignalAttached) error { return nil }
func (p *Publisher) OnStatusChanged(context.Context, report.StatusChanged) error { return nil }
func (p *Publisher) OnReportClosed(context.Context, report.StatusChanged) error { return nil }
func (p *Publisher) OnUrgencyChanged(context.Context, report.UrgencyChanged) error { return nil }
func (p *Publisher) OnEventAdded(context.Context, report.EventAdded) error { return nil }
func (p *Publisher) OnReportDeleted(context.Context, report.ReportDeleted) error { return nil }

func (p *Publisher) tasksChanged(ctx context.Context, item report.Report, task report.Task) error {
	return p.publish(ctx, p.subject("report", item.UUID, "tasks_changed"), Message{
		Type:       "report.tasks_changed",
		ReportUUID: item.UUID,
		TaskUUID:   task.UUID.String(),
		Status:     string(item.CurrentStatusName()),
		Urgency:    item.Urgency,
	})
}

func (p *Publisher) subject(entity string, id uuid.UUID, verb string) string {
	return p.prefix + "." + entity + "." + id.String() + "." + verb
}

func (p *Publisher) publish(ctx context.Context, subject string, msg Message) error {
	if p.conn == nil {
		return nil
	}
	msg.OccurredAt = p.now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(err, "marshal event")
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return errs.Wrapf(err, "publish %s", subject)
	}
	logging.Debug(logging.WithAttrs(ctx, slog.String("component", "infrastructure.messaging")), "event published", slog.String("subject", subject))
	return nil
}
