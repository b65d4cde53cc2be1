package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// IngestSignal stores an incoming signal, looks for a report it duplicates
// and attaches it to that report or creates a new one. Redelivery of the
// same (source, source signal id) returns the earlier outcome.
func (s *Service) IngestSignal(ctx context.Context, input SignalInput) (AttachResult, error) {
	if err := s.ready(ctx); err != nil {
		return AttachResult{}, err
	}
	ctx = s.logCtx(ctx, "ingest_signal")

	signal, err := s.buildSignal(input)
	if err != nil {
		return AttachResult{}, err
	}

	existing, found, err := s.reports.FindSignalBySource(ctx, signal.SourceID, signal.SourceSignalID)
	if err != nil {
		return AttachResult{}, err
	}
	if !found {
		created, createErr := s.reports.CreateSignal(ctx, signal)
		if createErr != nil {
			// A concurrent delivery may have won the unique index.
			existing, found, err = s.reports.FindSignalBySource(ctx, signal.SourceID, signal.SourceSignalID)
			if err != nil || !found {
				return AttachResult{}, createErr
			}
		} else {
			existing = created
		}
	}

	if existing.ReportID == nil {
		match, err := s.ResolveDuplicate(ctx, SignalCandidate{
			Subjects:  existing.Subjects,
			Locations: existing.Locations,
			CreatedAt: existing.CreatedAt,
		})
		if err != nil {
			return AttachResult{}, err
		}
		if match != nil {
			if err := s.reports.LinkSignal(ctx, existing.ID, match.ID); err != nil {
				return AttachResult{}, err
			}
			logging.Info(ctx, "signal matched existing report",
				slog.String("signal_uuid", existing.UUID.String()),
				slog.String("report_uuid", match.UUID.String()))
		}
	}

	return s.AttachOrCreate(ctx, existing.UUID)
}

func (s *Service) buildSignal(input SignalInput) (report.Signal, error) {
	sourceID := strings.TrimSpace(input.SourceID)
	sourceSignalID := strings.TrimSpace(input.SourceSignalID)
	if sourceID == "" || sourceSignalID == "" {
		return report.Signal{}, fmt.Errorf("%w: source id and source signal id are required", report.ErrInvalidSignal)
	}

	urgency := s.cfg.DefaultUrgency
	if input.Urgency != nil {
		urgency = *input.Urgency
	}
	if err := validateUrgency(urgency); err != nil {
		return report.Signal{}, err
	}
	for i, loc := range input.Locations {
		if err := loc.Validate(); err != nil {
			return report.Signal{}, errs.Wrapf(err, "location %d", i)
		}
	}

	now := s.now()
	original := input.OriginalCreatedAt
	if original.IsZero() {
		original = now
	}

	subjects := make([]string, 0, len(input.Subjects))
	for _, subject := range input.Subjects {
		if subject = strings.TrimSpace(subject); subject != "" {
			subjects = append(subjects, subject)
		}
	}

	signal := report.Signal{
		UUID:              uuid.New(),
		SignalURL:         strings.TrimSpace(input.SignalURL),
		SourceID:          sourceID,
		SourceSignalID:    sourceSignalID,
		OriginalCreatedAt: original.UTC(),
		CreatedAt:         now,
		Urgency:           urgency,
		Description:       s.clean(input.Description),
		Meta:              input.Meta,
		MetaExtended:      input.MetaExtended,
		Subjects:          subjects,
		Locations:         input.Locations,
		Attachments:       attachmentsFor(report.SignalOwner(0), input.Attachments, now),
	}
	if input.Reporter != nil {
		reporter := *input.Reporter
		reporter.FirstName = s.clean(reporter.FirstName)
		reporter.LastName = s.clean(reporter.LastName)
		reporter.Name = s.clean(reporter.Name)
		reporter.Email = strings.TrimSpace(reporter.Email)
		reporter.Phone = strings.TrimSpace(reporter.Phone)
		signal.Reporter = &reporter
	}
	return signal, nil
}

// ResolveDuplicate returns the open report a signal should be attached to,
// or nil. It only reads.
func (s *Service) ResolveDuplicate(ctx context.Context, candidate SignalCandidate) (*report.Report, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if !s.cfg.DedupEnabled || s.policy == nil || len(candidate.Subjects) == 0 {
		return nil, nil
	}

	signalSide := report.Candidate{
		Subject:   candidate.Subjects[0],
		Location:  primaryLocation(candidate.Locations),
		CreatedAt: candidate.CreatedAt,
	}
	if signalSide.CreatedAt.IsZero() {
		signalSide.CreatedAt = s.now()
	}

	query := dedupQuery(signalSide, s.cfg.DedupWindow)
	rows, err := s.reports.ListDedupCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]report.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, report.Candidate{
			Subject:   row.Report.PrimarySubject(),
			Location:  row.Location,
			CreatedAt: row.Report.CreatedAt,
			Closed:    row.Report.IsClosed(),
		})
	}

	idx, ok := report.FirstMatch(s.policy, signalSide, candidates)
	if !ok {
		return nil, nil
	}
	match := rows[idx].Report
	return &match, nil
}

// AttachOrCreate creates the report for a signal without one, or records
// the signal on the report it was linked to, raising the report's urgency
// when the signal's is higher. Calling it again for a processed signal is
// a no-op.
func (s *Service) AttachOrCreate(ctx context.Context, signalUUID uuid.UUID) (AttachResult, error) {
	if err := s.ready(ctx); err != nil {
		return AttachResult{}, err
	}
	ctx = s.logCtx(ctx, "attach_or_create")

	pending, err := s.reports.GetSignalByUUID(ctx, signalUUID)
	if err != nil {
		return AttachResult{}, err
	}
	// Also needed for a linked signal: its report may close before the lock
	// is taken, and the signal then opens a report of its own.
	initialUrgency := s.initialUrgency(ctx, pending)

	var (
		result   AttachResult
		created  *report.ReportCreated
		attached *report.SignalAttached
	)
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		signal, err := s.reports.LockSignal(txCtx, pending.ID)
		if err != nil {
			return err
		}
		result.Signal = signal

		if signal.ReportID != nil {
			if event, done, err := s.reports.FindEventBySignal(txCtx, signal.ID); err != nil {
				return err
			} else if done {
				item, err := s.reports.GetReport(txCtx, *signal.ReportID)
				if err != nil {
					return err
				}
				result.Report = item
				result.Event = event
				result.Replayed = true
				return nil
			}
			attached, err = s.attachTx(txCtx, signal)
			switch {
			case errors.Is(err, report.ErrReportClosed):
				logging.Warn(txCtx, "matched report closed before attach, creating a new report",
					slog.String("signal_uuid", signal.UUID.String()),
					slog.Uint64("closed_report_id", *signal.ReportID))
				attached = nil
			case err != nil:
				return err
			default:
				result.Report = attached.Report
				result.Event = attached.Event
				result.Duplicate = true
				return nil
			}
		}

		created, err = s.createFromSignalTx(txCtx, signal, initialUrgency)
		if err != nil {
			return err
		}
		result.Report = created.Report
		result.Signal = created.Signal
		result.Event = created.Event
		result.Created = true
		return nil
	}); err != nil {
		return AttachResult{}, err
	}

	switch {
	case created != nil:
		logging.Info(ctx, "report created from signal",
			slog.String("report_uuid", created.Report.UUID.String()),
			slog.String("signal_uuid", created.Signal.UUID.String()))
		s.dispatch(ctx, "report_created", func(d ports.Dispatcher) error { return d.OnReportCreated(ctx, *created) })
	case attached != nil:
		logging.Info(ctx, "signal attached to report",
			slog.String("report_uuid", attached.Report.UUID.String()),
			slog.String("signal_uuid", attached.Signal.UUID.String()),
			slog.Bool("urgency_raised", attached.UrgencyRaised))
		s.dispatch(ctx, "signal_attached", func(d ports.Dispatcher) error { return d.OnSignalAttached(ctx, *attached) })
	default:
		logging.Debug(ctx, "signal already processed", slog.String("signal_uuid", signalUUID.String()))
	}
	return result, nil
}

func (s *Service) attachTx(ctx context.Context, signal report.Signal) (*report.SignalAttached, error) {
	item, err := s.reports.LockReport(ctx, *signal.ReportID)
	if err != nil {
		return nil, err
	}
	if item.IsClosed() {
		return nil, report.ErrReportClosed
	}

	previous := item.Urgency
	raised := signal.Urgency > item.Urgency
	if raised {
		item.Urgency = signal.Urgency
		if err := s.reports.UpdateReport(ctx, item); err != nil {
			return nil, err
		}
	}

	event := report.ReportEvent{
		UUID:      uuid.New(),
		ReportID:  item.ID,
		Type:      report.EventSignalAttached,
		CreatedAt: s.now(),
		StatusID:  item.StatusID,
		Actor:     signal.SourceID,
		SignalID:  &signal.ID,
	}
	if raised {
		urgency := item.Urgency
		event.Urgency = &urgency
	}
	event, err = s.reports.CreateEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	return &report.SignalAttached{
		Report:          item,
		Signal:          signal,
		Event:           event,
		PreviousUrgency: previous,
		UrgencyRaised:   raised,
	}, nil
}

func (s *Service) createFromSignalTx(ctx context.Context, signal report.Signal, urgency float64) (*report.ReportCreated, error) {
	now := s.now()
	item, err := s.reports.CreateReport(ctx, report.Report{
		UUID:              uuid.New(),
		CreatedAt:         now,
		UpdatedAt:         now,
		OriginalCreatedAt: signal.OriginalCreatedAt,
		Urgency:           urgency,
		Meta:              signal.Meta,
		MetaExtended:      signal.MetaExtended,
		Subjects:          signal.Subjects,
	})
	if err != nil {
		return nil, err
	}
	// Claim the new row so concurrent writers fail fast until commit.
	if _, err := s.reports.LockReport(ctx, item.ID); err != nil {
		return nil, err
	}

	status, err := s.reports.CreateStatus(ctx, report.Status{ReportID: item.ID, Name: report.InitialStatus, CreatedAt: now})
	if err != nil {
		return nil, err
	}
	item.StatusID = &status.ID
	item.Status = &status

	// The signal's primary location is copied onto the report. Only an
	// address or grave becomes the reference location; a point or lamppost
	// still gives dedup something to compare against.
	if primary := primaryLocation(signal.Locations); primary != nil {
		loc := *primary
		loc.ID = 0
		loc.SignalID = nil
		loc.ReportID = &item.ID
		loc.Weight = s.cfg.InitialLocationWeight
		loc.Primary = true
		loc.CreatedAt = now
		copied, err := s.reports.CreateLocation(ctx, loc)
		if err != nil {
			return nil, err
		}
		if copied.IsReferenceCandidate() {
			item.ReferenceLocationID = &copied.ID
		}
	}
	if len(signal.Attachments) > 0 {
		thumbnailID := signal.Attachments[0].ID
		item.ThumbnailAttachmentID = &thumbnailID
	}
	if err := s.reports.UpdateReport(ctx, item); err != nil {
		return nil, err
	}
	if err := s.reports.LinkSignal(ctx, signal.ID, item.ID); err != nil {
		return nil, err
	}
	signal.ReportID = &item.ID

	event, err := s.reports.CreateEvent(ctx, report.ReportEvent{
		UUID:      uuid.New(),
		ReportID:  item.ID,
		Type:      report.EventReportCreated,
		CreatedAt: now,
		StatusID:  &status.ID,
		Urgency:   &item.Urgency,
		Actor:     signal.SourceID,
		SignalID:  &signal.ID,
	})
	if err != nil {
		return nil, err
	}

	return &report.ReportCreated{Report: item, Signal: signal, Event: event}, nil
}

// initialUrgency raises the signal urgency when one of its subjects has
// the configured high priority. Catalog failures only get logged.
func (s *Service) initialUrgency(ctx context.Context, signal report.Signal) float64 {
	urgency := signal.Urgency
	if s.subjects == nil || s.cfg.HighPriorityName == "" {
		return urgency
	}
	for _, subjectURL := range signal.Subjects {
		subject, err := s.subjects.Lookup(ctx, subjectURL)
		if err != nil {
			logging.Warn(ctx, "subject lookup failed", slog.String("subject", subjectURL), slog.Any("err", errs.Loggable(err)))
			continue
		}
		if strings.EqualFold(subject.Priority, s.cfg.HighPriorityName) && s.cfg.HighPriorityUrgency > urgency {
			urgency = s.cfg.HighPriorityUrgency
		}
	}
	return urgency
}

func primaryLocation(locations []report.Location) *report.Location {
	for i := range locations {
		if locations[i].IsReferenceCandidate() {
			return &locations[i]
		}
	}
	if len(locations) > 0 {
		return &locations[0]
	}
	return nil
}

func dedupQuery(signal report.Candidate, window time.Duration) ports.DedupQuery {
	query := ports.DedupQuery{Subject: signal.Subject}
	if window > 0 {
		query.CreatedAfter = signal.CreatedAt.Add(-window)
	}
	return query
}
