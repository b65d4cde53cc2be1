package lifecycle

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// RefreshDerivedState recomputes the search text of a report and fills in a
// missing thumbnail or reference location. It runs outside any lifecycle
// transaction and only writes the derived columns.
func (s *Service) RefreshDerivedState(ctx context.Context, reportID uint64) (DerivedState, error) {
	if err := s.ready(ctx); err != nil {
		return DerivedState{}, err
	}

	item, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return DerivedState{}, err
	}
	signals, err := s.reports.ListSignals(ctx, item.ID)
	if err != nil {
		return DerivedState{}, err
	}
	locations, err := s.reports.ListLocations(ctx, item.ID)
	if err != nil {
		return DerivedState{}, err
	}

	// Search text covers the report's own locations and those of every
	// attached signal.
	searchLocations := append([]report.Location(nil), locations...)
	reporters := make([]report.Reporter, 0, len(signals))
	for _, signal := range signals {
		searchLocations = append(searchLocations, signal.Locations...)
		if signal.Reporter != nil {
			reporters = append(reporters, *signal.Reporter)
		}
	}
	text := report.BuildSearchText(report.SearchTextInput{
		Signals:   signals,
		Locations: searchLocations,
		Reporters: reporters,
	})

	state := DerivedState{ReportID: item.ID, SearchText: text}
	update := ports.DerivedUpdate{SearchText: &text}

	if item.ThumbnailAttachmentID == nil {
		attachments, err := s.reports.ListReportAttachments(ctx, item.ID)
		if err != nil {
			return DerivedState{}, err
		}
		if thumb, ok := report.SelectThumbnail(attachments); ok {
			update.ThumbnailID = &thumb.ID
		}
	}
	if item.ReferenceLocationID == nil {
		if reference, ok := report.SelectReferenceLocation(locations); ok {
			update.ReferenceLocationID = &reference.ID
		}
	}

	if err := s.reports.UpdateDerived(ctx, item.ID, update); err != nil {
		return DerivedState{}, err
	}

	state.ThumbnailID = item.ThumbnailAttachmentID
	if update.ThumbnailID != nil {
		state.ThumbnailID = update.ThumbnailID
	}
	state.ReferenceLocationID = item.ReferenceLocationID
	if update.ReferenceLocationID != nil {
		state.ReferenceLocationID = update.ReferenceLocationID
	}
	return state, nil
}

// RefreshAllDerivedState refreshes every report and returns how many were
// refreshed. A failing report is logged and skipped.
func (s *Service) RefreshAllDerivedState(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	ctx = s.logCtx(ctx, "refresh_all_derived_state")

	items, err := s.reports.ListReports(ctx, ports.ReportFilter{})
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return refreshed, errs.Wrap(err, "check context")
		}
		if _, err := s.RefreshDerivedState(ctx, item.ID); err != nil {
			logging.Warn(ctx, "refresh derived state failed",
				slog.String("report_uuid", item.UUID.String()),
				slog.Any("err", errs.Loggable(err)))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// RefreshDerivedStateByUUID is RefreshDerivedState addressed by public id.
func (s *Service) RefreshDerivedStateByUUID(ctx context.Context, reportUUID uuid.UUID) (DerivedState, error) {
	if err := s.ready(ctx); err != nil {
		return DerivedState{}, err
	}
	item, err := s.reports.GetReportByUUID(ctx, reportUUID)
	if err != nil {
		return DerivedState{}, err
	}
	return s.RefreshDerivedState(ctx, item.ID)
}
