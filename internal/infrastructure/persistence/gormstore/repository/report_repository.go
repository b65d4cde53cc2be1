package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/persistence/gormstore/model"
	"morcore/internal/ports"
)

type ReportRepository struct {
	store
}

var _ ports.ReportRepository = (*ReportRepository)(nil)

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{store: store{db: db}}
}

// ObserveLockFailures registers fn for every report lock that fails fast.
func (r *ReportRepository) ObserveLockFailures(fn LockObserver) {
	r.observer = fn
}

func (r *ReportRepository) GetReport(ctx context.Context, reportID uint64) (report.Report, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Report{}, err
	}

	var row model.Report
	if err := db.Where("id = ?", reportID).Take(&row).Error; err != nil {
		return report.Report{}, lookupError(err, report.ErrReportNotFound, "query report")
	}
	return hydrateReport(db, row)
}

func (r *ReportRepository) GetReportByUUID(ctx context.Context, reportUUID uuid.UUID) (report.Report, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Report{}, err
	}

	var row model.Report
	if err := db.Where("uuid = ?", reportUUID).Take(&row).Error; err != nil {
		return report.Report{}, lookupError(err, report.ErrReportNotFound, "query report by uuid")
	}
	return hydrateReport(db, row)
}

func (r *ReportRepository) LockReport(ctx context.Context, reportID uint64) (report.Report, error) {
	var row model.Report
	if err := r.lockRow(ctx, "report", reportID, &row, report.ErrReportInUse, report.ErrReportNotFound); err != nil {
		return report.Report{}, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Report{}, err
	}
	return hydrateReport(db, row)
}

func (r *ReportRepository) ListReports(ctx context.Context, filter ports.ReportFilter) ([]report.Report, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Report{})
	if filter.OpenOnly {
		query = query.Where("closed_at IS NULL")
	}
	if len(filter.Statuses) > 0 {
		names := make([]string, 0, len(filter.Statuses))
		for _, name := range filter.Statuses {
			names = append(names, string(name))
		}
		sub := db.Model(&model.Status{}).Select("id").Where("name IN ?", names)
		query = query.Where("status_id IN (?)", sub)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.Report
	if err := query.Order("created_at desc").Order("id desc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query reports")
	}
	return hydrateReports(db, rows)
}

func (r *ReportRepository) ListStatuses(ctx context.Context, reportID uint64) ([]report.Status, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Status
	if err := db.Where("report_id = ?", reportID).Order("created_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query statuses")
	}

	items := make([]report.Status, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapStatus(row))
	}
	return items, nil
}

func (r *ReportRepository) ListEvents(ctx context.Context, reportID uint64) ([]report.ReportEvent, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.ReportEvent
	if err := db.Where("report_id = ?", reportID).Order("created_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query report events")
	}

	items := make([]report.ReportEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEvent(row))
	}
	return items, nil
}

func (r *ReportRepository) FindEventBySignal(ctx context.Context, signalID uint64) (report.ReportEvent, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.ReportEvent{}, false, err
	}

	var rows []model.ReportEvent
	if err := db.Where("signal_id = ?", signalID).Order("id asc").Limit(1).Find(&rows).Error; err != nil {
		return report.ReportEvent{}, false, errs.Wrap(err, "query report event by signal")
	}
	if len(rows) == 0 {
		return report.ReportEvent{}, false, nil
	}
	return mapEvent(rows[0]), true, nil
}

func (r *ReportRepository) ListDedupCandidates(ctx context.Context, query ports.DedupQuery) ([]ports.DedupCandidate, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	sub := db.Model(&model.ReportSubject{}).
		Select("report_id").
		Where("subject_url = ? AND position = 0", query.Subject)
	q := db.Model(&model.Report{}).
		Where("closed_at IS NULL").
		Where("id IN (?)", sub)
	if !query.CreatedAfter.IsZero() {
		q = q.Where("created_at >= ?", query.CreatedAfter.UTC())
	}

	var rows []model.Report
	if err := q.Order("created_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query dedup candidates")
	}
	reports, err := hydrateReports(db, rows)
	if err != nil {
		return nil, err
	}

	candidates := make([]ports.DedupCandidate, 0, len(reports))
	for _, item := range reports {
		candidate := ports.DedupCandidate{Report: item}
		// Reports without an address or grave fall back to their primary
		// location, which may only carry coordinates.
		query := db.Where("report_id = ? AND is_primary = ?", item.ID, true).Order("id desc")
		if item.ReferenceLocationID != nil {
			query = db.Where("id = ?", *item.ReferenceLocationID)
		}
		var rows []model.Location
		if err := query.Limit(1).Find(&rows).Error; err != nil {
			return nil, errs.Wrap(err, "query candidate location")
		}
		if len(rows) > 0 {
			mapped := mapLocation(rows[0])
			candidate.Location = &mapped
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (r *ReportRepository) CreateReport(ctx context.Context, item report.Report) (report.Report, error) {
	var created report.Report
	err := r.withinTx(ctx, func(db *gorm.DB) error {
		row := toReportRow(item)
		if err := db.Create(&row).Error; err != nil {
			return errs.Wrap(err, "insert report")
		}
		if err := replaceReportSubjects(db, row.ID, item.Subjects); err != nil {
			return err
		}

		hydrated, err := hydrateReport(db, row)
		if err != nil {
			return err
		}
		created = hydrated
		return nil
	})
	if err != nil {
		return report.Report{}, err
	}
	return created, nil
}

func (r *ReportRepository) UpdateReport(ctx context.Context, item report.Report) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"updated_at":              utcNow(),
		"urgency":                 item.Urgency,
		"closed_at":               utcPtr(item.ClosedAt),
		"resolution":              stringPtr(item.Resolution),
		"close_reason":            item.CloseReason,
		"status_id":               item.StatusID,
		"reference_location_id":   item.ReferenceLocationID,
		"thumbnail_attachment_id": item.ThumbnailAttachmentID,
	}
	result := db.Model(&model.Report{}).Where("id = ?", item.ID).Updates(updates)
	if result.Error != nil {
		return errs.Wrap(result.Error, "update report")
	}
	if result.RowsAffected == 0 {
		return report.ErrReportNotFound
	}
	return nil
}

func (r *ReportRepository) UpdateDerived(ctx context.Context, reportID uint64, update ports.DerivedUpdate) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if update.SearchText != nil {
		updates["search_text"] = *update.SearchText
	}
	if update.ThumbnailID != nil {
		updates["thumbnail_attachment_id"] = *update.ThumbnailID
	}
	if update.ReferenceLocationID != nil {
		updates["reference_location_id"] = *update.ReferenceLocationID
	}
	if len(updates) == 0 {
		return nil
	}

	if err := db.Model(&model.Report{}).Where("id = ?", reportID).UpdateColumns(updates).Error; err != nil {
		return errs.Wrap(err, "update derived report state")
	}
	return nil
}

// DeleteReportCascade removes the report and everything hanging off it.
// The returned map counts deleted rows per table.
func (r *ReportRepository) DeleteReportCascade(ctx context.Context, reportID uint64) (map[string]int64, error) {
	deleted := make(map[string]int64)
	err := r.withinTx(ctx, func(db *gorm.DB) error {
		ids, err := collectReportOwnedIDs(db, reportID)
		if err != nil {
			return err
		}

		steps := []struct {
			table string
			query *gorm.DB
			model any
		}{
			{"attachments", attachmentOwnersQuery(db, ids.owners(reportID)), &model.Attachment{}},
			{"task_events", db.Where("task_id IN ?", ids.tasks), &model.TaskEvent{}},
			{"task_statuses", db.Where("task_id IN ?", ids.tasks), &model.TaskStatus{}},
			{"tasks", db.Where("report_id = ?", reportID), &model.Task{}},
			{"report_events", db.Where("report_id = ?", reportID), &model.ReportEvent{}},
			{"statuses", db.Where("report_id = ?", reportID), &model.Status{}},
			{"locations", db.Where("report_id = ? OR signal_id IN ?", reportID, ids.signals), &model.Location{}},
			{"reporters", db.Where("signal_id IN ?", ids.signals), &model.Reporter{}},
			{"signal_subjects", db.Where("signal_id IN ?", ids.signals), &model.SignalSubject{}},
			{"signals", db.Where("report_id = ?", reportID), &model.Signal{}},
			{"report_subjects", db.Where("report_id = ?", reportID), &model.ReportSubject{}},
			{"reports", db.Where("id = ?", reportID), &model.Report{}},
		}
		for _, step := range steps {
			result := step.query.Delete(step.model)
			if result.Error != nil {
				return errs.Wrapf(result.Error, "delete %s", step.table)
			}
			deleted[step.table] = result.RowsAffected
		}
		if deleted["reports"] == 0 {
			return report.ErrReportNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *ReportRepository) CreateStatus(ctx context.Context, status report.Status) (report.Status, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Status{}, err
	}

	row := model.Status{
		ReportID:  status.ReportID,
		Name:      string(status.Name),
		CreatedAt: status.CreatedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return report.Status{}, errs.Wrap(err, "insert status")
	}
	return mapStatus(row), nil
}

func (r *ReportRepository) CreateEvent(ctx context.Context, event report.ReportEvent) (report.ReportEvent, error) {
	created, err := r.CreateEvents(ctx, []report.ReportEvent{event})
	if err != nil {
		return report.ReportEvent{}, err
	}
	return created[0], nil
}

func (r *ReportRepository) CreateEvents(ctx context.Context, events []report.ReportEvent) ([]report.ReportEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]model.ReportEvent, 0, len(events))
	for _, event := range events {
		rows = append(rows, toEventRow(event))
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "insert report events")
	}

	items := make([]report.ReportEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEvent(row))
	}
	return items, nil
}

func (r *ReportRepository) BackdateEvent(ctx context.Context, eventID uint64, createdAt time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.ReportEvent{}).Where("id = ?", eventID).UpdateColumn("created_at", createdAt.UTC()).Error; err != nil {
		return errs.Wrap(err, "backdate report event")
	}
	return nil
}

func hydrateReport(db *gorm.DB, row model.Report) (report.Report, error) {
	items, err := hydrateReports(db, []model.Report{row})
	if err != nil {
		return report.Report{}, err
	}
	return items[0], nil
}

// hydrateReports loads current statuses and subjects for all rows at once.
func hydrateReports(db *gorm.DB, rows []model.Report) ([]report.Report, error) {
	if len(rows) == 0 {
		return []report.Report{}, nil
	}

	reportIDs := make([]uint64, 0, len(rows))
	statusIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		reportIDs = append(reportIDs, row.ID)
		if row.StatusID != nil {
			statusIDs = append(statusIDs, *row.StatusID)
		}
	}

	statuses := make(map[uint64]report.Status, len(statusIDs))
	if len(statusIDs) > 0 {
		var statusRows []model.Status
		if err := db.Where("id IN ?", statusIDs).Find(&statusRows).Error; err != nil {
			return nil, errs.Wrap(err, "query report statuses")
		}
		for _, s := range statusRows {
			statuses[s.ID] = mapStatus(s)
		}
	}

	var subjectRows []model.ReportSubject
	if err := db.Where("report_id IN ?", reportIDs).Order("position asc").Find(&subjectRows).Error; err != nil {
		return nil, errs.Wrap(err, "query report subjects")
	}
	subjects := make(map[uint64][]string, len(rows))
	for _, s := range subjectRows {
		subjects[s.ReportID] = append(subjects[s.ReportID], s.SubjectURL)
	}

	items := make([]report.Report, 0, len(rows))
	for _, row := range rows {
		item := mapReport(row)
		if row.StatusID != nil {
			if status, ok := statuses[*row.StatusID]; ok {
				item.Status = &status
			}
		}
		item.Subjects = subjects[row.ID]
		items = append(items, item)
	}
	return items, nil
}

func replaceReportSubjects(db *gorm.DB, reportID uint64, subjects []string) error {
	if err := db.Where("report_id = ?", reportID).Delete(&model.ReportSubject{}).Error; err != nil {
		return errs.Wrap(err, "delete report subjects")
	}

	rows := subjectRows(subjects, func(position int, subject string) model.ReportSubject {
		return model.ReportSubject{ReportID: reportID, SubjectURL: subject, Position: position}
	})
	if len(rows) == 0 {
		return nil
	}
	if err := db.Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert report subjects")
	}
	return nil
}

// subjectRows keeps the first occurrence of every subject and its position.
func subjectRows[T any](subjects []string, build func(position int, subject string) T) []T {
	seen := make(map[string]struct{}, len(subjects))
	rows := make([]T, 0, len(subjects))
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		if _, ok := seen[subject]; ok {
			continue
		}
		seen[subject] = struct{}{}
		rows = append(rows, build(len(rows), subject))
	}
	return rows
}

type reportOwnedIDs struct {
	signals    []uint64
	events     []uint64
	tasks      []uint64
	taskEvents []uint64
}

func (ids reportOwnedIDs) owners(reportID uint64) []report.AttachmentOwner {
	owners := []report.AttachmentOwner{report.ReportOwner(reportID)}
	for _, id := range ids.signals {
		owners = append(owners, report.SignalOwner(id))
	}
	for _, id := range ids.events {
		owners = append(owners, report.ReportEventOwner(id))
	}
	for _, id := range ids.taskEvents {
		owners = append(owners, report.TaskEventOwner(id))
	}
	return owners
}

func collectReportOwnedIDs(db *gorm.DB, reportID uint64) (reportOwnedIDs, error) {
	var ids reportOwnedIDs
	if err := db.Model(&model.Signal{}).Where("report_id = ?", reportID).Pluck("id", &ids.signals).Error; err != nil {
		return ids, errs.Wrap(err, "query report signal ids")
	}
	if err := db.Model(&model.ReportEvent{}).Where("report_id = ?", reportID).Pluck("id", &ids.events).Error; err != nil {
		return ids, errs.Wrap(err, "query report event ids")
	}
	if err := db.Model(&model.Task{}).Where("report_id = ?", reportID).Pluck("id", &ids.tasks).Error; err != nil {
		return ids, errs.Wrap(err, "query report task ids")
	}
	if len(ids.tasks) > 0 {
		if err := db.Model(&model.TaskEvent{}).Where("task_id IN ?", ids.tasks).Pluck("id", &ids.taskEvents).Error; err != nil {
			return ids, errs.Wrap(err, "query task event ids")
		}
	}
	return ids, nil
}
