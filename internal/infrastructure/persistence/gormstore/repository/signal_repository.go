package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/persistence/gormstore/model"
)

func (r *ReportRepository) GetSignalByUUID(ctx context.Context, signalUUID uuid.UUID) (report.Signal, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Signal{}, err
	}

	var row model.Signal
	if err := db.Where("uuid = ?", signalUUID).Take(&row).Error; err != nil {
		return report.Signal{}, lookupError(err, report.ErrSignalNotFound, "query signal by uuid")
	}
	return hydrateSignal(db, row)
}

func (r *ReportRepository) FindSignalBySource(ctx context.Context, sourceID string, sourceSignalID string) (report.Signal, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Signal{}, false, err
	}

	var rows []model.Signal
	if err := db.Where("source_id = ? AND source_signal_id = ?", sourceID, sourceSignalID).Limit(1).Find(&rows).Error; err != nil {
		return report.Signal{}, false, errs.Wrap(err, "query signal by source")
	}
	if len(rows) == 0 {
		return report.Signal{}, false, nil
	}

	signal, err := hydrateSignal(db, rows[0])
	if err != nil {
		return report.Signal{}, false, err
	}
	return signal, true, nil
}

func (r *ReportRepository) ListSignals(ctx context.Context, reportID uint64) ([]report.Signal, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Signal
	if err := db.Where("report_id = ?", reportID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query report signals")
	}

	items := make([]report.Signal, 0, len(rows))
	for _, row := range rows {
		signal, err := hydrateSignal(db, row)
		if err != nil {
			return nil, err
		}
		items = append(items, signal)
	}
	return items, nil
}

// CreateSignal stores the signal with its reporter, subjects, locations and
// attachments. Returned children carry their generated ids.
func (r *ReportRepository) CreateSignal(ctx context.Context, signal report.Signal) (report.Signal, error) {
	var created report.Signal
	err := r.withinTx(ctx, func(db *gorm.DB) error {
		row := toSignalRow(signal)
		if err := db.Create(&row).Error; err != nil {
			return errs.Wrap(err, "insert signal")
		}

		subjects := subjectRows(signal.Subjects, func(position int, subject string) model.SignalSubject {
			return model.SignalSubject{SignalID: row.ID, SubjectURL: subject, Position: position}
		})
		if len(subjects) > 0 {
			if err := db.Create(&subjects).Error; err != nil {
				return errs.Wrap(err, "insert signal subjects")
			}
		}

		if signal.Reporter != nil {
			reporter := model.Reporter{
				SignalID:  row.ID,
				FirstName: signal.Reporter.FirstName,
				LastName:  signal.Reporter.LastName,
				Name:      signal.Reporter.Name,
				Email:     signal.Reporter.Email,
				Phone:     signal.Reporter.Phone,
			}
			if err := db.Create(&reporter).Error; err != nil {
				return errs.Wrap(err, "insert reporter")
			}
		}

		if len(signal.Locations) > 0 {
			locations := make([]model.Location, 0, len(signal.Locations))
			for _, loc := range signal.Locations {
				loc.SignalID = &row.ID
				loc.ReportID = nil
				if loc.CreatedAt.IsZero() {
					loc.CreatedAt = row.CreatedAt
				}
				locations = append(locations, toLocationRow(loc))
			}
			if err := db.Create(&locations).Error; err != nil {
				return errs.Wrap(err, "insert signal locations")
			}
		}

		if len(signal.Attachments) > 0 {
			attachments := make([]model.Attachment, 0, len(signal.Attachments))
			for _, a := range signal.Attachments {
				a.Owner = report.SignalOwner(row.ID)
				if a.CreatedAt.IsZero() {
					a.CreatedAt = row.CreatedAt
				}
				attachments = append(attachments, toAttachmentRow(a))
			}
			if err := db.Create(&attachments).Error; err != nil {
				return errs.Wrap(err, "insert signal attachments")
			}
		}

		hydrated, err := hydrateSignal(db, row)
		if err != nil {
			return err
		}
		created = hydrated
		return nil
	})
	if err != nil {
		return report.Signal{}, err
	}
	return created, nil
}

func (r *ReportRepository) LockSignal(ctx context.Context, signalID uint64) (report.Signal, error) {
	var row model.Signal
	if err := r.lockRow(ctx, "signal", signalID, &row, report.ErrReportInUse, report.ErrSignalNotFound); err != nil {
		return report.Signal{}, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Signal{}, err
	}
	return hydrateSignal(db, row)
}

func (r *ReportRepository) LinkSignal(ctx context.Context, signalID uint64, reportID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Signal{}).Where("id = ?", signalID).Update("report_id", reportID)
	if result.Error != nil {
		return errs.Wrap(result.Error, "link signal to report")
	}
	if result.RowsAffected == 0 {
		return report.ErrSignalNotFound
	}
	return nil
}

func (r *ReportRepository) GetLocation(ctx context.Context, locationID uint64) (report.Location, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Location{}, err
	}

	var row model.Location
	if err := db.Where("id = ?", locationID).Take(&row).Error; err != nil {
		return report.Location{}, lookupError(err, report.ErrLocationNotFound, "query location")
	}
	return mapLocation(row), nil
}

func (r *ReportRepository) ListLocations(ctx context.Context, reportID uint64) ([]report.Location, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Location
	if err := db.Where("report_id = ?", reportID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query report locations")
	}

	items := make([]report.Location, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapLocation(row))
	}
	return items, nil
}

func (r *ReportRepository) CreateLocation(ctx context.Context, location report.Location) (report.Location, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Location{}, err
	}

	row := toLocationRow(location)
	if err := db.Create(&row).Error; err != nil {
		return report.Location{}, errs.Wrap(err, "insert location")
	}
	return mapLocation(row), nil
}

func (r *ReportRepository) DemoteLocations(ctx context.Context, reportID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.Location{}).Where("report_id = ? AND is_primary = ?", reportID, true).Update("is_primary", false).Error; err != nil {
		return errs.Wrap(err, "demote report locations")
	}
	return nil
}

func (r *ReportRepository) GetAttachment(ctx context.Context, attachmentID uint64) (report.Attachment, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Attachment{}, err
	}

	var row model.Attachment
	if err := db.Where("id = ?", attachmentID).Take(&row).Error; err != nil {
		return report.Attachment{}, lookupError(err, report.ErrAttachmentNotFound, "query attachment")
	}
	return mapAttachment(row)
}

func (r *ReportRepository) ListAttachments(ctx context.Context, owners ...report.AttachmentOwner) ([]report.Attachment, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return listAttachments(db, owners)
}

// ListReportAttachments returns the attachments of the report, its signals,
// its events and the events of its tasks.
func (r *ReportRepository) ListReportAttachments(ctx context.Context, reportID uint64) ([]report.Attachment, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := collectReportOwnedIDs(db, reportID)
	if err != nil {
		return nil, err
	}
	return listAttachments(db, ids.owners(reportID))
}

func (r *ReportRepository) CreateAttachments(ctx context.Context, attachments []report.Attachment) ([]report.Attachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]model.Attachment, 0, len(attachments))
	for _, a := range attachments {
		rows = append(rows, toAttachmentRow(a))
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "insert attachments")
	}

	items := make([]report.Attachment, 0, len(rows))
	for _, row := range rows {
		item, err := mapAttachment(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *ReportRepository) UpdateAttachmentInspection(ctx context.Context, attachmentID uint64, mimeType string, isImage bool) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.Attachment{}).Where("id = ?", attachmentID).Updates(map[string]any{
		"mime_type": mimeType,
		"is_image":  isImage,
	}).Error; err != nil {
		return errs.Wrap(err, "update attachment inspection")
	}
	return nil
}

func hydrateSignal(db *gorm.DB, row model.Signal) (report.Signal, error) {
	signal := mapSignal(row)

	var subjects []model.SignalSubject
	if err := db.Where("signal_id = ?", row.ID).Order("position asc").Find(&subjects).Error; err != nil {
		return report.Signal{}, errs.Wrap(err, "query signal subjects")
	}
	for _, s := range subjects {
		signal.Subjects = append(signal.Subjects, s.SubjectURL)
	}

	var reporters []model.Reporter
	if err := db.Where("signal_id = ?", row.ID).Limit(1).Find(&reporters).Error; err != nil {
		return report.Signal{}, errs.Wrap(err, "query reporter")
	}
	if len(reporters) > 0 {
		reporter := mapReporter(reporters[0])
		signal.Reporter = &reporter
	}

	var locations []model.Location
	if err := db.Where("signal_id = ?", row.ID).Order("id asc").Find(&locations).Error; err != nil {
		return report.Signal{}, errs.Wrap(err, "query signal locations")
	}
	for _, loc := range locations {
		signal.Locations = append(signal.Locations, mapLocation(loc))
	}

	attachments, err := listAttachments(db, []report.AttachmentOwner{report.SignalOwner(row.ID)})
	if err != nil {
		return report.Signal{}, err
	}
	signal.Attachments = attachments
	return signal, nil
}

func listAttachments(db *gorm.DB, owners []report.AttachmentOwner) ([]report.Attachment, error) {
	if len(owners) == 0 {
		return []report.Attachment{}, nil
	}

	var rows []model.Attachment
	if err := attachmentOwnersQuery(db, owners).Order("created_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query attachments")
	}

	items := make([]report.Attachment, 0, len(rows))
	for _, row := range rows {
		item, err := mapAttachment(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// attachmentOwnersQuery matches attachments owned by any of owners.
func attachmentOwnersQuery(db *gorm.DB, owners []report.AttachmentOwner) *gorm.DB {
	byKind := make(map[report.OwnerKind][]uint64)
	kinds := make([]report.OwnerKind, 0, 4)
	for _, owner := range owners {
		if _, ok := byKind[owner.Kind]; !ok {
			kinds = append(kinds, owner.Kind)
		}
		byKind[owner.Kind] = append(byKind[owner.Kind], owner.ID)
	}
	if len(kinds) == 0 {
		return db.Where("1 = 0")
	}

	conditions := make([]string, 0, len(kinds))
	args := make([]any, 0, len(kinds)*2)
	for _, kind := range kinds {
		conditions = append(conditions, "(owner_kind = ? AND owner_id IN ?)")
		args = append(args, string(kind), byKind[kind])
	}
	return db.Where(strings.Join(conditions, " OR "), args...)
}
