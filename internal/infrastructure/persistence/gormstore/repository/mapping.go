package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"morcore/internal/domain/report"
	"morcore/internal/infrastructure/persistence/gormstore/model"
)

func newUUID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

func jsonMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	return datatypes.JSONMap(m)
}

func plainMap(m datatypes.JSONMap) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any(m)
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func typedPtr[T ~string](v *string) *T {
	if v == nil {
		return nil
	}
	t := T(*v)
	return &t
}

func toReportRow(r report.Report) model.Report {
	return model.Report{
		ID:                    r.ID,
		UUID:                  newUUID(r.UUID),
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
		OriginalCreatedAt:     r.OriginalCreatedAt.UTC(),
		ClosedAt:              utcPtr(r.ClosedAt),
		Urgency:               r.Urgency,
		Meta:                  jsonMap(r.Meta),
		MetaExtended:          jsonMap(r.MetaExtended),
		Resolution:            stringPtr(r.Resolution),
		CloseReason:           r.CloseReason,
		StatusID:              r.StatusID,
		ReferenceLocationID:   r.ReferenceLocationID,
		ThumbnailAttachmentID: r.ThumbnailAttachmentID,
		SearchText:            r.SearchText,
	}
}

func mapReport(row model.Report) report.Report {
	return report.Report{
		ID:                    row.ID,
		UUID:                  row.UUID,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
		OriginalCreatedAt:     row.OriginalCreatedAt,
		ClosedAt:              row.ClosedAt,
		Urgency:               row.Urgency,
		Meta:                  plainMap(row.Meta),
		MetaExtended:          plainMap(row.MetaExtended),
		Resolution:            typedPtr[report.Resolution](row.Resolution),
		CloseReason:           row.CloseReason,
		StatusID:              row.StatusID,
		ReferenceLocationID:   row.ReferenceLocationID,
		ThumbnailAttachmentID: row.ThumbnailAttachmentID,
		SearchText:            row.SearchText,
	}
}

func mapStatus(row model.Status) report.Status {
	return report.Status{
		ID:        row.ID,
		ReportID:  row.ReportID,
		Name:      report.StatusName(row.Name),
		CreatedAt: row.CreatedAt,
	}
}

func toEventRow(e report.ReportEvent) model.ReportEvent {
	return model.ReportEvent{
		ID:                  e.ID,
		UUID:                newUUID(e.UUID),
		ReportID:            e.ReportID,
		Type:                string(e.Type),
		CreatedAt:           e.CreatedAt.UTC(),
		StatusID:            e.StatusID,
		Urgency:             e.Urgency,
		DescriptionInternal: e.DescriptionInternal,
		DescriptionExternal: e.DescriptionExternal,
		Actor:               e.Actor,
		TaskID:              e.TaskID,
		TaskEventID:         e.TaskEventID,
		LocationID:          e.LocationID,
		SignalID:            e.SignalID,
		Resolution:          stringPtr(e.Resolution),
		CloseReason:         e.CloseReason,
	}
}

func mapEvent(row model.ReportEvent) report.ReportEvent {
	return report.ReportEvent{
		ID:                  row.ID,
		UUID:                row.UUID,
		ReportID:            row.ReportID,
		Type:                report.EventType(row.Type),
		CreatedAt:           row.CreatedAt,
		StatusID:            row.StatusID,
		Urgency:             row.Urgency,
		DescriptionInternal: row.DescriptionInternal,
		DescriptionExternal: row.DescriptionExternal,
		Actor:               row.Actor,
		TaskID:              row.TaskID,
		TaskEventID:         row.TaskEventID,
		LocationID:          row.LocationID,
		SignalID:            row.SignalID,
		Resolution:          typedPtr[report.Resolution](row.Resolution),
		CloseReason:         row.CloseReason,
	}
}

func toSignalRow(s report.Signal) model.Signal {
	return model.Signal{
		ID:                s.ID,
		UUID:              newUUID(s.UUID),
		SignalURL:         s.SignalURL,
		SourceID:          s.SourceID,
		SourceSignalID:    s.SourceSignalID,
		OriginalCreatedAt: s.OriginalCreatedAt.UTC(),
		CreatedAt:         s.CreatedAt.UTC(),
		Urgency:           s.Urgency,
		Description:       s.Description,
		Meta:              jsonMap(s.Meta),
		MetaExtended:      jsonMap(s.MetaExtended),
		ReportID:          s.ReportID,
	}
}

func mapSignal(row model.Signal) report.Signal {
	return report.Signal{
		ID:                row.ID,
		UUID:              row.UUID,
		SignalURL:         row.SignalURL,
		SourceID:          row.SourceID,
		SourceSignalID:    row.SourceSignalID,
		OriginalCreatedAt: row.OriginalCreatedAt,
		CreatedAt:         row.CreatedAt,
		Urgency:           row.Urgency,
		Description:       row.Description,
		Meta:              plainMap(row.Meta),
		MetaExtended:      plainMap(row.MetaExtended),
		ReportID:          row.ReportID,
	}
}

func mapReporter(row model.Reporter) report.Reporter {
	return report.Reporter{
		ID:        row.ID,
		SignalID:  row.SignalID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
	}
}

func toLocationRow(l report.Location) model.Location {
	return model.Location{
		ID:          l.ID,
		ReportID:    l.ReportID,
		SignalID:    l.SignalID,
		Type:        string(l.Type),
		Street:      l.Street,
		HouseNumber: l.HouseNumber,
		HouseLetter: l.HouseLetter,
		Suffix:      l.Suffix,
		Postcode:    l.Postcode,
		City:        l.City,
		District:    l.District,
		Cemetery:    l.Cemetery,
		GraveNumber: l.GraveNumber,
		Section:     l.Section,
		LamppostID:  l.LamppostID,
		Lat:         l.Lat,
		Lon:         l.Lon,
		Weight:      l.Weight,
		IsPrimary:   l.Primary,
		CreatedAt:   l.CreatedAt.UTC(),
	}
}

func mapLocation(row model.Location) report.Location {
	return report.Location{
		ID:          row.ID,
		ReportID:    row.ReportID,
		SignalID:    row.SignalID,
		Type:        report.LocationType(row.Type),
		Street:      row.Street,
		HouseNumber: row.HouseNumber,
		HouseLetter: row.HouseLetter,
		Suffix:      row.Suffix,
		Postcode:    row.Postcode,
		City:        row.City,
		District:    row.District,
		Cemetery:    row.Cemetery,
		GraveNumber: row.GraveNumber,
		Section:     row.Section,
		LamppostID:  row.LamppostID,
		Lat:         row.Lat,
		Lon:         row.Lon,
		Weight:      row.Weight,
		Primary:     row.IsPrimary,
		CreatedAt:   row.CreatedAt,
	}
}

func toAttachmentRow(a report.Attachment) model.Attachment {
	return model.Attachment{
		ID:         a.ID,
		UUID:       newUUID(a.UUID),
		OwnerKind:  string(a.Owner.Kind),
		OwnerID:    a.Owner.ID,
		File:       a.File,
		Image:      a.Image,
		ImageThumb: a.ImageThumb,
		MimeType:   a.MimeType,
		IsImage:    a.IsImage,
		CreatedAt:  a.CreatedAt.UTC(),
	}
}

func mapAttachment(row model.Attachment) (report.Attachment, error) {
	kind, err := report.ParseOwnerKind(row.OwnerKind)
	if err != nil {
		return report.Attachment{}, err
	}
	return report.Attachment{
		ID:         row.ID,
		UUID:       row.UUID,
		Owner:      report.AttachmentOwner{Kind: kind, ID: row.OwnerID},
		File:       row.File,
		Image:      row.Image,
		ImageThumb: row.ImageThumb,
		MimeType:   row.MimeType,
		IsImage:    row.IsImage,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func toTaskRow(t report.Task) model.Task {
	var seconds *int64
	if t.HandlingDuration != nil {
		s := int64(t.HandlingDuration.Seconds())
		seconds = &s
	}
	return model.Task{
		ID:                      t.ID,
		UUID:                    newUUID(t.UUID),
		ReportID:                t.ReportID,
		ApplicationID:           t.ApplicationID,
		TaskType:                t.TaskType,
		Title:                   t.Title,
		Message:                 t.Message,
		StatusID:                t.StatusID,
		Resolution:              stringPtr(t.Resolution),
		AdditionalInfo:          jsonMap(t.AdditionalInfo),
		TaskURL:                 t.TaskURL,
		CreatedAt:               t.CreatedAt.UTC(),
		UpdatedAt:               t.UpdatedAt.UTC(),
		ClosedAt:                utcPtr(t.ClosedAt),
		DeletedAt:               utcPtr(t.DeletedAt),
		HandlingDurationSeconds: seconds,
	}
}

func mapTask(row model.Task) report.Task {
	var duration *time.Duration
	if row.HandlingDurationSeconds != nil {
		d := time.Duration(*row.HandlingDurationSeconds) * time.Second
		duration = &d
	}
	return report.Task{
		ID:               row.ID,
		UUID:             row.UUID,
		ReportID:         row.ReportID,
		ApplicationID:    row.ApplicationID,
		TaskType:         row.TaskType,
		Title:            row.Title,
		Message:          row.Message,
		StatusID:         row.StatusID,
		Resolution:       typedPtr[report.TaskResolution](row.Resolution),
		AdditionalInfo:   plainMap(row.AdditionalInfo),
		TaskURL:          row.TaskURL,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		ClosedAt:         row.ClosedAt,
		DeletedAt:        row.DeletedAt,
		HandlingDuration: duration,
	}
}

func mapTaskStatus(row model.TaskStatus) report.TaskStatus {
	return report.TaskStatus{
		ID:        row.ID,
		TaskID:    row.TaskID,
		Name:      report.TaskStatusName(row.Name),
		CreatedAt: row.CreatedAt,
	}
}

func toTaskEventRow(e report.TaskEvent) model.TaskEvent {
	return model.TaskEvent{
		ID:                  e.ID,
		UUID:                newUUID(e.UUID),
		TaskID:              e.TaskID,
		TaskStatusID:        e.TaskStatusID,
		Resolution:          stringPtr(e.Resolution),
		DescriptionInternal: e.DescriptionInternal,
		Actor:               e.Actor,
		AdditionalInfo:      jsonMap(e.AdditionalInfo),
		CreatedAt:           e.CreatedAt.UTC(),
		ClosedAt:            utcPtr(e.ClosedAt),
		DeletedAt:           utcPtr(e.DeletedAt),
	}
}

func mapTaskEvent(row model.TaskEvent) report.TaskEvent {
	return report.TaskEvent{
		ID:                  row.ID,
		UUID:                row.UUID,
		TaskID:              row.TaskID,
		TaskStatusID:        row.TaskStatusID,
		Resolution:          typedPtr[report.TaskResolution](row.Resolution),
		DescriptionInternal: row.DescriptionInternal,
		Actor:               row.Actor,
		AdditionalInfo:      plainMap(row.AdditionalInfo),
		CreatedAt:           row.CreatedAt,
		ClosedAt:            row.ClosedAt,
		DeletedAt:           row.DeletedAt,
	}
}

func toApplicationRow(app report.Application) (model.Application, error) {
	validURLs, err := json.Marshal(nonNilStrings(app.ValidBaseURLs))
	if err != nil {
		return model.Application{}, err
	}
	taskTypes, err := json.Marshal(nonNilStrings(app.TaskTypes))
	if err != nil {
		return model.Application{}, err
	}
	return model.Application{
		ID:            app.ID,
		Name:          app.Name,
		BaseURL:       app.BaseURL,
		ValidBaseURLs: datatypes.JSON(validURLs),
		Username:      app.Username,
		Password:      app.Password,
		TaskTypes:     datatypes.JSON(taskTypes),
		UpdatedAt:     utcNow(),
	}, nil
}

func mapApplication(row model.Application) (report.Application, error) {
	app := report.Application{
		ID:       row.ID,
		Name:     row.Name,
		BaseURL:  row.BaseURL,
		Username: row.Username,
		Password: row.Password,
	}
	if len(row.ValidBaseURLs) > 0 {
		if err := json.Unmarshal(row.ValidBaseURLs, &app.ValidBaseURLs); err != nil {
			return report.Application{}, err
		}
	}
	if len(row.TaskTypes) > 0 {
		if err := json.Unmarshal(row.TaskTypes, &app.TaskTypes); err != nil {
			return report.Application{}, err
		}
	}
	return app, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
