package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/persistence/gormstore/model"
	"morcore/internal/ports"
)

type TaskRepository struct {
	store
}

var _ ports.TaskRepository = (*TaskRepository)(nil)

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{store: store{db: db}}
}

// ObserveLockFailures registers fn for every task lock that fails fast.
func (r *TaskRepository) ObserveLockFailures(fn LockObserver) {
	r.observer = fn
}

func (r *TaskRepository) GetTask(ctx context.Context, taskID uint64) (report.Task, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Task{}, err
	}

	var row model.Task
	if err := db.Where("id = ?", taskID).Take(&row).Error; err != nil {
		return report.Task{}, lookupError(err, report.ErrTaskNotFound, "query task")
	}
	return hydrateTask(db, row)
}

func (r *TaskRepository) GetTaskByUUID(ctx context.Context, taskUUID uuid.UUID) (report.Task, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Task{}, err
	}

	var row model.Task
	if err := db.Where("uuid = ?", taskUUID).Take(&row).Error; err != nil {
		return report.Task{}, lookupError(err, report.ErrTaskNotFound, "query task by uuid")
	}
	return hydrateTask(db, row)
}

func (r *TaskRepository) ListTasks(ctx context.Context, reportID uint64) ([]report.Task, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Task
	if err := db.Where("report_id = ?", reportID).Order("created_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query tasks")
	}

	items := make([]report.Task, 0, len(rows))
	for _, row := range rows {
		task, err := hydrateTask(db, row)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, nil
}

func (r *TaskRepository) LockTask(ctx context.Context, taskID uint64) (report.Task, error) {
	var row model.Task
	if err := r.lockRow(ctx, "task", taskID, &row, report.ErrTaskInUse, report.ErrTaskNotFound); err != nil {
		return report.Task{}, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Task{}, err
	}
	return hydrateTask(db, row)
}

// LockOpenTasks locks every open task of the report in id order.
func (r *TaskRepository) LockOpenTasks(ctx context.Context, reportID uint64) ([]report.Task, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var ids []uint64
	if err := db.Model(&model.Task{}).
		Where("report_id = ? AND closed_at IS NULL AND deleted_at IS NULL", reportID).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, errs.Wrap(err, "query open task ids")
	}

	tasks := make([]report.Task, 0, len(ids))
	for _, id := range ids {
		task, err := r.LockTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.IsOpen() {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (r *TaskRepository) CreateTask(ctx context.Context, task report.Task) (report.Task, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Task{}, err
	}

	row := toTaskRow(task)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = utcNow()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	if err := db.Create(&row).Error; err != nil {
		return report.Task{}, errs.Wrap(err, "insert task")
	}
	return mapTask(row), nil
}

func (r *TaskRepository) UpdateTask(ctx context.Context, task report.Task) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}
	return updateTask(db, task)
}

// UpdateTasks writes several tasks in the caller's transaction.
func (r *TaskRepository) UpdateTasks(ctx context.Context, tasks []report.Task) error {
	return r.withinTx(ctx, func(db *gorm.DB) error {
		for _, task := range tasks {
			if err := updateTask(db, task); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TaskRepository) CreateTaskStatus(ctx context.Context, status report.TaskStatus) (report.TaskStatus, error) {
	created, err := r.CreateTaskStatuses(ctx, []report.TaskStatus{status})
	if err != nil {
		return report.TaskStatus{}, err
	}
	return created[0], nil
}

func (r *TaskRepository) CreateTaskStatuses(ctx context.Context, statuses []report.TaskStatus) ([]report.TaskStatus, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]model.TaskStatus, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, model.TaskStatus{
			TaskID:    s.TaskID,
			Name:      string(s.Name),
			CreatedAt: s.CreatedAt.UTC(),
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "insert task statuses")
	}

	items := make([]report.TaskStatus, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapTaskStatus(row))
	}
	return items, nil
}

func (r *TaskRepository) CreateTaskEvent(ctx context.Context, event report.TaskEvent) (report.TaskEvent, error) {
	created, err := r.CreateTaskEvents(ctx, []report.TaskEvent{event})
	if err != nil {
		return report.TaskEvent{}, err
	}
	return created[0], nil
}

func (r *TaskRepository) CreateTaskEvents(ctx context.Context, events []report.TaskEvent) ([]report.TaskEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]model.TaskEvent, 0, len(events))
	for _, e := range events {
		rows = append(rows, toTaskEventRow(e))
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "insert task events")
	}

	items := make([]report.TaskEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapTaskEvent(row))
	}
	return items, nil
}

func (r *TaskRepository) UpdateTaskEvent(ctx context.Context, event report.TaskEvent) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := toTaskEventRow(event)
	if err := db.Model(&model.TaskEvent{}).Where("id = ?", event.ID).Updates(map[string]any{
		"additional_info": row.AdditionalInfo,
		"created_at":      row.CreatedAt,
		"closed_at":       row.ClosedAt,
		"deleted_at":      row.DeletedAt,
	}).Error; err != nil {
		return errs.Wrap(err, "update task event")
	}
	return nil
}

func (r *TaskRepository) ListTaskEvents(ctx context.Context, taskID uint64) ([]report.TaskEvent, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.TaskEvent
	if err := db.Where("task_id = ?", taskID).Order("created_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query task events")
	}

	items := make([]report.TaskEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapTaskEvent(row))
	}
	return items, nil
}

func (r *TaskRepository) TaskEventExistsAt(ctx context.Context, taskID uint64, createdAt time.Time) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&model.TaskEvent{}).
		Where("task_id = ? AND created_at = ?", taskID, createdAt.UTC()).
		Count(&count).Error; err != nil {
		return false, errs.Wrap(err, "count task events at time")
	}
	return count > 0, nil
}

func (r *TaskRepository) UpsertApplication(ctx context.Context, app report.Application) (report.Application, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Application{}, err
	}

	row, err := toApplicationRow(app)
	if err != nil {
		return report.Application{}, errs.Wrap(err, "encode application")
	}
	row.ID = 0
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_url", "valid_base_urls", "username", "password", "task_types", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return report.Application{}, errs.Wrap(err, "upsert application")
	}

	var stored model.Application
	if err := db.Where("name = ?", app.Name).Take(&stored).Error; err != nil {
		return report.Application{}, errs.Wrap(err, "query upserted application")
	}
	return mapApplication(stored)
}

func (r *TaskRepository) GetApplication(ctx context.Context, applicationID uint64) (report.Application, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return report.Application{}, err
	}

	var row model.Application
	if err := db.Where("id = ?", applicationID).Take(&row).Error; err != nil {
		return report.Application{}, lookupError(err, report.ErrApplicationNotFound, "query application")
	}
	return mapApplication(row)
}

func (r *TaskRepository) ListApplications(ctx context.Context) ([]report.Application, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Application
	if err := db.Order("name asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query applications")
	}

	items := make([]report.Application, 0, len(rows))
	for _, row := range rows {
		app, err := mapApplication(row)
		if err != nil {
			return nil, errs.Wrapf(err, "decode application %q", row.Name)
		}
		items = append(items, app)
	}
	return items, nil
}

func hydrateTask(db *gorm.DB, row model.Task) (report.Task, error) {
	task := mapTask(row)
	if row.StatusID == nil {
		return task, nil
	}

	var status model.TaskStatus
	if err := db.Where("id = ?", *row.StatusID).Take(&status).Error; err != nil {
		return report.Task{}, errs.Wrap(err, "query task status")
	}
	mapped := mapTaskStatus(status)
	task.Status = &mapped
	return task, nil
}

func updateTask(db *gorm.DB, task report.Task) error {
	row := toTaskRow(task)
	result := db.Model(&model.Task{}).Where("id = ?", task.ID).Updates(map[string]any{
		"status_id":                 row.StatusID,
		"resolution":                row.Resolution,
		"additional_info":           row.AdditionalInfo,
		"task_url":                  row.TaskURL,
		"created_at":                row.CreatedAt,
		"updated_at":                utcNow(),
		"closed_at":                 row.ClosedAt,
		"deleted_at":                row.DeletedAt,
		"handling_duration_seconds": row.HandlingDurationSeconds,
	})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update task")
	}
	if result.RowsAffected == 0 {
		return report.ErrTaskNotFound
	}
	return nil
}
