package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/persistence/gormstore/model"
	"morcore/internal/ports"
)

const (
	defaultJobMaxAttempts = 7
	defaultJobLease       = 15 * time.Minute
)

// JobRepository is a database-backed job queue. A running job whose row was
// not touched for the lease timeout belongs to a dead worker and is claimed
// again.
type JobRepository struct {
	store
	maxAttempts int
	lease       time.Duration
}

var _ ports.JobStore = (*JobRepository)(nil)

func NewJobRepository(db *gorm.DB, maxAttempts int, lease time.Duration) *JobRepository {
	if maxAttempts <= 0 {
		maxAttempts = defaultJobMaxAttempts
	}
	if lease <= 0 {
		lease = defaultJobLease
	}
	return &JobRepository{store: store{db: db}, maxAttempts: maxAttempts, lease: lease}
}

func (r *JobRepository) Enqueue(ctx context.Context, job ports.Job) error {
	kind := strings.TrimSpace(job.Kind)
	if kind == "" {
		return errors.New("job kind is required")
	}
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return errs.Wrapf(err, "encode %s job payload", kind)
	}

	now := utcNow()
	runAt := job.RunAt.UTC()
	if job.RunAt.IsZero() {
		runAt = now
	}
	row := model.Job{
		Kind:        kind,
		Payload:     datatypes.JSON(payload),
		State:       string(ports.JobPending),
		MaxAttempts: r.maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrapf(err, "insert %s job", kind)
	}
	return nil
}

// ClaimDue uses SKIP LOCKED so several workers can share the table on
// drivers that support it. Besides due pending jobs it takes running jobs
// whose lease expired.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ports.JobRecord, error) {
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	claimable := "((state = ? AND run_at <= ?) OR (state = ? AND updated_at <= ?))"
	args := []any{string(ports.JobPending), now, string(ports.JobRunning), now.Add(-r.lease)}

	var claimed []model.Job
	err := r.withinTx(ctx, func(db *gorm.DB) error {
		var rows []model.Job
		if err := db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(claimable, args...).
			Order("run_at asc").Order("id asc").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return errs.Wrap(err, "query due jobs")
		}

		for _, row := range rows {
			if row.State == string(ports.JobRunning) {
				logging.Warn(ctx, "reclaiming job with expired lease",
					slog.Uint64("job_id", row.ID),
					slog.String("job_kind", row.Kind),
					slog.Time("updated_at", row.UpdatedAt))
			}
			result := db.Model(&model.Job{}).
				Where("id = ?", row.ID).
				Where(claimable, args...).
				Updates(map[string]any{"state": string(ports.JobRunning), "updated_at": utcNow()})
			if result.Error != nil {
				return errs.Wrap(result.Error, "claim job")
			}
			if result.RowsAffected == 0 {
				continue
			}
			row.State = string(ports.JobRunning)
			claimed = append(claimed, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]ports.JobRecord, 0, len(claimed))
	for _, row := range claimed {
		records = append(records, mapJob(row))
	}
	return records, nil
}

func (r *JobRepository) MarkDone(ctx context.Context, jobID uint64, attempts int) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"state":      string(ports.JobDone),
		"attempts":   attempts,
		"last_error": "",
	})
}

func (r *JobRepository) MarkRetry(ctx context.Context, jobID uint64, attempts int, runAt time.Time, lastErr string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"state":      string(ports.JobPending),
		"attempts":   attempts,
		"run_at":     runAt.UTC(),
		"last_error": lastErr,
	})
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID uint64, attempts int, lastErr string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"state":      string(ports.JobFailed),
		"attempts":   attempts,
		"last_error": lastErr,
	})
}

func (r *JobRepository) CountByState(ctx context.Context) (map[ports.JobState]int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		State string
		Count int64
	}
	if err := db.Model(&model.Job{}).Select("state, count(*) as count").Group("state").Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count jobs by state")
	}

	counts := make(map[ports.JobState]int64, len(rows))
	for _, row := range rows {
		counts[ports.JobState(row.State)] = row.Count
	}
	return counts, nil
}

// ListJobs is used by tests and the CLI to inspect the queue.
func (r *JobRepository) ListJobs(ctx context.Context, kind string) ([]ports.JobRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Job{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var rows []model.Job
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query jobs")
	}

	records := make([]ports.JobRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapJob(row))
	}
	return records, nil
}

func (r *JobRepository) updateJob(ctx context.Context, jobID uint64, updates map[string]any) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates["updated_at"] = utcNow()
	if err := db.Model(&model.Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return errs.Wrapf(err, "update job %d", jobID)
	}
	return nil
}

func mapJob(row model.Job) ports.JobRecord {
	return ports.JobRecord{
		ID:          row.ID,
		Kind:        row.Kind,
		Payload:     json.RawMessage(row.Payload),
		State:       ports.JobState(row.State),
		Attempts:    row.Attempts,
		MaxAttempts: row.MaxAttempts,
		RunAt:       row.RunAt,
		LastError:   row.LastError,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
