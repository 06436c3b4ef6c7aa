package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func UpdateJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case JobRunning:
		updates["start_time"] = time.Now().UTC()
	case JobCompleted, JobFailed:
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&PrepareJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

type RowCounts struct {
	Loaded       int
	Cleaned      int
	DroppedEmpty int
	DroppedLabel int
	Balanced     int
}

func SaveRowCounts(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, counts RowCounts) error {
	updates := map[string]any{
		"loaded_rows":        counts.Loaded,
		"cleaned_rows":       counts.Cleaned,
		"dropped_empty_rows": counts.DroppedEmpty,
		"dropped_label_rows": counts.DroppedLabel,
		"balanced_rows":      counts.Balanced,
	}

	if err := txn.WithContext(ctx).Model(&PrepareJob{Id: jobId}).Updates(updates).Error; err != nil {
		return fmt.Errorf("error saving row counts for job %s: %w", jobId, err)
	}
	return nil
}

// SaveJobSplit records the output of one split, replacing the previous record
// if the job is run again.
func SaveJobSplit(ctx context.Context, txn *gorm.DB, split JobSplit) error {
	if err := txn.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&split).Error; err != nil {
		return fmt.Errorf("error saving %s split for job %s: %w", split.Split, split.JobId, err)
	}
	return nil
}

func SaveJobError(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, errorMessage string) {
	jobError := JobError{
		JobId:     jobId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&jobError).Error; err != nil {
		slog.Error("error saving job error", "job_id", jobId, "error", err)
	}
}

func GetJob(ctx context.Context, db *gorm.DB, jobId uuid.UUID) (PrepareJob, error) {
	var job PrepareJob
	if err := db.WithContext(ctx).
		Preload("Splits", func(db *gorm.DB) *gorm.DB { return db.Order("split") }).
		Preload("Errors", func(db *gorm.DB) *gorm.DB { return db.Order("timestamp") }).
		First(&job, "id = ?", jobId).Error; err != nil {
		return PrepareJob{}, err
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func ListJobs(ctx context.Context, db *gorm.DB, status string) ([]PrepareJob, error) {
	query := db.WithContext(ctx).Preload("Splits").Order("creation_time DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var jobs []PrepareJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("error listing jobs: %w", err)
	}
	return jobs, nil
}
