package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"review-prep/internal/database"
	"review-prep/pkg/api"
	"time"
)

func convertTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func convertSplit(s database.JobSplit) api.JobSplit {
	var counts map[string]int
	if len(s.LabelCounts) > 0 {
		if err := json.Unmarshal(s.LabelCounts, &counts); err != nil {
			slog.Error("error parsing label counts", "job_id", s.JobId, "split", s.Split, "error", err)
		}
	}
	return api.JobSplit{
		Split:       s.Split,
		Rows:        s.Rows,
		Path:        s.Path,
		LabelCounts: counts,
	}
}

func convertJob(j database.PrepareJob) api.Job {
	job := api.Job{
		Id:             j.Id,
		InputPath:      j.InputPath,
		OutputPath:     j.OutputPath,
		WorkerId:       j.WorkerId,
		PartitionId:    j.PartitionId,
		Status:         j.Status,
		CreationTime:   j.CreationTime,
		StartTime:      convertTime(j.StartTime),
		CompletionTime: convertTime(j.CompletionTime),
		Rows: api.RowCounts{
			Loaded:       j.LoadedRows,
			Cleaned:      j.CleanedRows,
			DroppedEmpty: j.DroppedEmptyRows,
			DroppedLabel: j.DroppedLabelRows,
			Balanced:     j.BalancedRows,
		},
		Splits: make([]api.JobSplit, 0, len(j.Splits)),
	}

	if len(j.Config) > 0 {
		if err := json.Unmarshal(j.Config, &job.Options); err != nil {
			slog.Error("error parsing job config", "job_id", j.Id, "error", err)
		}
	}

	for _, s := range j.Splits {
		job.Splits = append(job.Splits, convertSplit(s))
	}
	for _, e := range j.Errors {
		job.Errors = append(job.Errors, e.Error)
	}

	return job
}

func convertJobs(js []database.PrepareJob) []api.Job {
	jobs := make([]api.Job, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertJob(j))
	}
	return jobs
}
