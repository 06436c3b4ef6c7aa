package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"review-prep/internal/config"
	"review-prep/internal/core/tokenizer"
	"review-prep/internal/database"
	"review-prep/internal/messaging"
	"review-prep/internal/storage"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskProcessor struct {
	db        *gorm.DB
	publisher messaging.Publisher
	reciever  messaging.Reciever

	tokenizer tokenizer.Tokenizer
	newS3     storage.NewProviderFunc

	// Outputs bound for S3 are staged here before upload.
	stagingDir    string
	encodeWorkers int
	loadWorkers   int
}

func NewTaskProcessor(db *gorm.DB, publisher messaging.Publisher, reciever messaging.Reciever, tk tokenizer.Tokenizer, newS3 storage.NewProviderFunc, stagingDir string, encodeWorkers, loadWorkers int) *TaskProcessor {
	return &TaskProcessor{
		db:            db,
		publisher:     publisher,
		reciever:      reciever,
		tokenizer:     tk,
		newS3:         newS3,
		stagingDir:    stagingDir,
		encodeWorkers: encodeWorkers,
		loadWorkers:   loadWorkers,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	if task.Type() != messaging.PrepareQueue {
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload messaging.PrepareTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error unmarshalling prepare task", "error", err)
		if err := task.Reject(); err != nil { // Discard malformed message
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err := proc.processPrepareTask(ctx, payload); err != nil {
		slog.Error("error processing task", "queue", task.Type(), "job_id", payload.JobId, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type(), "job_id", payload.JobId)
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processPrepareTask(ctx context.Context, payload messaging.PrepareTaskPayload) error {
	jobId := payload.JobId

	var job database.PrepareJob
	if err := proc.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		slog.Error("error fetching prepare job", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting prepare job: %w", err)
	}

	if job.Status == database.JobCompleted {
		slog.Info("job already completed, skipping", "job_id", jobId)
		return nil
	}

	slog.Info("processing prepare job", "job_id", jobId, "input", job.InputPath, "output", job.OutputPath)

	if err := database.UpdateJobStatus(ctx, proc.db, jobId, database.JobRunning); err != nil {
		return fmt.Errorf("error updating job status: %w", err)
	}

	result, err := proc.runJob(ctx, job)

	counts := database.RowCounts{
		Loaded:       result.Stats.Loaded,
		Cleaned:      result.Stats.Cleaned,
		DroppedEmpty: result.Stats.DroppedEmpty,
		DroppedLabel: result.Stats.DroppedLabel,
		Balanced:     result.Stats.Balanced,
	}
	if saveErr := database.SaveRowCounts(ctx, proc.db, jobId, counts); saveErr != nil {
		slog.Error("error saving row counts", "job_id", jobId, "error", saveErr)
	}

	if err == nil {
		err = proc.saveSplits(ctx, jobId, result.Outputs)
	}

	if err != nil {
		database.SaveJobError(ctx, proc.db, jobId, err.Error())
		jobsTotal.WithLabelValues(database.JobFailed).Inc()
		return errors.Join(err, database.UpdateJobStatus(ctx, proc.db, jobId, database.JobFailed))
	}

	jobsTotal.WithLabelValues(database.JobCompleted).Inc()
	return database.UpdateJobStatus(ctx, proc.db, jobId, database.JobCompleted)
}

func (proc *TaskProcessor) runJob(ctx context.Context, job database.PrepareJob) (Result, error) {
	opts, err := config.ParsePipelineOptions(job.Config)
	if err != nil {
		return Result{}, err
	}

	pipeline, err := NewPipelineFromOptions(opts, proc.tokenizer, proc.encodeWorkers)
	if err != nil {
		return Result{}, err
	}

	source, err := OpenSource(job.InputPath, opts, proc.newS3, proc.loadWorkers)
	if err != nil {
		return Result{}, err
	}

	stagingDir := filepath.Join(proc.stagingDir, job.Id.String())
	// Jobs submitted without an identity share nothing with other jobs writing
	// to the same output, so the job id names their files.
	workerId := job.WorkerId
	if workerId == "" {
		workerId = job.Id.String()
	}

	sink, cleanup, err := OpenSink(ctx, job.OutputPath, workerId, job.PartitionId, stagingDir, proc.newS3)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	return pipeline.Plan(source).Run(ctx, sink)
}

func (proc *TaskProcessor) saveSplits(ctx context.Context, jobId uuid.UUID, outputs []SplitOutput) error {
	for _, output := range outputs {
		counts := make(map[string]int, len(output.LabelCounts))
		for label, n := range output.LabelCounts {
			counts[strconv.Itoa(label)] = n
		}
		labelCounts, err := json.Marshal(counts)
		if err != nil {
			return fmt.Errorf("error serializing label counts: %w", err)
		}

		if err := database.SaveJobSplit(ctx, proc.db, database.JobSplit{
			JobId:       jobId,
			Split:       string(output.Split),
			Rows:        output.Rows,
			Path:        output.Path,
			LabelCounts: datatypes.JSON(labelCounts),
		}); err != nil {
			return err
		}
	}
	return nil
}
