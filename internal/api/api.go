package api

import (
	"errors"
	"log/slog"
	"net/http"
	"review-prep/internal/config"
	"review-prep/internal/core/types"
	"review-prep/internal/database"
	"review-prep/internal/messaging"
	"review-prep/internal/storage"
	"review-prep/pkg/api"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	defaults  config.PipelineOptions
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher, defaults config.PipelineOptions) *BackendService {
	return &BackendService{db: db, publisher: publisher, defaults: defaults}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateJob))
		r.Get("/", RestHandler(s.ListJobs))
		r.Get("/{job_id}", RestHandler(s.GetJob))
	})
}

func applyOverrides(opts config.PipelineOptions, overrides *api.PipelineOptions) config.PipelineOptions {
	if overrides == nil {
		return opts
	}

	setIfPresent(&opts.MaxSeqLength, overrides.MaxSeqLength)
	setIfPresent(&opts.DataColumn, overrides.DataColumn)
	setIfPresent(&opts.LabelColumn, overrides.LabelColumn)
	setIfPresent(&opts.TrainSplit, overrides.TrainSplit)
	setIfPresent(&opts.ValidationSplit, overrides.ValidationSplit)
	setIfPresent(&opts.TestSplit, overrides.TestSplit)
	setIfPresent(&opts.BalanceSeed, overrides.BalanceSeed)
	setIfPresent(&opts.SplitSeed, overrides.SplitSeed)
	setIfPresent(&opts.StrictLabels, overrides.StrictLabels)
	if len(overrides.LabelValues) > 0 {
		opts.LabelValues = slices.Clone(overrides.LabelValues)
	}

	return opts
}

func setIfPresent[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (s *BackendService) CreateJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateJobRequest](r)
	if err != nil {
		return nil, err
	}

	if req.InputPath == "" || req.OutputPath == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required fields: InputPath, OutputPath")
	}
	for _, path := range []string{req.InputPath, req.OutputPath} {
		if _, err := storage.ParseLocation(path); err != nil {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid location '%s': %v", path, err)
		}
	}

	opts := applyOverrides(s.defaults, req.Options)
	if err := opts.Validate(); err != nil {
		var ratioErr *types.InvalidSplitRatioError
		if errors.As(err, &ratioErr) {
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		}
		return nil, CodedError(http.StatusBadRequest, err)
	}

	optsJSON, err := opts.JSON()
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error serializing pipeline options: %v", err)
	}

	ctx := r.Context()

	job := database.PrepareJob{
		Id:           uuid.New(),
		InputPath:    req.InputPath,
		OutputPath:   req.OutputPath,
		WorkerId:     req.WorkerId,
		PartitionId:  req.PartitionId,
		Config:       datatypes.JSON(optsJSON),
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating prepare job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create job entry")
	}

	if err := s.publisher.PublishPrepareTask(ctx, messaging.PrepareTaskPayload{JobId: job.Id}); err != nil {
		slog.Error("error publishing prepare task", "job_id", job.Id, "error", err)
		database.SaveJobError(ctx, s.db, job.Id, "failed to queue job")
		if err := database.UpdateJobStatus(ctx, s.db, job.Id, database.JobFailed); err != nil {
			slog.Error("error marking unqueued job failed", "job_id", job.Id, "error", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue prepare task")
	}

	slog.Info("submitted prepare job", "job_id", job.Id, "input", job.InputPath, "output", job.OutputPath)

	return api.CreateJobResponse{JobId: job.Id}, nil
}

var jobStatuses = []string{database.JobQueued, database.JobRunning, database.JobCompleted, database.JobFailed}

func (s *BackendService) ListJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListJobsParams](r)
	if err != nil {
		return nil, err
	}

	if params.Status != "" && !slices.Contains(jobStatuses, params.Status) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid status '%s', expected one of %v", params.Status, jobStatuses)
	}

	jobs, err := database.ListJobs(r.Context(), s.db, params.Status)
	if err != nil {
		slog.Error("error listing jobs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job records")
	}

	return convertJobs(jobs), nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	job, err := database.GetJob(r.Context(), s.db, jobId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "job not found")
		}
		slog.Error("error getting job", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job record")
	}

	return convertJob(job), nil
}
