package api

import (
	"time"

	"github.com/google/uuid"
)

// PipelineOptions overrides the server defaults for a single job. Nil fields
// keep the default.
type PipelineOptions struct {
	MaxSeqLength    *int     `json:"max_seq_length,omitempty"`
	DataColumn      *string  `json:"data_column,omitempty"`
	LabelColumn     *string  `json:"label_column,omitempty"`
	LabelValues     []int    `json:"label_values,omitempty"`
	TrainSplit      *float64 `json:"train_split,omitempty"`
	ValidationSplit *float64 `json:"validation_split,omitempty"`
	TestSplit       *float64 `json:"test_split,omitempty"`
	BalanceSeed     *int64   `json:"balance_seed,omitempty"`
	SplitSeed       *int64   `json:"split_seed,omitempty"`
	StrictLabels    *bool    `json:"strict_labels,omitempty"`
}

type CreateJobRequest struct {
	InputPath   string
	OutputPath  string
	WorkerId    string
	PartitionId string

	Options *PipelineOptions `json:"Options,omitempty"`
}

type CreateJobResponse struct {
	JobId uuid.UUID
}

type ListJobsParams struct {
	Status string `schema:"status"`
}

type JobSplit struct {
	Split       string
	Rows        int
	Path        string
	LabelCounts map[string]int
}

type RowCounts struct {
	Loaded       int
	Cleaned      int
	DroppedEmpty int
	DroppedLabel int
	Balanced     int
}

type Job struct {
	Id          uuid.UUID
	InputPath   string
	OutputPath  string
	WorkerId    string
	PartitionId string
	Status      string

	CreationTime   time.Time
	StartTime      *time.Time `json:"StartTime,omitempty"`
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	Options map[string]any `json:"Options,omitempty"`
	Rows    RowCounts
	Splits  []JobSplit
	Errors  []string `json:"Errors,omitempty"`
}
