package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

type PrepareJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	InputPath   string `gorm:"not null"`
	OutputPath  string `gorm:"not null"`
	WorkerId    string
	PartitionId string

	// Pipeline options the job was submitted with, see config.PipelineOptions.
	Config datatypes.JSON `gorm:"type:jsonb"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	LoadedRows       int `gorm:"default:0"`
	CleanedRows      int `gorm:"default:0"`
	DroppedEmptyRows int `gorm:"default:0"`
	DroppedLabelRows int `gorm:"default:0"`
	BalancedRows     int `gorm:"default:0"`

	Splits []JobSplit `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
	Errors []JobError `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type JobSplit struct {
	JobId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Split string    `gorm:"primaryKey;size:20"`

	Rows        int
	Path        string
	LabelCounts datatypes.JSON `gorm:"type:jsonb"` // {"1": 120, "2": 120, ...}
}

type JobError struct {
	JobId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}
