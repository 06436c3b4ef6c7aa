package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PrepareJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	InputPath   string `gorm:"not null"`
	OutputPath  string `gorm:"not null"`
	WorkerId    string
	PartitionId string

	Config datatypes.JSON `gorm:"type:jsonb"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	LoadedRows   int `gorm:"default:0"`
	CleanedRows  int `gorm:"default:0"`
	BalancedRows int `gorm:"default:0"`

	Splits []JobSplit `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
	Errors []JobError `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type JobSplit struct {
	JobId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Split string    `gorm:"primaryKey;size:20"`

	Rows        int
	Path        string
	LabelCounts datatypes.JSON `gorm:"type:jsonb"`
}

type JobError struct {
	JobId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&PrepareJob{}, &JobSplit{}, &JobError{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
