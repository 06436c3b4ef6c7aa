package migration_1

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type OldPrepareJob struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	InputPath    string    `gorm:"not null"`
	OutputPath   string    `gorm:"not null"`
	Status       string    `gorm:"size:20;not null"`
	CreationTime time.Time
	LoadedRows   int `gorm:"default:0"`
}

func (OldPrepareJob) TableName() string {
	return "prepare_jobs"
}

type NewPrepareJob struct {
	Id               uuid.UUID `gorm:"type:uuid;primaryKey"`
	LoadedRows       int
	DroppedEmptyRows int
	DroppedLabelRows int
}

func (NewPrepareJob) TableName() string {
	return "prepare_jobs"
}

func TestMigration(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&OldPrepareJob{}))

	jobId := uuid.New()
	require.NoError(t, db.Create(&OldPrepareJob{Id: jobId, InputPath: "in", OutputPath: "out", Status: "COMPLETED", CreationTime: time.Now(), LoadedRows: 7}).Error)

	require.NoError(t, Migration(db))

	var job NewPrepareJob
	require.NoError(t, db.First(&job, "id = ?", jobId).Error)
	assert.Equal(t, 7, job.LoadedRows)
	assert.Equal(t, 0, job.DroppedEmptyRows)
	assert.Equal(t, 0, job.DroppedLabelRows)

	require.NoError(t, Rollback(db))
	assert.False(t, db.Migrator().HasColumn(&PrepareJob{}, "dropped_empty_rows"))
}
