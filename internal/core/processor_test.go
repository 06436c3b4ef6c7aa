package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"review-prep/internal/config"
	"review-prep/internal/database"
	"review-prep/internal/messaging"
	"review-prep/internal/storage"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingTask struct {
	queue   string
	payload []byte
	result  string
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { t.result = "ack"; return nil }
func (t *recordingTask) Nack() error     { t.result = "nack"; return nil }
func (t *recordingTask) Reject() error   { t.result = "reject"; return nil }

func testOptions() config.PipelineOptions {
	return config.PipelineOptions{
		MaxSeqLength:    16,
		DataColumn:      "review_body",
		LabelColumn:     "star_rating",
		LabelValues:     []int{1, 2, 3, 4, 5},
		TrainSplit:      0.9,
		ValidationSplit: 0.05,
		TestSplit:       0.05,
		BalanceSeed:     DefaultSeed,
		SplitSeed:       DefaultSeed,
		StrictLabels:    true,
		ProgressEvery:   1000,
	}
}

func writeReviewTSV(t *testing.T, dir string, counts map[int]int) {
	t.Helper()
	header := make([]string, 0, len(storage.ReviewColumns))
	for _, col := range storage.ReviewColumns {
		header = append(header, col.Name)
	}

	lines := []string{strings.Join(header, "\t")}
	for _, row := range makeRows(counts) {
		lines = append(lines, strings.Join([]string{
			"US", "1", row.ID, "P1", "2", "title", "Books",
			fmt.Sprint(row.Label), "0", "0", "N", "Y", "headline", row.Text, "2015-08-31",
		}, "\t"))
	}
	require.NoError(t, os.MkdirAll(dir, os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviews.tsv"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func setupProcessor(t *testing.T) (*TaskProcessor, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	queue := messaging.NewInMemoryQueue()
	proc := NewTaskProcessor(db, queue, queue, wordLengthTokenizer{}, nil, t.TempDir(), 2, 2)
	return proc, db
}

func createPrepareJob(t *testing.T, db *gorm.DB, input, output string) uuid.UUID {
	opts, err := testOptions().JSON()
	require.NoError(t, err)

	job := database.PrepareJob{
		Id:           uuid.New(),
		InputPath:    input,
		OutputPath:   output,
		WorkerId:     "algo-1",
		PartitionId:  "0",
		Config:       datatypes.JSON(opts),
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&job).Error)
	return job.Id
}

func prepareTask(t *testing.T, jobId uuid.UUID) *recordingTask {
	payload, err := json.Marshal(messaging.PrepareTaskPayload{JobId: jobId})
	require.NoError(t, err)
	return &recordingTask{queue: messaging.PrepareQueue, payload: payload}
}

func TestProcessPrepareTask(t *testing.T) {
	proc, db := setupProcessor(t)

	input := filepath.Join(t.TempDir(), "input")
	output := filepath.Join(t.TempDir(), "output")
	writeReviewTSV(t, input, map[int]int{1: 20, 2: 35, 3: 20, 4: 28, 5: 40})

	jobId := createPrepareJob(t, db, input, output)
	task := prepareTask(t, jobId)
	proc.ProcessTask(task)
	assert.Equal(t, "ack", task.result)

	job, err := database.GetJob(context.Background(), db, jobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, job.Status)
	assert.Equal(t, 143, job.LoadedRows)
	assert.Equal(t, 143, job.CleanedRows)
	assert.Equal(t, 100, job.BalancedRows)
	assert.Empty(t, job.Errors)

	require.Len(t, job.Splits, 3)
	rows := map[string]int{}
	for _, split := range job.Splits {
		rows[split.Split] = split.Rows
		assert.Equal(t, filepath.Join(output, "bert", split.Split, "part-algo-1-0.tfrecord"), split.Path)
		assert.FileExists(t, split.Path)

		var counts map[string]int
		require.NoError(t, json.Unmarshal(split.LabelCounts, &counts))
		assert.Len(t, counts, 5)
	}
	assert.Equal(t, map[string]int{"train": 90, "validation": 5, "test": 5}, rows)

	// Completed jobs are not run again.
	task = prepareTask(t, jobId)
	proc.ProcessTask(task)
	assert.Equal(t, "ack", task.result)
}

func TestProcessJobsSharingOutput(t *testing.T) {
	proc, db := setupProcessor(t)

	input := filepath.Join(t.TempDir(), "input")
	output := filepath.Join(t.TempDir(), "output")
	writeReviewTSV(t, input, map[int]int{1: 20, 2: 20, 3: 20, 4: 20, 5: 20})

	paths := map[string]uuid.UUID{}
	for range 2 {
		jobId := createPrepareJob(t, db, input, output)
		require.NoError(t, db.Model(&database.PrepareJob{}).Where("id = ?", jobId).
			Updates(map[string]any{"worker_id": "", "partition_id": ""}).Error)

		task := prepareTask(t, jobId)
		proc.ProcessTask(task)
		require.Equal(t, "ack", task.result)

		job, err := database.GetJob(context.Background(), db, jobId)
		require.NoError(t, err)
		require.Equal(t, database.JobCompleted, job.Status)

		for _, split := range job.Splits {
			assert.Equal(t, filepath.Join(output, "bert", split.Split, "part-"+jobId.String()+"-0.tfrecord"), split.Path)
			_, dup := paths[split.Path]
			assert.False(t, dup, "%s written by two jobs", split.Path)
			paths[split.Path] = jobId
		}
	}

	assert.Len(t, paths, 6)
	for path := range paths {
		assert.FileExists(t, path)
	}
}

func TestProcessPrepareTaskFailure(t *testing.T) {
	proc, db := setupProcessor(t)

	input := filepath.Join(t.TempDir(), "input")
	writeReviewTSV(t, input, map[int]int{1: 20, 2: 35, 3: 20, 4: 28})

	jobId := createPrepareJob(t, db, input, t.TempDir())
	task := prepareTask(t, jobId)
	proc.ProcessTask(task)
	assert.Equal(t, "nack", task.result)

	job, err := database.GetJob(context.Background(), db, jobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, 103, job.LoadedRows)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0].Error, "label 5 has no rows")
	assert.Empty(t, job.Splits)
}

func TestProcessInvalidTasks(t *testing.T) {
	proc, _ := setupProcessor(t)

	task := &recordingTask{queue: "other_queue", payload: []byte("{}")}
	proc.ProcessTask(task)
	assert.Equal(t, "reject", task.result)

	task = &recordingTask{queue: messaging.PrepareQueue, payload: []byte("not json")}
	proc.ProcessTask(task)
	assert.Equal(t, "reject", task.result)

	task = prepareTask(t, uuid.New())
	proc.ProcessTask(task)
	assert.Equal(t, "nack", task.result)
}

func TestProcessorS3OutputRequiresProvider(t *testing.T) {
	proc, db := setupProcessor(t)

	input := filepath.Join(t.TempDir(), "input")
	writeReviewTSV(t, input, map[int]int{1: 5, 2: 5, 3: 5, 4: 5, 5: 5})

	jobId := createPrepareJob(t, db, input, "s3://prepared/reviews")
	task := prepareTask(t, jobId)
	proc.ProcessTask(task)
	assert.Equal(t, "nack", task.result)

	job, err := database.GetJob(context.Background(), db, jobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, job.Status)
}
