//go:build integration

package integrationtests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"review-prep/internal/api"
	"review-prep/internal/core"
	"review-prep/internal/database"
	"review-prep/internal/messaging"
	"review-prep/internal/storage"
	"review-prep/internal/tfrecord"
	apitypes "review-prep/pkg/api"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareJobWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)
	provider := setupS3Provider(t, ctx)
	require.NoError(t, provider.CreateBucket(ctx, bucketName))

	require.NoError(t, provider.PutObject(ctx, bucketName, "raw/part-0.tsv", strings.NewReader(
		reviewFile("a", map[int]int{1: 12, 2: 20, 3: 30, 4: 40, 5: 50}),
	)))
	require.NoError(t, provider.PutObject(ctx, bucketName, "raw/part-1.tsv", strings.NewReader(
		reviewFile("b", map[int]int{1: 8, 2: 10, 3: 10, 4: 10, 5: 10}),
	)))

	queue := messaging.NewInMemoryQueue()

	newS3 := func() (storage.Provider, error) { return provider, nil }
	worker := core.NewTaskProcessor(db, queue, queue, createTokenizer(t), newS3, t.TempDir(), 2, 2)
	go worker.Start()
	t.Cleanup(worker.Stop)

	service := api.NewBackendService(db, queue, defaultOptions(t))
	router := chi.NewRouter()
	service.AddRoutes(router)

	var created apitypes.CreateJobResponse
	require.NoError(t, httpRequest(router, "POST", "/jobs", apitypes.CreateJobRequest{
		InputPath:   fmt.Sprintf("s3://%s/raw", bucketName),
		OutputPath:  fmt.Sprintf("s3://%s/prepared", bucketName),
		WorkerId:    "algo-1",
		PartitionId: "0",
	}, &created))

	var job apitypes.Job
	require.Eventually(t, func() bool {
		require.NoError(t, httpRequest(router, "GET", "/jobs/"+created.JobId.String(), nil, &job))
		return job.Status == database.JobCompleted || job.Status == database.JobFailed
	}, time.Minute, 200*time.Millisecond)

	require.Equal(t, database.JobCompleted, job.Status, job.Errors)
	assert.Equal(t, 150, job.Rows.Loaded)
	assert.Equal(t, 150, job.Rows.Cleaned)
	assert.Equal(t, 100, job.Rows.Balanced)
	require.NotNil(t, job.StartTime)
	require.NotNil(t, job.CompletionTime)

	expected := map[string]int{"train": 90, "validation": 5, "test": 5}
	require.Len(t, job.Splits, 3)
	for _, split := range job.Splits {
		assert.Equal(t, expected[split.Split], split.Rows, split.Split)

		key := "prepared/bert/" + split.Split + "/part-algo-1-0.tfrecord"
		assert.Equal(t, "s3://"+bucketName+"/"+key, split.Path)

		total := 0
		for _, n := range split.LabelCounts {
			total += n
		}
		assert.Equal(t, split.Rows, total)

		local := filepath.Join(t.TempDir(), split.Split+".tfrecord")
		require.NoError(t, os.WriteFile(local, readObject(t, ctx, provider, bucketName, key), 0o644))

		features, err := tfrecord.ReadAll(local)
		require.NoError(t, err)
		assert.Len(t, features, split.Rows)
	}

	var listed []apitypes.Job
	require.NoError(t, httpRequest(router, "GET", "/jobs?status="+database.JobCompleted, nil, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.JobId, listed[0].Id)
}

func TestPrepareJobWorkflowFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)
	provider := setupS3Provider(t, ctx)
	require.NoError(t, provider.CreateBucket(ctx, bucketName))

	// No 5 star reviews.
	require.NoError(t, provider.PutObject(ctx, bucketName, "raw/part-0.tsv", strings.NewReader(
		reviewFile("a", map[int]int{1: 10, 2: 10, 3: 10, 4: 10}),
	)))

	queue := messaging.NewInMemoryQueue()

	newS3 := func() (storage.Provider, error) { return provider, nil }
	worker := core.NewTaskProcessor(db, queue, queue, createTokenizer(t), newS3, t.TempDir(), 2, 2)
	go worker.Start()
	t.Cleanup(worker.Stop)

	service := api.NewBackendService(db, queue, defaultOptions(t))
	router := chi.NewRouter()
	service.AddRoutes(router)

	var created apitypes.CreateJobResponse
	require.NoError(t, httpRequest(router, "POST", "/jobs", apitypes.CreateJobRequest{
		InputPath:  fmt.Sprintf("s3://%s/raw", bucketName),
		OutputPath: fmt.Sprintf("s3://%s/prepared", bucketName),
	}, &created))

	var job apitypes.Job
	require.Eventually(t, func() bool {
		require.NoError(t, httpRequest(router, "GET", "/jobs/"+created.JobId.String(), nil, &job))
		return job.Status == database.JobCompleted || job.Status == database.JobFailed
	}, time.Minute, 200*time.Millisecond)

	assert.Equal(t, database.JobFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "label 5 has no rows")
	assert.Empty(t, job.Splits)

	objects, err := provider.ListObjects(ctx, bucketName, "prepared/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}
