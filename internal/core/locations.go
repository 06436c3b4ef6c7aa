package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"review-prep/internal/config"
	"review-prep/internal/storage"
)

// OpenSource resolves input (a local file or directory, or an s3:// prefix)
// into a source of review rows.
func OpenSource(input string, opts config.PipelineOptions, newS3 storage.NewProviderFunc, loadWorkers int) (*storage.ReviewSource, error) {
	loc, err := storage.ParseLocation(input)
	if err != nil {
		return nil, fmt.Errorf("invalid input location: %w", err)
	}

	provider, err := storage.ProviderFor(loc, newS3)
	if err != nil {
		return nil, fmt.Errorf("error creating input storage: %w", err)
	}

	return storage.NewReviewSource(provider, loc, storage.ReviewReaderOptions{
		DataColumn:  opts.DataColumn,
		LabelColumn: opts.LabelColumn,
	}, loadWorkers), nil
}

// OpenSink resolves output into a Sink. Local outputs are written in place.
// S3 outputs are written under stagingDir and uploaded to the output bucket,
// which is created if it does not exist. The returned cleanup removes
// stagingDir and must always be called.
func OpenSink(ctx context.Context, output, workerId, partitionId, stagingDir string, newS3 storage.NewProviderFunc) (Sink, func(), error) {
	loc, err := storage.ParseLocation(output)
	if err != nil {
		return Sink{}, nil, fmt.Errorf("invalid output location: %w", err)
	}

	sink := Sink{WorkerID: workerId, PartitionID: partitionId}
	if sink.WorkerID == "" {
		sink.WorkerID = config.UnknownHost
	}
	if sink.PartitionID == "" {
		sink.PartitionID = "0"
	}

	if !loc.S3 {
		sink.Dir = loc.Key
		return sink, func() {}, nil
	}

	provider, err := storage.ProviderFor(loc, newS3)
	if err != nil {
		return Sink{}, nil, fmt.Errorf("error creating output storage: %w", err)
	}

	// Without create permission on the bucket the upload reports the real error.
	if err := provider.CreateBucket(ctx, loc.Bucket); err != nil {
		slog.Warn("unable to create output bucket", "bucket", loc.Bucket, "error", err)
	}

	sink.Dir = stagingDir
	sink.Remote = &RemoteOutput{Provider: provider, Bucket: loc.Bucket, Prefix: loc.Key}

	cleanup := func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			slog.Warn("error removing staging directory", "dir", stagingDir, "error", err)
		}
	}
	return sink, cleanup, nil
}
