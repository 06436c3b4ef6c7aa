package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"review-prep/cmd"
	"review-prep/internal/config"
	"review-prep/internal/core"
	"review-prep/internal/tfrecord"
	"syscall"

	"github.com/schollz/progressbar/v3"
)

// writeProgress advances a bar over every record written across the splits.
// The writer reports every n records, the remainder of each split is added
// when the split completes.
type writeProgress struct {
	bar   *progressbar.ProgressBar
	every int
}

func (p *writeProgress) onRecord(index, total int) {
	if index > 0 {
		p.bar.Add(p.every) //nolint:errcheck
	}
}

func (p *writeProgress) onStage(event core.StageEvent) {
	switch event.Stage {
	case core.StageBalanced:
		p.bar.ChangeMax(event.Rows)
	case core.StageWritten:
		if event.Rows > 0 {
			p.bar.Add(event.Rows - p.every*((event.Rows-1)/p.every)) //nolint:errcheck
		}
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if err := cfg.ResolveHosts(); err != nil {
		log.Fatalf("error resolving hosts: %v", err)
	}

	slog.Info("starting prepare", "input", cfg.InputData, "output", cfg.OutputData, "current_host", cfg.CurrentHost, "hosts", cfg.Hosts)

	tk, err := cmd.CreateTokenizer(cfg.Tokenizer)
	if err != nil {
		log.Fatalf("error creating tokenizer: %v", err)
	}
	defer tk.Close()

	progress := &writeProgress{
		bar:   progressbar.Default(-1, "writing examples"),
		every: cfg.Pipeline.ProgressEvery,
	}

	pipeline, err := core.NewPipelineFromOptions(cfg.Pipeline, tk, cfg.EncodeWorkers, tfrecord.WithProgress(progress.onRecord))
	if err != nil {
		log.Fatalf("error creating pipeline: %v", err)
	}
	pipeline.AddObserver(progress.onStage)

	newS3 := cmd.S3ProviderFactory(cfg.S3)

	source, err := core.OpenSource(cfg.InputData, cfg.Pipeline, newS3, cfg.LoadWorkers)
	if err != nil {
		log.Fatalf("error opening input: %v", err)
	}

	stagingDir, err := os.MkdirTemp("", "review-prep-")
	if err != nil {
		log.Fatalf("error creating staging directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	sink, cleanup, err := core.OpenSink(ctx, cfg.OutputData, cfg.CurrentHost, cfg.PartitionId(), filepath.Join(stagingDir, "output"), newS3)
	if err != nil {
		log.Fatalf("error opening output: %v", err)
	}

	result, err := pipeline.Plan(source).Run(ctx, sink)
	stop()
	cleanup()
	os.Remove(stagingDir) //nolint:errcheck
	if err != nil {
		log.Fatalf("error running pipeline: %v", err)
	}

	progress.bar.Finish() //nolint:errcheck

	for _, output := range result.Outputs {
		slog.Info("split written", "split", output.Split, "rows", output.Rows, "path", output.Path, "labels", output.LabelCounts)
	}
	slog.Info("prepare complete", "loaded", result.Stats.Loaded, "cleaned", result.Stats.Cleaned, "balanced", result.Stats.Balanced)
}
