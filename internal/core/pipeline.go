package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"review-prep/internal/core/types"
	"review-prep/internal/core/utils"
	"review-prep/internal/storage"
	"review-prep/internal/tfrecord"
	"strings"
	"sync"
	"time"
)

// RowSource supplies the raw rows of a run.
type RowSource interface {
	LoadRows(ctx context.Context) ([]types.Row, error)
}

type Stage string

const (
	StageLoaded   Stage = "loaded"
	StageCleaned  Stage = "cleaned"
	StageBalanced Stage = "balanced"
	StageSplit    Stage = "split"
	StageEncoded  Stage = "encoded"
	StageWritten  Stage = "written"
)

// StageEvent is emitted when a stage completes. Split is only set for the
// per split stages.
type StageEvent struct {
	Stage    Stage
	Split    types.Split
	Rows     int
	Duration time.Duration
}

type StageObserver func(StageEvent)

// Sink names the output files of one worker. Files are written to
// {Dir}/bert/{split}/part-{WorkerID}-{PartitionID}.tfrecord. If Remote is set
// each file is uploaded after it is closed.
type Sink struct {
	Dir         string
	WorkerID    string
	PartitionID string
	Remote      *RemoteOutput
}

type RemoteOutput struct {
	Provider storage.Provider
	Bucket   string
	Prefix   string
}

func (s Sink) filename() string {
	return fmt.Sprintf("part-%s-%s.tfrecord", s.WorkerID, s.PartitionID)
}

func (s Sink) Path(split types.Split) string {
	return filepath.Join(s.Dir, "bert", string(split), s.filename())
}

func (s Sink) RemoteKey(split types.Split) string {
	if s.Remote == nil {
		return ""
	}
	return strings.TrimPrefix(path.Join(s.Remote.Prefix, "bert", string(split), s.filename()), "/")
}

type Stats struct {
	Loaded       int
	Cleaned      int
	DroppedEmpty int
	DroppedLabel int
	Balanced     int
	Splits       map[types.Split]int
}

type SplitOutput struct {
	Split       types.Split
	Rows        int
	Path        string
	LabelCounts map[int]int
}

type Result struct {
	Stats   Stats
	Outputs []SplitOutput
}

type PipelineParams struct {
	Encoder  *Encoder
	Balancer *Balancer
	Splitter *Splitter
	Writer   *tfrecord.RecordWriter
	Labels   types.LabelIndex

	// StrictLabels fails the run on a row with a missing or undeclared label.
	// Otherwise such rows are dropped during cleaning.
	StrictLabels  bool
	EncodeWorkers int
	Observers     []StageObserver
}

type Pipeline struct {
	params PipelineParams
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	if params.Encoder == nil || params.Balancer == nil || params.Splitter == nil || params.Writer == nil {
		return nil, fmt.Errorf("pipeline requires an encoder, balancer, splitter and writer")
	}
	if params.Labels.Len() == 0 {
		return nil, fmt.Errorf("pipeline requires a non-empty label index")
	}
	params.EncodeWorkers = max(params.EncodeWorkers, 1)
	return &Pipeline{params: params}, nil
}

// AddObserver registers an observer for every later run. It must not be
// called while a plan is running.
func (p *Pipeline) AddObserver(observer StageObserver) {
	p.params.Observers = append(p.params.Observers, observer)
}

func (p *Pipeline) emit(event StageEvent) {
	observeStage(event)
	for _, observer := range p.params.Observers {
		observer(event)
	}
}

// Plan describes a run over source. Nothing is read until Materialize or Run
// is called; the load, clean, balance and split stages then execute once and
// are shared by every split.
func (p *Pipeline) Plan(source RowSource) *Plan {
	return &Plan{pipeline: p, source: source}
}

type Plan struct {
	pipeline *Pipeline
	source   RowSource

	mu       sync.Mutex
	prepared bool
	split    SplitResult
	stats    Stats
	err      error
}

// prepare runs the shared stages at most once per outcome. A run stopped by
// its context is not kept, so a later call with a live context starts over.
func (p *Plan) prepare(ctx context.Context) (SplitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prepared {
		return p.split, p.err
	}

	split, stats, err := p.pipeline.prepare(ctx, p.source)
	p.stats = stats
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return SplitResult{}, err
	}
	p.prepared, p.split, p.err = true, split, err
	return p.split, p.err
}

// Stats returns the row counts of the shared stages. Valid after the first
// successful Materialize or Run.
func (p *Plan) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) prepare(ctx context.Context, source RowSource) (SplitResult, Stats, error) {
	var stats Stats

	start := time.Now()
	rows, err := source.LoadRows(ctx)
	if err != nil {
		return SplitResult{}, stats, fmt.Errorf("error loading rows: %w", err)
	}
	stats.Loaded = len(rows)
	slog.Info("loaded rows", "rows", len(rows))
	p.emit(StageEvent{Stage: StageLoaded, Rows: len(rows), Duration: time.Since(start)})

	if err := ctx.Err(); err != nil {
		return SplitResult{}, stats, err
	}

	start = time.Now()
	rows, droppedEmpty, droppedLabel, err := p.clean(rows)
	if err != nil {
		return SplitResult{}, stats, err
	}
	stats.Cleaned, stats.DroppedEmpty, stats.DroppedLabel = len(rows), droppedEmpty, droppedLabel
	slog.Info("cleaned rows", "before", stats.Loaded, "after", len(rows), "dropped_empty_text", droppedEmpty, "dropped_unknown_label", droppedLabel)
	p.emit(StageEvent{Stage: StageCleaned, Rows: len(rows), Duration: time.Since(start)})

	start = time.Now()
	rows, err = p.params.Balancer.Balance(rows)
	if err != nil {
		return SplitResult{}, stats, fmt.Errorf("error balancing rows: %w", err)
	}
	stats.Balanced = len(rows)
	slog.Info("balanced rows", "rows", len(rows), "per_label", len(rows)/p.params.Labels.Len())
	p.emit(StageEvent{Stage: StageBalanced, Rows: len(rows), Duration: time.Since(start)})

	start = time.Now()
	result, err := p.params.Splitter.Split(rows)
	if err != nil {
		return SplitResult{}, stats, fmt.Errorf("error splitting rows: %w", err)
	}
	stats.Splits = make(map[types.Split]int, len(types.AllSplits))
	for _, split := range types.AllSplits {
		stats.Splits[split] = len(result.Get(split))
	}
	slog.Info("split rows", "train", len(result.Train), "validation", len(result.Validation), "test", len(result.Test))
	p.emit(StageEvent{Stage: StageSplit, Rows: len(rows), Duration: time.Since(start)})

	return result, stats, nil
}

// clean drops rows with blank text. Rows with a missing or undeclared label
// are an error in strict mode and dropped otherwise.
func (p *Pipeline) clean(rows []types.Row) ([]types.Row, int, int, error) {
	cleaned := make([]types.Row, 0, len(rows))
	droppedEmpty, droppedLabel := 0, 0
	for _, row := range rows {
		if strings.TrimSpace(row.Text) == "" {
			droppedEmpty++
			continue
		}
		if !row.HasLabel || !p.params.Labels.Contains(row.Label) {
			if p.params.StrictLabels {
				return nil, 0, 0, &types.UnknownLabelError{Label: row.Label, Missing: !row.HasLabel, RowID: row.ID}
			}
			droppedLabel++
			continue
		}
		cleaned = append(cleaned, row)
	}
	return cleaned, droppedEmpty, droppedLabel, nil
}

// Materialize encodes and writes one split to sink, running the shared stages
// first if no other split has.
func (p *Plan) Materialize(ctx context.Context, split types.Split, sink Sink) (SplitOutput, error) {
	result, err := p.prepare(ctx)
	if err != nil {
		return SplitOutput{}, err
	}
	return p.pipeline.materialize(ctx, split, result.Get(split), sink)
}

func (p *Pipeline) materialize(ctx context.Context, split types.Split, rows []types.Row, sink Sink) (SplitOutput, error) {
	if err := ctx.Err(); err != nil {
		return SplitOutput{}, err
	}

	start := time.Now()
	features, err := utils.MapInPool(func(row types.Row) (types.EncodedFeature, error) {
		if err := ctx.Err(); err != nil {
			return types.EncodedFeature{}, err
		}
		return p.params.Encoder.Encode(row)
	}, rows, p.params.EncodeWorkers)
	if err != nil {
		return SplitOutput{}, fmt.Errorf("error encoding %s split: %w", split, err)
	}
	slog.Info("encoded split", "split", split, "rows", len(features))
	p.emit(StageEvent{Stage: StageEncoded, Split: split, Rows: len(features), Duration: time.Since(start)})

	start = time.Now()
	localPath := sink.Path(split)
	if err := p.params.Writer.WriteAll(features, localPath); err != nil {
		return SplitOutput{}, fmt.Errorf("error writing %s split: %w", split, err)
	}

	output := SplitOutput{Split: split, Rows: len(features), Path: localPath, LabelCounts: types.CountLabels(rows)}

	if sink.Remote != nil {
		key := sink.RemoteKey(split)
		if err := upload(ctx, sink.Remote, localPath, key); err != nil {
			return SplitOutput{}, err
		}
		output.Path = storage.Location{S3: true, Bucket: sink.Remote.Bucket, Key: key}.String()
	}

	slog.Info("wrote split", "split", split, "rows", len(features), "path", output.Path)
	p.emit(StageEvent{Stage: StageWritten, Split: split, Rows: len(features), Duration: time.Since(start)})

	return output, nil
}

func upload(ctx context.Context, remote *RemoteOutput, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return &types.WriteError{Path: localPath, Err: err}
	}
	defer file.Close()

	if err := remote.Provider.PutObject(ctx, remote.Bucket, key, file); err != nil {
		return &types.WriteError{Path: fmt.Sprintf("%s/%s", remote.Bucket, key), Err: err}
	}
	return nil
}

// Run materializes every split concurrently. A failed split does not remove
// the files of the splits that completed.
func (p *Plan) Run(ctx context.Context, sink Sink) (Result, error) {
	_, err := p.prepare(ctx)
	stats := p.Stats()
	if err != nil {
		return Result{Stats: stats}, err
	}

	outputs := make([]SplitOutput, len(types.AllSplits))
	errs := make([]error, len(types.AllSplits))

	wg := sync.WaitGroup{}
	for i, split := range types.AllSplits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outputs[i], errs[i] = p.Materialize(ctx, split, sink)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return Result{Stats: stats}, err
	}

	slog.Info("pipeline complete", "loaded", stats.Loaded, "cleaned", stats.Cleaned, "balanced", stats.Balanced)

	return Result{Stats: stats, Outputs: outputs}, nil
}
