package core

import (
	"context"
	"os"
	"path/filepath"
	"review-prep/internal/core/types"
	"review-prep/internal/storage"
	"review-prep/internal/tfrecord"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, strict bool, observers ...StageObserver) *Pipeline {
	t.Helper()
	labels := starLabels(t)

	encoder, err := NewEncoder(wordLengthTokenizer{}, labels, 16)
	require.NoError(t, err)
	splitter, err := NewSplitter(labels, types.DefaultSplitRatios, DefaultSeed)
	require.NoError(t, err)

	pipeline, err := NewPipeline(PipelineParams{
		Encoder:       encoder,
		Balancer:      NewBalancer(labels, DefaultSeed),
		Splitter:      splitter,
		Writer:        tfrecord.NewRecordWriter(tfrecord.WithProgress(nil)),
		Labels:        labels,
		StrictLabels:  strict,
		EncodeWorkers: 4,
		Observers:     observers,
	})
	require.NoError(t, err)
	return pipeline
}

func TestPipelineRun(t *testing.T) {
	rows := makeRows(map[int]int{1: 200, 2: 400, 3: 250, 4: 300, 5: 200})
	rows = append(rows,
		types.Row{ID: "empty", Text: "", Label: 1, HasLabel: true},
		types.Row{ID: "blank", Text: "  \t ", Label: 2, HasLabel: true},
	)

	var mu sync.Mutex
	var events []StageEvent
	pipeline := newTestPipeline(t, true, func(e StageEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	source := &sliceSource{rows: rows}
	sink := Sink{Dir: t.TempDir(), WorkerID: "algo-1", PartitionID: "0"}

	result, err := pipeline.Plan(source).Run(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, 1, source.loads)
	assert.Equal(t, len(rows), result.Stats.Loaded)
	assert.Equal(t, len(rows)-2, result.Stats.Cleaned)
	assert.Equal(t, 2, result.Stats.DroppedEmpty)
	assert.Equal(t, 1000, result.Stats.Balanced)
	assert.Equal(t, map[types.Split]int{types.TrainSplit: 900, types.ValidationSplit: 50, types.TestSplit: 50}, result.Stats.Splits)

	require.Len(t, result.Outputs, 3)
	for _, output := range result.Outputs {
		assert.Equal(t, filepath.Join(sink.Dir, "bert", string(output.Split), "part-algo-1-0.tfrecord"), output.Path)

		features, err := tfrecord.ReadAll(output.Path)
		require.NoError(t, err)
		assert.Len(t, features, output.Rows)
		assert.Equal(t, result.Stats.Splits[output.Split], output.Rows)

		labelIds := make(map[int]int)
		for _, feature := range features {
			assert.Len(t, feature.InputIDs, 16)
			labelIds[int(feature.LabelID)+1]++
		}
		assert.Equal(t, output.LabelCounts, labelIds)
	}

	stages := make(map[Stage]int)
	for _, e := range events {
		stages[e.Stage]++
	}
	assert.Equal(t, map[Stage]int{StageLoaded: 1, StageCleaned: 1, StageBalanced: 1, StageSplit: 1, StageEncoded: 3, StageWritten: 3}, stages)
}

func TestPipelineIdempotent(t *testing.T) {
	rows := makeRows(map[int]int{1: 40, 2: 60, 3: 45, 4: 50, 5: 70})

	read := func() map[types.Split][]byte {
		sink := Sink{Dir: t.TempDir(), WorkerID: "host", PartitionID: "p"}
		_, err := newTestPipeline(t, true).Plan(&sliceSource{rows: rows}).Run(context.Background(), sink)
		require.NoError(t, err)

		files := make(map[types.Split][]byte)
		for _, split := range types.AllSplits {
			data, err := os.ReadFile(sink.Path(split))
			require.NoError(t, err)
			files[split] = data
		}
		return files
	}

	assert.Equal(t, read(), read())
}

func TestPipelineMaterializeSharesStages(t *testing.T) {
	source := &sliceSource{rows: makeRows(map[int]int{1: 20, 2: 20, 3: 20, 4: 20, 5: 20})}
	plan := newTestPipeline(t, true).Plan(source)
	sink := Sink{Dir: t.TempDir(), WorkerID: "w", PartitionID: "1"}

	assert.Equal(t, 0, source.loads)

	test, err := plan.Materialize(context.Background(), types.TestSplit, sink)
	require.NoError(t, err)
	assert.Equal(t, 5, test.Rows)

	_, err = os.Stat(sink.Path(types.TrainSplit))
	assert.True(t, os.IsNotExist(err))

	train, err := plan.Materialize(context.Background(), types.TrainSplit, sink)
	require.NoError(t, err)
	assert.Equal(t, 90, train.Rows)
	assert.Equal(t, 1, source.loads)
	assert.Equal(t, 100, plan.Stats().Balanced)
}

func TestPipelineLabelModes(t *testing.T) {
	rows := append(makeRows(map[int]int{1: 10, 2: 10, 3: 10, 4: 10, 5: 10}),
		types.Row{ID: "six", Text: "off the scale", Label: 6, HasLabel: true},
		types.Row{ID: "none", Text: "no rating"},
	)

	_, err := newTestPipeline(t, true).Plan(&sliceSource{rows: rows}).Run(context.Background(), Sink{Dir: t.TempDir()})
	var labelErr *types.UnknownLabelError
	require.ErrorAs(t, err, &labelErr)
	assert.Equal(t, "six", labelErr.RowID)

	result, err := newTestPipeline(t, false).Plan(&sliceSource{rows: rows}).Run(context.Background(), Sink{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.DroppedLabel)
	assert.Equal(t, 50, result.Stats.Balanced)
}

func TestPipelineEmptyMinorityClass(t *testing.T) {
	dir := t.TempDir()
	source := &sliceSource{rows: makeRows(map[int]int{1: 10, 2: 10, 3: 10, 4: 10})}

	_, err := newTestPipeline(t, true).Plan(source).Run(context.Background(), Sink{Dir: dir})
	var emptyErr *types.EmptyMinorityClassError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, 5, emptyErr.Label)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipelineWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "bert")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	source := &sliceSource{rows: makeRows(map[int]int{1: 10, 2: 10, 3: 10, 4: 10, 5: 10})}
	_, err := newTestPipeline(t, true).Plan(source).Run(context.Background(), Sink{Dir: dir})

	var writeErr *types.WriteError
	require.ErrorAs(t, err, &writeErr)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &sliceSource{rows: makeRows(map[int]int{1: 10, 2: 10, 3: 10, 4: 10, 5: 10})}
	_, err := newTestPipeline(t, true).Plan(source).Run(ctx, Sink{Dir: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineFromReviewFiles(t *testing.T) {
	inputDir := t.TempDir()

	header := make([]string, 0, len(storage.ReviewColumns))
	for _, col := range storage.ReviewColumns {
		header = append(header, col.Name)
	}

	var lines []string
	lines = append(lines, strings.Join(header, "\t"))
	for _, row := range makeRows(map[int]int{1: 20, 2: 30, 3: 20, 4: 25, 5: 40}) {
		lines = append(lines, strings.Join([]string{
			"US", "1", row.ID, "P1", "2", "title", "Books",
			string(rune('0' + row.Label)), "0", "0", "N", "Y", "headline", row.Text, "2015-08-31",
		}, "\t"))
	}
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "reviews.tsv"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	loc, err := storage.ParseLocation(inputDir)
	require.NoError(t, err)
	provider, err := storage.ProviderFor(loc, nil)
	require.NoError(t, err)
	source := storage.NewReviewSource(provider, loc, storage.ReviewReaderOptions{DataColumn: "review_body", LabelColumn: "star_rating"}, 2)

	outputDir := t.TempDir()
	remoteRoot := t.TempDir()
	remote, err := storage.NewLocalProvider(remoteRoot)
	require.NoError(t, err)

	sink := Sink{
		Dir:         outputDir,
		WorkerID:    "algo-1",
		PartitionID: "reviews.tsv",
		Remote:      &RemoteOutput{Provider: remote, Bucket: "out", Prefix: "prepared"},
	}

	result, err := newTestPipeline(t, true).Plan(source).Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Stats.Balanced)

	for _, output := range result.Outputs {
		key := "prepared/bert/" + string(output.Split) + "/part-algo-1-reviews.tsv.tfrecord"
		assert.Equal(t, "s3://out/"+key, output.Path)

		uploaded, err := os.ReadFile(filepath.Join(remoteRoot, "out", key))
		require.NoError(t, err)
		local, err := os.ReadFile(sink.Path(output.Split))
		require.NoError(t, err)
		assert.Equal(t, local, uploaded)
	}
}

func TestPlanRetriesAfterCancel(t *testing.T) {
	source := &sliceSource{rows: makeRows(map[int]int{1: 10, 2: 10, 3: 10, 4: 10, 5: 10})}
	plan := newTestPipeline(t, true).Plan(source)
	sink := Sink{Dir: t.TempDir()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := plan.Materialize(ctx, types.TestSplit, sink)
	require.ErrorIs(t, err, context.Canceled)

	result, err := plan.Run(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 50, result.Stats.Balanced)
	assert.Equal(t, 2, source.loads)

	_, err = plan.Materialize(context.Background(), types.TestSplit, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, source.loads)
}

func TestPlanKeepsStageErrors(t *testing.T) {
	source := &sliceSource{rows: makeRows(map[int]int{1: 10, 2: 10, 3: 10, 4: 10})}
	plan := newTestPipeline(t, true).Plan(source)

	for range 2 {
		_, err := plan.Run(context.Background(), Sink{Dir: t.TempDir()})
		var emptyErr *types.EmptyMinorityClassError
		require.ErrorAs(t, err, &emptyErr)
	}
	assert.Equal(t, 1, source.loads)
}
