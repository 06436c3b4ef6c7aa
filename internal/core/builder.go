package core

import (
	"fmt"
	"review-prep/internal/config"
	"review-prep/internal/core/tokenizer"
	"review-prep/internal/tfrecord"
)

// NewPipelineFromOptions wires the stages of a pipeline from validated
// options. Extra writer options are applied after the progress cadence.
func NewPipelineFromOptions(opts config.PipelineOptions, tk tokenizer.Tokenizer, encodeWorkers int, writerOpts ...tfrecord.Option) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	labels, err := opts.Labels()
	if err != nil {
		return nil, err
	}

	encoder, err := NewEncoder(tk, labels, opts.MaxSeqLength)
	if err != nil {
		return nil, fmt.Errorf("error creating encoder: %w", err)
	}

	splitter, err := NewSplitter(labels, opts.SplitRatios(), opts.SplitSeed)
	if err != nil {
		return nil, err
	}

	writer := tfrecord.NewRecordWriter(append([]tfrecord.Option{tfrecord.WithProgressEvery(opts.ProgressEvery)}, writerOpts...)...)

	return NewPipeline(PipelineParams{
		Encoder:       encoder,
		Balancer:      NewBalancer(labels, opts.BalanceSeed),
		Splitter:      splitter,
		Writer:        writer,
		Labels:        labels,
		StrictLabels:  opts.StrictLabels,
		EncodeWorkers: encodeWorkers,
	})
}
