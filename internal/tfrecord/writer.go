package tfrecord

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"review-prep/internal/core/types"
)

const DefaultProgressEvery = 1000

// ProgressFunc is called with the zero based index of the record about to be
// written and the total number of records.
type ProgressFunc func(index, total int)

type RecordWriter struct {
	progressEvery int
	progress      ProgressFunc
}

type Option func(*RecordWriter)

func WithProgressEvery(n int) Option {
	return func(w *RecordWriter) {
		if n > 0 {
			w.progressEvery = n
		}
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(w *RecordWriter) {
		w.progress = fn
	}
}

func NewRecordWriter(opts ...Option) *RecordWriter {
	w := &RecordWriter{
		progressEvery: DefaultProgressEvery,
		progress: func(index, total int) {
			slog.Info("writing example", "index", index, "total", total)
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteAll writes every feature as one record to path, in order. The file is
// always closed before returning. A failed write leaves the partial file in
// place.
func (w *RecordWriter) WriteAll(features []types.EncodedFeature, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return &types.WriteError{Path: path, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &types.WriteError{Path: path, Err: err}
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = &types.WriteError{Path: path, Err: closeErr}
		}
	}()

	buf := bufio.NewWriter(file)
	total := len(features)
	for i, feature := range features {
		if w.progress != nil && i%w.progressEvery == 0 {
			w.progress(i, total)
		}

		if err := writeRecord(buf, EncodeExample(feature)); err != nil {
			return &types.WriteError{Path: path, Err: fmt.Errorf("record %d: %w", i, err)}
		}
	}

	if err := buf.Flush(); err != nil {
		return &types.WriteError{Path: path, Err: err}
	}

	return nil
}

// ReadAll decodes every record of a file written by WriteAll.
func ReadAll(path string) ([]types.EncodedFeature, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer file.Close()

	var features []types.EncodedFeature
	reader := NewReader(file)
	for {
		payload, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return features, nil
			}
			return nil, fmt.Errorf("error reading record %d of %s: %w", len(features), path, err)
		}

		feature, err := DecodeFeature(payload)
		if err != nil {
			return nil, fmt.Errorf("error decoding record %d of %s: %w", len(features), path, err)
		}
		features = append(features, feature)
	}
}
