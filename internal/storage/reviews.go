package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"review-prep/internal/core/types"
	"review-prep/internal/core/utils"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

type ColumnType int

const (
	StringColumn ColumnType = iota
	IntColumn
)

type Column struct {
	Name string
	Type ColumnType
}

// ReviewColumns is the schema of the tab separated review exports.
var ReviewColumns = []Column{
	{Name: "marketplace", Type: StringColumn},
	{Name: "customer_id", Type: StringColumn},
	{Name: "review_id", Type: StringColumn},
	{Name: "product_id", Type: StringColumn},
	{Name: "product_parent", Type: StringColumn},
	{Name: "product_title", Type: StringColumn},
	{Name: "product_category", Type: StringColumn},
	{Name: "star_rating", Type: IntColumn},
	{Name: "helpful_votes", Type: IntColumn},
	{Name: "total_votes", Type: IntColumn},
	{Name: "vine", Type: StringColumn},
	{Name: "verified_purchase", Type: StringColumn},
	{Name: "review_headline", Type: StringColumn},
	{Name: "review_body", Type: StringColumn},
	{Name: "review_date", Type: StringColumn},
}

const idColumn = "review_id"

type ReviewReaderOptions struct {
	DataColumn  string
	LabelColumn string
}

// ReviewReader parses one tab separated file with a header row. Fields are
// split on every tab, there is no quote character.
type ReviewReader struct {
	source  string
	reader  *bufio.Reader
	opts    ReviewReaderOptions
	columns []Column
	line    int
}

func NewReviewReader(source string, r io.Reader, opts ReviewReaderOptions) (*ReviewReader, error) {
	if opts.DataColumn == "" || opts.LabelColumn == "" {
		return nil, fmt.Errorf("data column and label column must be specified")
	}

	reader := &ReviewReader{source: source, reader: bufio.NewReaderSize(r, 1<<20), opts: opts}

	header, err := reader.readLine()
	if errors.Is(err, io.EOF) {
		return nil, &types.SchemaMismatchError{Source: source, Line: 1, Reason: "missing header row"}
	}
	if err != nil {
		return nil, fmt.Errorf("error reading header of %s: %w", source, err)
	}

	if err := reader.parseHeader(header); err != nil {
		return nil, err
	}

	return reader, nil
}

func (r *ReviewReader) parseHeader(header string) error {
	names := strings.Split(header, "\t")

	byName := make(map[string]Column, len(ReviewColumns))
	for _, col := range ReviewColumns {
		byName[col.Name] = col
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		col, ok := byName[name]
		if !ok {
			return &types.SchemaMismatchError{Source: r.source, Line: r.line, Column: name, Reason: "unexpected column"}
		}
		if seen[name] {
			return &types.SchemaMismatchError{Source: r.source, Line: r.line, Column: name, Reason: "duplicate column"}
		}
		seen[name] = true
		r.columns = append(r.columns, col)
	}

	for _, col := range ReviewColumns {
		if !seen[col.Name] {
			return &types.SchemaMismatchError{Source: r.source, Line: r.line, Column: col.Name, Reason: "missing column"}
		}
	}

	for _, name := range []string{r.opts.DataColumn, r.opts.LabelColumn} {
		if !seen[name] {
			return &types.SchemaMismatchError{Source: r.source, Line: r.line, Column: name, Reason: "configured column not in schema"}
		}
	}

	return nil
}

func (r *ReviewReader) readLine() (string, error) {
	for {
		line, err := r.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		r.line++

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		return line, nil
	}
}

// Next returns the next row, or io.EOF once the input is exhausted.
func (r *ReviewReader) Next() (types.Row, error) {
	line, err := r.readLine()
	if err != nil {
		return types.Row{}, err
	}

	values := strings.Split(line, "\t")
	if len(values) != len(r.columns) {
		return types.Row{}, &types.SchemaMismatchError{
			Source: r.source,
			Line:   r.line,
			Reason: fmt.Sprintf("expected %d fields, found %d", len(r.columns), len(values)),
		}
	}

	row := types.Row{Fields: make(map[string]string, len(values))}
	for i, col := range r.columns {
		value := values[i]
		if col.Type == IntColumn && value != "" {
			if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
				return types.Row{}, &types.SchemaMismatchError{
					Source: r.source,
					Line:   r.line,
					Column: col.Name,
					Reason: fmt.Sprintf("value %q is not an integer", value),
				}
			}
		}

		switch col.Name {
		case r.opts.DataColumn:
			row.Text = value
		case r.opts.LabelColumn:
			if value != "" {
				label, err := strconv.Atoi(strings.TrimSpace(value))
				if err != nil {
					return types.Row{}, &types.SchemaMismatchError{
						Source: r.source,
						Line:   r.line,
						Column: col.Name,
						Reason: fmt.Sprintf("label %q is not an integer", value),
					}
				}
				row.Label = label
				row.HasLabel = true
			}
		}

		if col.Name == idColumn {
			row.ID = value
		}
		row.Fields[col.Name] = value
	}

	return row, nil
}

// ReadAll reads every remaining row.
func (r *ReviewReader) ReadAll() ([]types.Row, error) {
	var rows []types.Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func isReviewFile(name string) bool {
	return strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".tsv.gz")
}

// ReviewSource loads every review file at a location. Files are parsed in
// parallel and concatenated in name order.
type ReviewSource struct {
	provider Provider
	location Location
	opts     ReviewReaderOptions
	workers  int
}

func NewReviewSource(provider Provider, location Location, opts ReviewReaderOptions, workers int) *ReviewSource {
	return &ReviewSource{provider: provider, location: location, opts: opts, workers: max(workers, 1)}
}

func (s *ReviewSource) String() string {
	return s.location.String()
}

func (s *ReviewSource) listFiles(ctx context.Context) ([]string, error) {
	objects, err := s.provider.ListObjects(ctx, s.location.Bucket, s.location.Key)
	if err != nil {
		return nil, fmt.Errorf("error listing input %s: %w", s.location, err)
	}

	files := make([]string, 0, len(objects))
	for _, obj := range objects {
		if isReviewFile(obj.Name) {
			files = append(files, obj.Name)
		} else {
			slog.Debug("skipping non tsv input object", "object", obj.Name)
		}
	}
	slices.Sort(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no .tsv or .tsv.gz files found at %s", s.location)
	}

	return files, nil
}

func (s *ReviewSource) loadFile(ctx context.Context, key string) ([]types.Row, error) {
	stream, err := s.provider.GetObjectStream(ctx, s.location.Bucket, key)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", key, err)
	}
	defer stream.Close()

	var input io.Reader = stream
	if strings.HasSuffix(key, ".gz") {
		gz, err := gzip.NewReader(stream)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream %s: %w", key, err)
		}
		defer gz.Close()
		input = gz
	}

	reader, err := NewReviewReader(key, input, s.opts)
	if err != nil {
		return nil, err
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	slog.Info("loaded review file", "file", key, "rows", len(rows))

	return rows, nil
}

func (s *ReviewSource) LoadRows(ctx context.Context) ([]types.Row, error) {
	files, err := s.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	perFile, err := utils.MapInPool(func(key string) ([]types.Row, error) {
		return s.loadFile(ctx, key)
	}, files, s.workers)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range perFile {
		total += len(rows)
	}

	rows := make([]types.Row, 0, total)
	for _, fileRows := range perFile {
		rows = append(rows, fileRows...)
	}

	return rows, nil
}
