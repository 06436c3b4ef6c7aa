package core

import (
	"context"
	"fmt"
	"review-prep/internal/core/tokenizer"
	"review-prep/internal/core/types"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testCLS = 101
	testSEP = 102
)

// wordLengthTokenizer maps every whitespace separated word to 10 + its length.
type wordLengthTokenizer struct{}

func (wordLengthTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

func (t wordLengthTokenizer) EncodeWithPadding(text string, maxLength int) (tokenizer.Encoding, error) {
	ids := []int64{testCLS}
	for _, word := range t.Tokenize(text) {
		ids = append(ids, int64(10+len(word)))
	}
	ids = append(ids, testSEP)
	return tokenizer.TruncateAndPad(ids, 1, maxLength, 0), nil
}

func (wordLengthTokenizer) Close() {}

type sliceSource struct {
	rows  []types.Row
	loads int
}

func (s *sliceSource) LoadRows(ctx context.Context) ([]types.Row, error) {
	s.loads++
	return s.rows, nil
}

func starLabels(t *testing.T) types.LabelIndex {
	t.Helper()
	labels, err := types.NewLabelIndex([]int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	return labels
}

// makeRows returns counts[label] rows per label with unique ids.
func makeRows(counts map[int]int) []types.Row {
	var rows []types.Row
	for label := 1; label <= 5; label++ {
		for i := 0; i < counts[label]; i++ {
			rows = append(rows, types.Row{
				ID:       fmt.Sprintf("R%d-%d", label, i),
				Text:     fmt.Sprintf("review %d for %d stars", i, label),
				Label:    label,
				HasLabel: true,
			})
		}
	}
	return rows
}

func rowIds(rows []types.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
