package core

import (
	"log/slog"
	"math/rand"
	"review-prep/internal/core/types"
)

const DefaultSeed = 27

// Balancer downsamples every label to the size of the smallest one.
type Balancer struct {
	labels types.LabelIndex
	seed   int64
}

func NewBalancer(labels types.LabelIndex, seed int64) *Balancer {
	return &Balancer{labels: labels, seed: seed}
}

// Balance returns, for every declared label, minCount rows sampled without
// replacement, where minCount is the smallest label count of the input. Each
// label is sampled with a fresh generator seeded with the balancer seed, so
// the same input always yields the same output. Output rows are grouped by
// label in declared order.
func (b *Balancer) Balance(rows []types.Row) ([]types.Row, error) {
	groups, err := groupByLabel(rows, b.labels)
	if err != nil {
		return nil, err
	}

	minCount := -1
	for _, label := range b.labels.Values() {
		n := len(groups[label])
		if n == 0 {
			return nil, &types.EmptyMinorityClassError{Label: label}
		}
		if minCount < 0 || n < minCount {
			minCount = n
		}
	}

	balanced := make([]types.Row, 0, minCount*b.labels.Len())
	for _, label := range b.labels.Values() {
		group := groups[label]
		rng := rand.New(rand.NewSource(b.seed))
		for _, i := range rng.Perm(len(group))[:minCount] {
			balanced = append(balanced, group[i])
		}
		slog.Debug("balanced label", "label", label, "rows", len(group), "kept", minCount)
	}

	return balanced, nil
}

func groupByLabel(rows []types.Row, labels types.LabelIndex) (map[int][]types.Row, error) {
	groups := make(map[int][]types.Row, labels.Len())
	for _, row := range rows {
		if !row.HasLabel {
			return nil, &types.UnknownLabelError{Missing: true, RowID: row.ID}
		}
		if !labels.Contains(row.Label) {
			return nil, &types.UnknownLabelError{Label: row.Label, RowID: row.ID}
		}
		groups[row.Label] = append(groups[row.Label], row)
	}
	return groups, nil
}
