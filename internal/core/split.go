package core

import (
	"math"
	"math/rand"
	"review-prep/internal/core/types"
	"sort"
)

type SplitResult struct {
	Train      []types.Row
	Validation []types.Row
	Test       []types.Row
}

func (s SplitResult) Get(split types.Split) []types.Row {
	switch split {
	case types.TrainSplit:
		return s.Train
	case types.ValidationSplit:
		return s.Validation
	case types.TestSplit:
		return s.Test
	}
	return nil
}

// Splitter partitions rows into train/validation/test, sampling within every
// label so that each split keeps the label proportions of the input.
type Splitter struct {
	labels types.LabelIndex
	ratios types.SplitRatios
	seed   int64
}

func NewSplitter(labels types.LabelIndex, ratios types.SplitRatios, seed int64) (*Splitter, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{labels: labels, ratios: ratios, seed: seed}, nil
}

// Split first separates a holdout of Validation+Test of all rows, then
// divides the holdout into validation and test at Validation:Test. Both cuts
// are sized on the whole input and then spread over the labels by largest
// remainder, so per label rounding never shifts rows between splits. Every
// input row lands in exactly one output.
func (s *Splitter) Split(rows []types.Row) (SplitResult, error) {
	groups, err := groupByLabel(rows, s.labels)
	if err != nil {
		return SplitResult{}, err
	}

	holdoutFrac := s.ratios.Validation + s.ratios.Test
	testFrac := 0.0
	if holdoutFrac > 0 {
		testFrac = s.ratios.Test / holdoutFrac
	}

	labels := s.labels.Values()
	sizes := make([]int, len(labels))
	for i, label := range labels {
		sizes[i] = len(groups[label])
	}

	holdoutN := roundCount(len(rows), holdoutFrac)
	holdoutSizes := allocate(holdoutN, sizes)
	testSizes := allocate(roundCount(holdoutN, testFrac), holdoutSizes)

	rng := rand.New(rand.NewSource(s.seed))

	var result SplitResult
	for i, label := range labels {
		group := shuffled(groups[label], rng)

		holdout, train := group[:holdoutSizes[i]], group[holdoutSizes[i]:]
		test, validation := holdout[:testSizes[i]], holdout[testSizes[i]:]

		result.Train = append(result.Train, train...)
		result.Validation = append(result.Validation, validation...)
		result.Test = append(result.Test, test...)
	}

	result.Train = shuffled(result.Train, rng)
	result.Validation = shuffled(result.Validation, rng)
	result.Test = shuffled(result.Test, rng)

	return result, nil
}

func roundCount(n int, frac float64) int {
	return min(n, max(0, int(math.Round(float64(n)*frac))))
}

// allocate spreads total over groups in proportion to sizes. Every group gets
// the floor of its share, the rows left over go to the largest fractional
// shares, ties to the earlier group. No group gets more than its size.
func allocate(total int, sizes []int) []int {
	out := make([]int, len(sizes))

	sum := 0
	for _, n := range sizes {
		sum += n
	}
	if sum == 0 || total <= 0 {
		return out
	}
	total = min(total, sum)

	remainders := make([]float64, len(sizes))
	assigned := 0
	for i, n := range sizes {
		share := float64(n) * float64(total) / float64(sum)
		out[i] = min(n, int(math.Floor(share)))
		remainders[i] = share - float64(out[i])
		assigned += out[i]
	}

	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	for assigned < total {
		progressed := false
		for _, i := range order {
			if assigned == total {
				break
			}
			if out[i] < sizes[i] {
				out[i]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	return out
}

func shuffled(rows []types.Row, rng *rand.Rand) []types.Row {
	out := make([]types.Row, len(rows))
	for i, j := range rng.Perm(len(rows)) {
		out[i] = rows[j]
	}
	return out
}
