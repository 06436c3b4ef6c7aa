package types

// Row is one input review. Fields holds the passthrough columns of the source
// record keyed by column name; the pipeline never modifies them.
type Row struct {
	ID       string
	Text     string
	Label    int
	HasLabel bool
	Fields   map[string]string
}

// EncodedFeature is the fixed-length model input derived from a single Row.
type EncodedFeature struct {
	InputIDs   []int64
	InputMask  []int64
	SegmentIDs []int64
	LabelID    int64
}

type Split string

const (
	TrainSplit      Split = "train"
	ValidationSplit Split = "validation"
	TestSplit       Split = "test"
)

var AllSplits = []Split{TrainSplit, ValidationSplit, TestSplit}

func ParseSplit(s string) (Split, bool) {
	for _, split := range AllSplits {
		if string(split) == s {
			return split, true
		}
	}
	return "", false
}

// CountLabels returns the number of rows per label value.
func CountLabels(rows []Row) map[int]int {
	counts := make(map[int]int)
	for _, row := range rows {
		counts[row.Label]++
	}
	return counts
}
