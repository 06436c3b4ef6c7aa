package types

import "fmt"

// LabelIndex maps each declared label value to its position in the declared
// order. It is built once per pipeline run and shared read-only.
type LabelIndex struct {
	values []int
	index  map[int]int
}

func NewLabelIndex(values []int) (LabelIndex, error) {
	if len(values) == 0 {
		return LabelIndex{}, fmt.Errorf("label set must not be empty")
	}

	index := make(map[int]int, len(values))
	for i, v := range values {
		if _, exists := index[v]; exists {
			return LabelIndex{}, fmt.Errorf("duplicate label value %d", v)
		}
		index[v] = i
	}

	return LabelIndex{values: append([]int(nil), values...), index: index}, nil
}

func (l LabelIndex) Lookup(label int) (int, error) {
	id, ok := l.index[label]
	if !ok {
		return 0, &UnknownLabelError{Label: label}
	}
	return id, nil
}

func (l LabelIndex) Contains(label int) bool {
	_, ok := l.index[label]
	return ok
}

// Values returns the label values in declared order.
func (l LabelIndex) Values() []int {
	return append([]int(nil), l.values...)
}

func (l LabelIndex) Len() int {
	return len(l.values)
}
