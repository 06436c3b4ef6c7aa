package types_test

import (
	"errors"
	"review-prep/internal/core/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelIndex(t *testing.T) {
	index, err := types.NewLabelIndex([]int{1, 2, 3, 4, 5})
	require.NoError(t, err)

	for i, label := range []int{1, 2, 3, 4, 5} {
		id, err := index.Lookup(label)
		require.NoError(t, err)
		assert.Equal(t, i, id)
	}

	_, err = index.Lookup(6)
	var unknown *types.UnknownLabelError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 6, unknown.Label)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, index.Values())
	assert.Equal(t, 5, index.Len())
}

func TestLabelIndexInvalid(t *testing.T) {
	_, err := types.NewLabelIndex(nil)
	assert.Error(t, err)

	_, err = types.NewLabelIndex([]int{1, 2, 1})
	assert.Error(t, err)
}

func TestWriteErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := error(&types.WriteError{Path: "out.tfrecord", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "out.tfrecord")
}
