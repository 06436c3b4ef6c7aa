package utils_test

import (
	"fmt"
	"review-prep/internal/core/utils"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInpool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	inputs := make([]int, 10)
	for i := range inputs {
		inputs[i] = i
	}

	output := make(chan utils.CompletedTask[string], 10)

	utils.RunInPool(worker, inputs, output, 5)

	success, errors := 0, 0
	for result := range output {
		if result.Error != nil {
			errors++
			assert.Equal(t, 3, result.Index%4)
		} else {
			success++
			assert.Equal(t, fmt.Sprintf("%d-%d", result.Index, result.Index), result.Result)
		}
	}

	if success != 8 || errors != 2 {
		t.Fatal("invalid results")
	}
}

func TestMapInPoolPreservesOrder(t *testing.T) {
	inputs := []int{5, 4, 3, 2, 1, 0}
	results, err := utils.MapInPool(func(i int) (int, error) {
		time.Sleep(time.Duration(i) * time.Millisecond)
		return i * i, nil
	}, inputs, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{25, 16, 9, 4, 1, 0}, results)
}

func TestMapInPoolReturnsFirstError(t *testing.T) {
	_, err := utils.MapInPool(func(i int) (int, error) {
		if i >= 2 {
			return 0, fmt.Errorf("failed on %d", i)
		}
		return i, nil
	}, []int{0, 1, 2, 3}, 4)
	assert.EqualError(t, err, "failed on 2")
}

func TestMapInPoolEmpty(t *testing.T) {
	results, err := utils.MapInPool(func(i int) (int, error) { return i, nil }, nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}
