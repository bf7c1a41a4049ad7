package model_selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSeriesSplit(t *testing.T) {
	folds, err := NewTimeSeriesSplit(3).Split(10)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	// test size 10/4 = 2, first test window starts at 10 - 3*2 = 4
	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].TrainIndices)
	assert.Equal(t, []int{4, 5}, folds[0].TestIndices)
	assert.Equal(t, []int{6, 7}, folds[1].TestIndices)
	assert.Equal(t, []int{8, 9}, folds[2].TestIndices)
	assert.Len(t, folds[2].TrainIndices, 8)
}

func TestTimeSeriesSplitTrainPrecedesTest(t *testing.T) {
	for _, n := range []int{4, 7, 25, 101} {
		folds, err := NewTimeSeriesSplit(3).Split(n)
		require.NoError(t, err)
		prevTrain := 0
		for _, f := range folds {
			require.NotEmpty(t, f.TrainIndices)
			require.NotEmpty(t, f.TestIndices)
			assert.Less(t, f.TrainIndices[len(f.TrainIndices)-1], f.TestIndices[0])
			assert.Equal(t, len(f.TrainIndices), f.TestIndices[0])
			assert.Greater(t, len(f.TrainIndices), prevTrain)
			prevTrain = len(f.TrainIndices)
		}
		assert.Equal(t, n-1, folds[len(folds)-1].TestIndices[len(folds[len(folds)-1].TestIndices)-1])
	}
}

func TestTimeSeriesSplitErrors(t *testing.T) {
	_, err := NewTimeSeriesSplit(1).Split(10)
	assert.Error(t, err)

	_, err = NewTimeSeriesSplit(3).Split(3)
	assert.Error(t, err)
}
