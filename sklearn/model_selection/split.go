// Package model_selection provides time-ordered cross-validation.
package model_selection

import (
	"fmt"

	"github.com/estateml/estateml/pkg/errors"
)

// Splitter yields train/test index folds over n samples.
type Splitter interface {
	Split(nSamples int) ([]Fold, error)
	GetNSplits() int
}

// Fold represents a single fold in cross-validation
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// TimeSeriesSplit yields expanding-window folds over rows that are already
// in chronological order. With k splits over n rows every test window holds
// n/(k+1) rows, the windows are adjacent and end at the last row, and each
// training window is every row before its test window.
type TimeSeriesSplit struct {
	NSplits int
}

// NewTimeSeriesSplit creates a splitter with nSplits folds.
func NewTimeSeriesSplit(nSplits int) *TimeSeriesSplit {
	return &TimeSeriesSplit{NSplits: nSplits}
}

// GetNSplits returns the number of splits
func (s *TimeSeriesSplit) GetNSplits() int {
	return s.NSplits
}

// Split generates train/test indices for each fold
func (s *TimeSeriesSplit) Split(nSamples int) ([]Fold, error) {
	if s.NSplits < 2 {
		return nil, errors.NewValidationError("n_splits", "must be >= 2", s.NSplits)
	}
	if nSamples < s.NSplits+1 {
		return nil, errors.NewValueError("TimeSeriesSplit.Split",
			fmt.Sprintf("cannot make %d folds from %d samples", s.NSplits, nSamples))
	}

	testSize := nSamples / (s.NSplits + 1)
	folds := make([]Fold, 0, s.NSplits)
	for start := nSamples - s.NSplits*testSize; start < nSamples; start += testSize {
		fold := Fold{
			TrainIndices: make([]int, start),
			TestIndices:  make([]int, testSize),
		}
		for i := range fold.TrainIndices {
			fold.TrainIndices[i] = i
		}
		for i := range fold.TestIndices {
			fold.TestIndices[i] = start + i
		}
		folds = append(folds, fold)
	}
	return folds, nil
}
