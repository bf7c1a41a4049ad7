package boosting

import (
	"math"
	"slices"
	"sort"

	"github.com/estateml/estateml/core/parallel"
)

// featureBins holds the discretised view of one training column.
type featureBins struct {
	categorical bool
	// borders are the upper edges of the numeric bins. Bin b holds values in
	// (borders[b-1], borders[b]]; values above the last border fall into
	// bin len(borders). NaN goes to nanSlot.
	borders []float64
	// slot per row. For categorical features the slot is code+1 so that
	// unknown codes (-1) land in slot 0.
	slots    []uint32
	numSlots int
}

func (f *featureBins) nanSlot() int { return len(f.borders) + 1 }

// quantileBorders returns at most maxBorders distinct upper bin edges for values.
func quantileBorders(values []float64, maxBorders int) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)
	unique := slices.Compact(slices.Clone(sorted))
	if len(unique)-1 <= maxBorders {
		// every distinct value except the largest is its own border
		return unique[:len(unique)-1]
	}

	borders := make([]float64, 0, maxBorders)
	for q := 1; q <= maxBorders; q++ {
		idx := q * len(sorted) / (maxBorders + 1)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		v := sorted[idx]
		if len(borders) > 0 && borders[len(borders)-1] == v {
			continue
		}
		if v == sorted[len(sorted)-1] {
			break
		}
		borders = append(borders, v)
	}
	return borders
}

func binColumn(values []float64, borderCount int, categorical bool) featureBins {
	fb := featureBins{categorical: categorical, slots: make([]uint32, len(values))}
	if categorical {
		maxCode := -1
		for _, v := range values {
			if c := categoryCode(v); c > maxCode {
				maxCode = c
			}
		}
		fb.numSlots = maxCode + 2
		for i, v := range values {
			fb.slots[i] = uint32(categoryCode(v) + 1)
		}
		return fb
	}

	fb.borders = quantileBorders(values, borderCount)
	fb.numSlots = len(fb.borders) + 2
	for i, v := range values {
		if math.IsNaN(v) {
			fb.slots[i] = uint32(fb.nanSlot())
			continue
		}
		fb.slots[i] = uint32(sort.SearchFloat64s(fb.borders, v))
	}
	return fb
}

// categoryCode maps a cell to a category code; NaN and negatives are unknown.
func categoryCode(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return -1
	}
	return int(v)
}

// binMatrix discretises every column of the row-major data in parallel.
func binMatrix(rows [][]float64, numFeatures, borderCount int, categorical map[int]bool) []featureBins {
	bins := make([]featureBins, numFeatures)
	parallel.ParallelizeWithThreshold(numFeatures, 1, func(start, end int) {
		col := make([]float64, len(rows))
		for j := start; j < end; j++ {
			for i, row := range rows {
				col[i] = row[j]
			}
			bins[j] = binColumn(col, borderCount, categorical[j])
		}
	})
	return bins
}
