// Package analysis holds the data diagnostics run before training: outlier
// detection on the target, correlation ranking and column summaries.
package analysis

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// DefaultIQRWeight is the usual Tukey fence multiplier.
const DefaultIQRWeight = 1.5

// OutlierBounds are the Tukey fences of one column.
type OutlierBounds struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	IQR   float64 `json:"iqr"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether v lies inside the fences.
func (b OutlierBounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// IQRBounds computes the fences Q1 - weight*IQR and Q3 + weight*IQR.
// NaN values are ignored.
func IQRBounds(values []float64, weight float64) (OutlierBounds, error) {
	if weight < 0 || math.IsNaN(weight) {
		return OutlierBounds{}, errors.NewValidationError("weight", "must be >= 0", weight)
	}
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return OutlierBounds{}, errors.ErrEmptyData
	}
	slices.Sort(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	return OutlierBounds{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - weight*iqr,
		Upper: q3 + weight*iqr,
	}, nil
}

// DetectOutliers returns the indices of values outside the fences, in order.
func DetectOutliers(values []float64, weight float64) ([]int, OutlierBounds, error) {
	b, err := IQRBounds(values, weight)
	if err != nil {
		return nil, b, err
	}
	var idx []int
	for i, v := range values {
		if !math.IsNaN(v) && !b.Contains(v) {
			idx = append(idx, i)
		}
	}
	return idx, b, nil
}

// FilterOutliers drops records whose price per sqm lies outside the fences.
// A nil logger uses the package logger.
func FilterOutliers(records []dataset.Record, weight float64, logger log.Logger) ([]dataset.Record, OutlierBounds, error) {
	if logger == nil {
		logger = log.GetLoggerWithName("analysis")
	}
	idx, b, err := DetectOutliers(dataset.Targets(records), weight)
	if err != nil {
		return nil, b, err
	}

	out := make([]dataset.Record, 0, len(records)-len(idx))
	next := 0
	for i, r := range records {
		if next < len(idx) && idx[next] == i {
			next++
			continue
		}
		out = append(out, r)
	}
	logger.Info("removed price outliers",
		log.CountKey, len(idx),
		log.SamplesKey, len(out),
		"q1", b.Q1,
		"q3", b.Q3,
		"lower", b.Lower,
		"upper", b.Upper,
	)
	return out, b, nil
}
