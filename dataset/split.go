package dataset

import (
	"math"
	"slices"

	"github.com/estateml/estateml/pkg/errors"
)

// SortByDate returns a copy of records in ascending date order. Records with
// equal dates keep their input order.
func SortByDate(records []Record) []Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b Record) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// ChronologicalSplit sorts records by date and holds out the most recent
// testFraction of them. Both partitions are non-empty.
func ChronologicalSplit(records []Record, testFraction float64) (train, test []Record, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NewValidationError("test_fraction", "must be in (0, 1)", testFraction)
	}
	if len(records) < 2 {
		return nil, nil, errors.NewValueError("ChronologicalSplit", "need at least 2 records")
	}

	sorted := SortByDate(records)
	nTest := int(math.Ceil(float64(len(sorted)) * testFraction))
	if nTest >= len(sorted) {
		nTest = len(sorted) - 1
	}
	cut := len(sorted) - nTest
	return sorted[:cut], sorted[cut:], nil
}
