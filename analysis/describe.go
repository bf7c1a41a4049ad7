package analysis

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/preprocessing"
)

// ValueCount is the frequency of one categorical value.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnSummary describes one column. Numeric statistics are zero for
// categorical columns and Top is empty for numeric ones.
type ColumnSummary struct {
	Name    string       `json:"name"`
	Kind    string       `json:"kind"`
	Count   int          `json:"count"`
	Missing int          `json:"missing"`
	Mean    float64      `json:"mean,omitempty"`
	Std     float64      `json:"std,omitempty"`
	Min     float64      `json:"min,omitempty"`
	Q25     float64      `json:"q25,omitempty"`
	Median  float64      `json:"median,omitempty"`
	Q75     float64      `json:"q75,omitempty"`
	Max     float64      `json:"max,omitempty"`
	Unique  int          `json:"unique,omitempty"`
	Top     []ValueCount `json:"top,omitempty"`
}

// Describe summarizes column name of t. topN bounds the value counts of a
// categorical column; topN <= 0 keeps all of them.
func Describe(t *preprocessing.Table, name string, topN int) (ColumnSummary, error) {
	c, ok := t.Column(name)
	if !ok {
		return ColumnSummary{}, errors.NewValidationError("column", "not found in table", name)
	}
	s := ColumnSummary{Name: name, Kind: c.Kind.String()}

	if c.Kind == preprocessing.Categorical {
		counts := map[string]int{}
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				s.Missing++
				continue
			}
			counts[c.String(i)]++
		}
		s.Count = c.Len() - s.Missing
		s.Unique = len(counts)
		for v, n := range counts {
			s.Top = append(s.Top, ValueCount{Value: v, Count: n})
		}
		sort.Slice(s.Top, func(i, j int) bool {
			if s.Top[i].Count != s.Top[j].Count {
				return s.Top[i].Count > s.Top[j].Count
			}
			return s.Top[i].Value < s.Top[j].Value
		})
		if topN > 0 && len(s.Top) > topN {
			s.Top = s.Top[:topN]
		}
		return s, nil
	}

	values := make([]float64, 0, c.Len())
	for _, v := range c.Floats() {
		if math.IsNaN(v) {
			s.Missing++
			continue
		}
		values = append(values, v)
	}
	s.Count = len(values)
	if s.Count == 0 {
		return s, nil
	}
	slices.Sort(values)
	s.Mean = stat.Mean(values, nil)
	if s.Count > 1 {
		s.Std = stat.StdDev(values, nil)
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Q25 = stat.Quantile(0.25, stat.LinInterp, values, nil)
	s.Median = stat.Quantile(0.5, stat.LinInterp, values, nil)
	s.Q75 = stat.Quantile(0.75, stat.LinInterp, values, nil)
	return s, nil
}

// DescribeAll summarizes every column of t in table order.
func DescribeAll(t *preprocessing.Table, topN int) ([]ColumnSummary, error) {
	names := t.Columns()
	out := make([]ColumnSummary, 0, len(names))
	for _, name := range names {
		s, err := Describe(t, name, topN)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
