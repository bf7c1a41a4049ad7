package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/estateml/estateml/core/model"
	"github.com/estateml/estateml/pkg/errors"
)

// UnseenCode is the code assigned to categories not seen during Fit.
const UnseenCode = -1

// CategoryEncoder assigns integer codes to the categorical values of a
// training table and turns tables into model input matrices.
//
// A code is the value's position in the sorted vocabulary of its column;
// values not seen by Fit get UnseenCode. Fields are exported for gob.
type CategoryEncoder struct {
	model.BaseEstimator

	// Schema is the column layout seen by Fit.
	Schema Schema
	// Vocab maps column name to value to code.
	Vocab map[string]map[string]int
}

// NewCategoryEncoder creates an unfitted encoder.
func NewCategoryEncoder() *CategoryEncoder {
	return &CategoryEncoder{}
}

// Fit learns the vocabulary of every categorical column.
func (e *CategoryEncoder) Fit(t *Table) error {
	if t.Len() == 0 {
		return errors.NewValueError("CategoryEncoder.Fit", "empty table")
	}
	e.Schema = t.Schema()
	e.Vocab = make(map[string]map[string]int)
	for _, f := range e.Schema {
		if f.Kind != Categorical {
			continue
		}
		c, _ := t.Column(f.Name)
		seen := make(map[string]struct{})
		for i := 0; i < c.Len(); i++ {
			seen[c.String(i)] = struct{}{}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		codes := make(map[string]int, len(values))
		for i, v := range values {
			codes[v] = i
		}
		e.Vocab[f.Name] = codes
	}
	e.SetFitted()
	return nil
}

// Transform converts t into an n×d matrix. Its columns must match Fit.
func (e *CategoryEncoder) Transform(t *Table) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("CategoryEncoder", "Transform")
	}
	if err := AssertSameColumns("encode", e.Schema.Names(), t.Columns()); err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, errors.NewValueError("CategoryEncoder.Transform", "empty table")
	}

	X := mat.NewDense(t.Len(), len(e.Schema), nil)
	for j, f := range e.Schema {
		c, _ := t.Column(f.Name)
		if c.Kind != f.Kind {
			return nil, errors.NewValidationError(f.Name, "column kind changed since Fit", c.Kind.String())
		}
		if f.Kind == Numeric {
			for i := 0; i < t.Len(); i++ {
				X.Set(i, j, c.Float(i))
			}
			continue
		}
		codes := e.Vocab[f.Name]
		for i := 0; i < t.Len(); i++ {
			code, ok := codes[c.String(i)]
			if !ok {
				code = UnseenCode
			}
			X.Set(i, j, float64(code))
		}
	}
	return X, nil
}

// FitTransform runs Fit then Transform.
func (e *CategoryEncoder) FitTransform(t *Table) (*mat.Dense, error) {
	if err := e.Fit(t); err != nil {
		return nil, err
	}
	return e.Transform(t)
}

// CategoricalIndices returns the positions of the categorical columns.
func (e *CategoryEncoder) CategoricalIndices() []int {
	return e.Schema.CategoricalIndices()
}

// Cardinality returns the vocabulary size of each categorical column.
func (e *CategoryEncoder) Cardinality() map[string]int {
	out := make(map[string]int, len(e.Vocab))
	for name, codes := range e.Vocab {
		out[name] = len(codes)
	}
	return out
}
