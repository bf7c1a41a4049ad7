package preprocessing

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/estateml/estateml/pkg/errors"
)

// Kind is the type of a column, numeric or categorical.
type Kind int

const (
	// Numeric columns hold float64 values.
	Numeric Kind = iota
	// Categorical columns hold strings.
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column is one column of a Table. Numeric columns use nums; categorical
// columns use strs and null.
type Column struct {
	Name string
	Kind Kind
	nums []float64
	strs []string
	null []bool
}

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.Kind == Categorical {
		return len(c.strs)
	}
	return len(c.nums)
}

// Float returns the value of row i.
func (c *Column) Float(i int) float64 { return c.nums[i] }

// String returns the value of row i.
func (c *Column) String(i int) string { return c.strs[i] }

// IsNull reports whether row i is missing. Always false for numeric columns.
func (c *Column) IsNull(i int) bool {
	return c.Kind == Categorical && c.null[i]
}

// Floats returns a copy of the numeric values.
func (c *Column) Floats() []float64 { return slices.Clone(c.nums) }

// Strings returns a copy of the categorical values.
func (c *Column) Strings() []string { return slices.Clone(c.strs) }

func (c *Column) subset(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Categorical {
		out.strs = make([]string, len(idx))
		out.null = make([]bool, len(idx))
		for j, i := range idx {
			out.strs[j] = c.strs[i]
			out.null[j] = c.null[i]
		}
		return out
	}
	out.nums = make([]float64, len(idx))
	for j, i := range idx {
		out.nums[j] = c.nums[i]
	}
	return out
}

// Table is a column-oriented feature table. Columns keep insertion order.
type Table struct {
	n     int
	cols  []*Column
	index map[string]int
}

// NewTable creates an empty table of n rows.
func NewTable(n int) *Table {
	return &Table{n: n, index: make(map[string]int)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.n }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) put(c *Column) error {
	if c.Len() != t.n {
		return errors.NewDimensionError("Table.put("+c.Name+")", t.n, c.Len(), 0)
	}
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return nil
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// SetNumeric adds a numeric column, replacing a column of the same name in
// place.
func (t *Table) SetNumeric(name string, values []float64) error {
	return t.put(&Column{Name: name, Kind: Numeric, nums: values})
}

// SetCategorical adds a categorical column. A nil null marks empty strings
// as missing.
func (t *Table) SetCategorical(name string, values []string, null []bool) error {
	if null == nil {
		null = make([]bool, len(values))
		for i, v := range values {
			null[i] = v == ""
		}
	}
	if len(null) != len(values) {
		return errors.NewDimensionError("Table.SetCategorical("+name+")", len(values), len(null), 0)
	}
	return t.put(&Column{Name: name, Kind: Categorical, strs: values, null: null})
}

// Select returns a table with only names, in that order.
func (t *Table) Select(names []string) (*Table, error) {
	out := NewTable(t.n)
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, errors.NewValidationError("column", "not found in table", name)
		}
		if err := out.put(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Subset returns a table with the rows in idx.
func (t *Table) Subset(idx []int) *Table {
	out := NewTable(len(idx))
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.subset(idx))
	}
	return out
}

// Slice returns a table with rows [start, end).
func (t *Table) Slice(start, end int) *Table {
	idx := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	return t.Subset(idx)
}

// Schema returns the name and kind of every column.
func (t *Table) Schema() Schema {
	s := make(Schema, len(t.cols))
	for i, c := range t.cols {
		s[i] = Field{Name: c.Name, Kind: c.Kind}
	}
	return s
}

// Row returns row i.
func (t *Table) Row(i int) FeatureRow {
	row := FeatureRow{names: t.Columns(), values: make([]any, len(t.cols))}
	for j, c := range t.cols {
		if c.Kind == Categorical {
			row.values[j] = c.strs[i]
		} else {
			row.values[j] = c.nums[i]
		}
	}
	return row
}

// WriteCSV writes the table as CSV with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return errors.Wrap(err, "write header")
	}
	record := make([]string, len(t.cols))
	for i := 0; i < t.n; i++ {
		for j, c := range t.cols {
			if c.Kind == Categorical {
				record[j] = c.strs[i]
			} else {
				record[j] = strconv.FormatFloat(c.nums[i], 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// FeatureRow is one row of features. Values are string or float64 by column kind.
type FeatureRow struct {
	names  []string
	values []any
}

// Names returns the column names.
func (r FeatureRow) Names() []string { return r.names }

// Values returns the values in column order.
func (r FeatureRow) Values() []any { return r.values }

// Get returns the value of a column by name.
func (r FeatureRow) Get(name string) (any, bool) {
	i := slices.Index(r.names, name)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// Field is one column of a Schema.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is an ordered list of columns.
type Schema []Field

// Names returns the column names.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// CategoricalIndices returns the positions of the categorical columns.
func (s Schema) CategoricalIndices() []int {
	var idx []int
	for i, f := range s {
		if f.Kind == Categorical {
			idx = append(idx, i)
		}
	}
	return idx
}
