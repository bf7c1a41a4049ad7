package preprocessing

// MissingValue replaces missing categorical values.
const MissingValue = "Unknown"

// MissingFlagName returns the indicator column name for col.
func MissingFlagName(col string) string {
	return "hasmissing_" + col
}

// FlagMissing adds hasmissing_<col> (1 where the value was missing) for each
// column present in t and fills the missing values with MissingValue.
// Columns absent from t are skipped. An existing indicator is OR-combined with
// the new one, so applying FlagMissing twice leaves the table unchanged.
// It returns how many values were filled per column.
func FlagMissing(t *Table, columns []string) (map[string]int, error) {
	filled := make(map[string]int, len(columns))
	for _, name := range columns {
		c, ok := t.Column(name)
		if !ok || c.Kind != Categorical {
			continue
		}

		flags := make([]float64, c.Len())
		if prev, ok := t.Column(MissingFlagName(name)); ok && prev.Kind == Numeric {
			copy(flags, prev.nums)
		}

		values := make([]string, c.Len())
		for i := range values {
			if c.IsNull(i) {
				values[i] = MissingValue
				flags[i] = 1
				filled[name]++
			} else {
				values[i] = c.String(i)
			}
		}

		if err := t.SetCategorical(name, values, make([]bool, len(values))); err != nil {
			return nil, err
		}
		if err := t.SetNumeric(MissingFlagName(name), flags); err != nil {
			return nil, err
		}
	}
	return filled, nil
}
