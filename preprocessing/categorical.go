package preprocessing

import (
	"github.com/estateml/estateml/pkg/errors"
)

// Raw and derived column names used by the normalizer.
const (
	ColProcedureName        = "procedure_name_en"
	ColProcedureNameGrouped = "procedure_name_en_grouped"
	ColAreaName             = "area_name_en"
	ColDistrict             = "district"

	// FallbackTransaction is assigned to procedure names missing from the table.
	FallbackTransaction = "Other_Transaction"
	// FallbackDistrict is assigned to area names missing from the table.
	FallbackDistrict = "Unknown_District"
)

// Normalize maps raw to its canonical group, or to fallback when raw is not
// in table. It never returns an empty string.
func Normalize(raw string, table map[string]string, fallback string) string {
	if g, ok := table[raw]; ok && g != "" {
		return g
	}
	if fallback == "" {
		return MissingValue
	}
	return fallback
}

// normalizeColumn writes the grouped values of src into dst and returns
// how many rows fell back.
func normalizeColumn(t *Table, src, dst string, lt *LookupTable) (int, error) {
	c, ok := t.Column(src)
	if !ok || c.Kind != Categorical {
		return 0, errors.NewValidationError("column", "categorical source column not found", src)
	}
	out := make([]string, c.Len())
	unmapped := 0
	for i := range out {
		if _, ok := lt.Lookup(c.String(i)); !ok {
			unmapped++
		}
		out[i] = lt.Normalize(c.String(i))
	}
	return unmapped, t.SetCategorical(dst, out, make([]bool, len(out)))
}

// CategorizeTransactions adds procedure_name_en_grouped. The returned count is
// the number of rows assigned the fallback group.
func CategorizeTransactions(t *Table, lt *LookupTable) (int, error) {
	return normalizeColumn(t, ColProcedureName, ColProcedureNameGrouped, lt)
}

// AddDistrict adds the district column derived from area_name_en.
func AddDistrict(t *Table, lt *LookupTable) (int, error) {
	return normalizeColumn(t, ColAreaName, ColDistrict, lt)
}
