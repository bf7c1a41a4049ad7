package preprocessing

import (
	"bytes"
	"strings"
	"testing"
)

func TestTableSelectSubsetAndCSV(t *testing.T) {
	tbl := NewTable(3)
	if err := tbl.SetNumeric("area", []float64{10, 20.5, 30}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetCategorical("district", []string{"Deira", "", "Hatta"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetNumeric("area", []float64{11, 21, 31}); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Columns(); len(got) != 2 || got[0] != "area" {
		t.Errorf("replacing a column must keep its position: %v", got)
	}
	if err := tbl.SetNumeric("bad", []float64{1}); err == nil {
		t.Error("expected dimension error for short column")
	}

	sel, err := tbl.Select([]string{"district", "area"})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Columns()[0] != "district" {
		t.Errorf("select order = %v", sel.Columns())
	}
	if _, err := tbl.Select([]string{"nope"}); err == nil {
		t.Error("expected error selecting an unknown column")
	}

	sub := tbl.Subset([]int{2, 0})
	d, _ := sub.Column("district")
	if sub.Len() != 2 || d.String(0) != "Hatta" {
		t.Errorf("subset = %v", d.Strings())
	}
	sl := tbl.Slice(1, 3)
	d, _ = sl.Column("district")
	if !d.IsNull(0) {
		t.Error("null flag must survive slicing")
	}

	schema := tbl.Schema()
	if idx := schema.CategoricalIndices(); len(idx) != 1 || idx[0] != 1 {
		t.Errorf("categorical indices = %v", idx)
	}

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := "area,district\n11,Deira\n21,\n31,Hatta\n"
	if buf.String() != want {
		t.Errorf("csv = %q, want %q", buf.String(), want)
	}
	if !strings.HasPrefix(buf.String(), "area,district") {
		t.Error("missing header")
	}
}
