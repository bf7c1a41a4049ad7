package dataset

import (
	"testing"
	"time"

	"github.com/estateml/estateml/pkg/errors"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestChronologicalSplit(t *testing.T) {
	records := make([]Record, 10)
	for i := range records {
		// reverse order on input
		records[i] = Record{Date: day(9 - i), PricePerSqm: float64(9 - i)}
	}

	train, test, err := ChronologicalSplit(records, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("split sizes = %d/%d, want 8/2", len(train), len(test))
	}
	last := train[len(train)-1].Date
	for _, r := range test {
		if !r.Date.After(last) {
			t.Errorf("test record %v does not follow training window ending %v", r.Date, last)
		}
	}
	if records[0].Date != day(9) {
		t.Error("input slice must not be reordered")
	}
}

func TestChronologicalSplitErrors(t *testing.T) {
	if _, _, err := ChronologicalSplit([]Record{{}, {}}, 1.5); err == nil {
		t.Error("expected error for fraction >= 1")
	}
	_, _, err := ChronologicalSplit([]Record{{}}, 0.2)
	var vErr *errors.ValueError
	if !errors.As(err, &vErr) {
		t.Errorf("expected ValueError for a single record, got %v", err)
	}

	train, test, err := ChronologicalSplit([]Record{{Date: day(0)}, {Date: day(1)}}, 0.9)
	if err != nil || len(train) != 1 || len(test) != 1 {
		t.Errorf("both partitions must be non-empty: %d/%d %v", len(train), len(test), err)
	}
}

func TestSortByDateStable(t *testing.T) {
	records := []Record{
		{Date: day(1), AreaName: "b"},
		{Date: day(0), AreaName: "a"},
		{Date: day(1), AreaName: "c"},
	}
	sorted := SortByDate(records)
	got := sorted[0].AreaName + sorted[1].AreaName + sorted[2].AreaName
	if got != "abc" {
		t.Errorf("order = %q, want abc", got)
	}
}

func TestRecordValidate(t *testing.T) {
	valid := Record{
		ProcedureName:    "Sell",
		RegistrationType: "Existing Properties",
		Date:             day(0),
		Area:             100,
		AreaName:         "Mirdif",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := valid.ValidateForTraining(); err == nil {
		t.Error("zero target should fail training validation")
	}

	bad := valid
	bad.Area = -1
	err := bad.Validate()
	var vErr *errors.ValidationError
	if !errors.As(err, &vErr) || vErr.ParamName != "procedure_area" {
		t.Errorf("expected procedure_area ValidationError, got %v", err)
	}

	noDate := valid
	noDate.Date = time.Time{}
	if err := noDate.Validate(); err == nil {
		t.Error("zero date should fail validation")
	}

	if y := Targets([]Record{{PricePerSqm: 1}, {PricePerSqm: 2}}); len(y) != 2 || y[1] != 2 {
		t.Errorf("Targets() = %v", y)
	}
}
