package dataset

import (
	"strings"
	"testing"
	"time"

	"github.com/estateml/estateml/pkg/errors"
)

const sampleCSV = `transaction_id,trans_group_en,procedure_name_en,instance_date,reg_type_en,project_name_en,master_project_en,procedure_area,area_name_en,meter_sale_price
1,Sales,Sell,2024-03-01,Off-Plan Properties,Marina Gate,Dubai Marina,85.5,Marsa Dubai,"21,500.75"
2,Mortgages,Mortgage Registration,15-01-2023,Existing Properties,,,120,Business Bay,14000
3,Sales,Sell,not-a-date,Existing Properties,,,50,Al Barsha First,9000
4,Sales,Sell,2022-06-30 10:15:00,Existing Properties,,,0,Al Barsha First,9000
`

func TestReadCSV(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	records, stats, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if stats.Rows != 4 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want 4 rows and 2 skipped", stats)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 skipped-row warnings, got %d", len(warnings))
	}

	first := records[0]
	if first.ProcedureName != "Sell" || first.AreaName != "Marsa Dubai" || first.TransactionGroup != "Sales" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.PricePerSqm != 21500.75 {
		t.Errorf("PricePerSqm = %v, want 21500.75", first.PricePerSqm)
	}
	if !first.Date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", first.Date)
	}

	second := records[1]
	if second.ProjectName != "" || second.MasterProject != "" {
		t.Error("empty project fields should stay empty (missing)")
	}
	if !second.Date.Equal(time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day-first date parsed as %v", second.Date)
	}
}

func TestReadCSVStrict(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(sampleCSV), Strict())
	if err == nil {
		t.Fatal("strict mode should fail on the invalid date row")
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("procedure_name_en,instance_date\nSell,2024-01-01\n"))
	var vErr *errors.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestReadCSVEmpty(t *testing.T) {
	if _, _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
}

func TestReadCSVForTraining(t *testing.T) {
	data := `procedure_name_en,instance_date,reg_type_en,project_name_en,master_project_en,procedure_area,area_name_en,meter_sale_price
Sell,2024-01-01,Existing Properties,,,100,Mirdif,
Sell,2024-01-02,Existing Properties,,,100,Mirdif,8000
`
	errors.SetWarningHandler(func(error) {})
	records, stats, err := ReadCSV(strings.NewReader(data), ForTraining())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || stats.Skipped != 1 {
		t.Errorf("got %d records, %d skipped; want 1 and 1", len(records), stats.Skipped)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01 12:30:00", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"01-03-2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"01/03/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseDate("March 1st"); err == nil {
		t.Error("expected error for unknown layout")
	}
}
