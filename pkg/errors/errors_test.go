package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "boosting.Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "estateml: boosting.Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "boosting.Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "estateml: boosting.Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 26, 25, 1)

	want := "estateml: Predict: dimension mismatch on axis 1 (features). Expected 26, got 25"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 26 || dimErr.Got != 25 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestFeatureOrderError(t *testing.T) {
	expected := []string{"year", "month", "day"}
	got := []string{"year", "day", "month"}

	err := NewFeatureOrderError("inference", expected, got, 1)

	var foErr *FeatureOrderError
	if !As(err, &foErr) {
		t.Fatal("Error should be castable to *FeatureOrderError")
	}
	msg := err.Error()
	for _, part := range []string{"inference", "position 1", `expected "month"`, `got "day"`} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, want it to contain %q", msg, part)
		}
	}

	// 長さ不一致で位置が範囲外でもpanicしない
	short := NewFeatureOrderError("training", expected, expected[:2], 2)
	if !strings.Contains(short.Error(), `got ""`) {
		t.Errorf("Error() = %q", short.Error())
	}
}

func TestTrialErrorUnwrap(t *testing.T) {
	cause := New("objective exploded")
	err := NewTrialError(7, cause)

	if !Is(err, cause) {
		t.Error("TrialError should unwrap to its cause")
	}
	var trialErr *TrialError
	if !As(err, &trialErr) {
		t.Fatal("Error should be castable to *TrialError")
	}
	if trialErr.Number != 7 {
		t.Errorf("Number = %d, want 7", trialErr.Number)
	}
}

func TestWarnRouting(t *testing.T) {
	var captured []error
	SetWarningHandler(func(w error) { captured = append(captured, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewUnmappedCategoryWarning("district", "Unknown_District", 3))

	if len(captured) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(captured))
	}
	want := `3 value(s) in column "district" not found in lookup table, assigned "Unknown_District"`
	if captured[0].Error() != want {
		t.Errorf("warning = %q, want %q", captured[0].Error(), want)
	}

	var zeroCaptured error
	SetZerologWarnFunc(func(w error) { zeroCaptured = w })
	defer SetZerologWarnFunc(nil)

	Warn(NewSkippedRecordWarning(12, "procedure_area must be > 0"))
	if zeroCaptured == nil {
		t.Fatal("zerolog warn func should take precedence over the handler")
	}
	if len(captured) != 1 {
		t.Error("handler should not be called when zerolog func is set")
	}
}

func TestCheckScalar(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"finite", 1.5, false},
		{"nan", math.NaN(), true},
		{"positive inf", math.Inf(1), true},
		{"negative inf", math.Inf(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScalar("loss", tt.value, 3)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckScalar() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var numErr *NumericalInstabilityError
				if !As(err, &numErr) || numErr.Iteration != 3 {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

type grid [][]float64

func (g grid) At(i, j int) float64 { return g[i][j] }

func TestCheckMatrix(t *testing.T) {
	ok := grid{{1, 2}, {3, 4}}
	if err := CheckMatrix("fit", ok, 2, 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := grid{{1, 2}, {math.NaN(), 4}}
	if err := CheckMatrix("fit", bad, 2, 2); err == nil {
		t.Error("expected error for NaN cell")
	}
}

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float64{math.Log(1), math.Log(2), math.Log(3)})
	if math.Abs(got-math.Log(6)) > 1e-12 {
		t.Errorf("LogSumExp = %v, want %v", got, math.Log(6))
	}
	if !math.IsInf(LogSumExp(nil), -1) {
		t.Error("LogSumExp(nil) should be -Inf")
	}
	if !math.IsInf(LogSumExp([]float64{math.Inf(-1), math.Inf(-1)}), -1) {
		t.Error("LogSumExp of all -Inf should be -Inf")
	}
}
