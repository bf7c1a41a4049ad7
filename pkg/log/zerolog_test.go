package log

import (
	"context"
	"strings"
	"testing"

	mlerrors "github.com/estateml/estateml/pkg/errors"
)

func TestZerologLoggerFields(t *testing.T) {
	logger := NewTestLogger(LevelDebug)

	logger.With(ComponentKey, "tuning").Info("trial finished",
		TrialKey, 3,
		TrialStateKey, "COMPLETE",
	)

	if !logger.ContainsMessage("trial finished") {
		t.Fatalf("message not captured: %s", logger.String())
	}
	if !logger.ContainsField(ComponentKey, "tuning") {
		t.Error("expected component field from With")
	}
	if !logger.ContainsField(TrialKey, float64(3)) {
		t.Error("expected numeric trial field")
	}
	if !logger.ContainsField("level", "info") {
		t.Error("expected info level")
	}
}

func TestZerologLoggerLevels(t *testing.T) {
	logger := NewTestLogger(LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown too")

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %s", len(entries), logger.String())
	}
	if logger.Enabled(context.Background(), LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestErrorCarriesStacktrace(t *testing.T) {
	logger := NewTestLogger(LevelInfo)

	err := mlerrors.NewValueError("training.Evaluate", "empty test partition")
	logger.Error("evaluation failed", err, OperationKey, OperationEvaluate)

	out := logger.String()
	if !strings.Contains(out, "empty test partition") {
		t.Errorf("error message missing: %s", out)
	}
	if !logger.ContainsField(OperationKey, OperationEvaluate) {
		t.Error("expected operation field")
	}
	if !strings.Contains(out, StacktraceKey) {
		t.Errorf("expected stack trace field: %s", out)
	}
}

func TestRouteWarnings(t *testing.T) {
	logger := NewTestLogger(LevelDebug)
	RouteWarnings(logger)
	defer mlerrors.SetZerologWarnFunc(nil)

	mlerrors.Warn(mlerrors.NewUnmappedCategoryWarning("district", "Unknown_District", 2))

	if logger.CountLevel("warn") != 1 {
		t.Fatalf("expected one warn entry: %s", logger.String())
	}
	if !strings.Contains(logger.String(), "UnmappedCategoryWarning") {
		t.Errorf("expected structured warning object: %s", logger.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTestLoggerProvider(t *testing.T) {
	p := NewTestLoggerProvider(LevelInfo)
	SetProvider(p)
	defer SetProvider(NewZerologProvider(nil, "json", LevelInfo))

	GetLoggerWithName("preprocessing").Info("built table", SamplesKey, 10)

	if !p.Logger().ContainsField(ComponentKey, "preprocessing") {
		t.Errorf("expected component name: %s", p.Logger().String())
	}

	p.SetLevel(LevelError)
	GetLogger().Info("dropped")
	if p.Logger().ContainsMessage("dropped") {
		t.Error("info should be filtered after SetLevel(LevelError)")
	}
}
