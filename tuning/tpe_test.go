package tuning

import (
	"context"
	"math"
	"testing"
)

func TestDefaultGamma(t *testing.T) {
	tests := map[int]int{0: 0, 1: 1, 10: 1, 11: 2, 100: 10, 249: 25, 1000: 25}
	for n, want := range tests {
		if got := DefaultGamma(n); got != want {
			t.Errorf("DefaultGamma(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestDefaultWeights(t *testing.T) {
	w := defaultWeights(10)
	for _, v := range w {
		if v != 1 {
			t.Fatalf("weights for n < 25 should all be 1, got %v", w)
		}
	}
	w = defaultWeights(30)
	if len(w) != 30 {
		t.Fatalf("len = %d", len(w))
	}
	if math.Abs(w[0]-1.0/30) > 1e-12 || w[4] != 1 || w[29] != 1 {
		t.Errorf("unexpected ramp %v", w)
	}
	for i := 1; i < len(w); i++ {
		if w[i] < w[i-1] {
			t.Fatalf("weights decrease at %d: %v", i, w)
		}
	}
}

func TestSplitTrials(t *testing.T) {
	trials := []FrozenTrial{
		{Number: 0, Value: 5}, {Number: 1, Value: 1}, {Number: 2, Value: 3}, {Number: 3, Value: 1},
	}
	below, above := splitTrials(trials, 2)
	if len(below) != 2 || below[0].Number != 1 || below[1].Number != 3 {
		t.Errorf("below = %+v", below)
	}
	if len(above) != 2 || above[0].Number != 0 || above[1].Number != 2 {
		t.Errorf("above = %+v", above)
	}
}

func quadratic(_ context.Context, trial *Trial) (float64, error) {
	x, err := trial.SuggestFloat("x", -10, 10, false)
	if err != nil {
		return 0, err
	}
	y, err := trial.SuggestInt("y", -5, 5)
	if err != nil {
		return 0, err
	}
	return x*x + float64(y*y), nil
}

func runQuadratic(t *testing.T, sampler Sampler, n int) *Study {
	t.Helper()
	study := NewStudy("quadratic", WithSampler(sampler))
	if err := study.Optimize(context.Background(), quadratic, OptimizeOptions{NTrials: n}); err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	return study
}

func TestTPESamplerDeterministic(t *testing.T) {
	for _, multivariate := range []bool{false, true} {
		a := runQuadratic(t, NewTPESampler(7, WithStartupTrials(5), WithMultivariate(multivariate)), 25).Trials()
		b := runQuadratic(t, NewTPESampler(7, WithStartupTrials(5), WithMultivariate(multivariate)), 25).Trials()
		for i := range a {
			if a[i].Params["x"] != b[i].Params["x"] || a[i].Params["y"] != b[i].Params["y"] {
				t.Fatalf("multivariate=%v: trial %d differs: %v vs %v", multivariate, i, a[i].Params, b[i].Params)
			}
		}
	}
}

func TestTPESamplerFindsMinimum(t *testing.T) {
	for _, multivariate := range []bool{false, true} {
		study := runQuadratic(t, NewTPESampler(1, WithStartupTrials(10), WithMultivariate(multivariate)), 60)
		best, err := study.BestTrial()
		if err != nil {
			t.Fatal(err)
		}
		if best.Value > 4 {
			t.Errorf("multivariate=%v: best value %v, want <= 4", multivariate, best.Value)
		}
		for _, tr := range study.Trials() {
			x := tr.Params["x"].(float64)
			y := tr.Params["y"].(int)
			if x < -10 || x > 10 || y < -5 || y > 5 {
				t.Fatalf("trial %d params out of range: %v", tr.Number, tr.Params)
			}
		}
	}
}

func TestTPESamplerCategorical(t *testing.T) {
	objective := func(_ context.Context, trial *Trial) (float64, error) {
		v, err := trial.SuggestCategorical("iterations", 500, 1000)
		if err != nil {
			return 0, err
		}
		if v.(int) == 1000 {
			return 1, nil
		}
		return 2, nil
	}
	study := NewStudy("categorical", WithSampler(NewTPESampler(3, WithStartupTrials(4))))
	if err := study.Optimize(context.Background(), objective, OptimizeOptions{NTrials: 20}); err != nil {
		t.Fatal(err)
	}
	best, err := study.BestTrial()
	if err != nil {
		t.Fatal(err)
	}
	if best.Params["iterations"] != 1000 {
		t.Errorf("best params = %v", best.Params)
	}
}
