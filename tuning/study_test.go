package tuning

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	estateerrors "github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

func newTestStudy(opts ...StudyOption) *Study {
	opts = append([]StudyOption{WithLogger(log.NewTestLogger(log.LevelDebug))}, opts...)
	return NewStudy("test", opts...)
}

func TestStudyOptimize(t *testing.T) {
	study := newTestStudy(WithSampler(NewRandomSampler(1)))
	if study.State() != StudyCreated {
		t.Fatalf("state = %v", study.State())
	}

	var calls []int
	study.callbacks = append(study.callbacks, func(_ *Study, tr FrozenTrial) { calls = append(calls, tr.Number) })

	if err := study.Optimize(context.Background(), quadratic, OptimizeOptions{NTrials: 8}); err != nil {
		t.Fatal(err)
	}
	if study.State() != StudyCompleted {
		t.Errorf("state = %v, want completed", study.State())
	}
	trials := study.Trials()
	if len(trials) != 8 || len(calls) != 8 {
		t.Fatalf("got %d trials, %d callbacks", len(trials), len(calls))
	}
	best, err := study.BestTrial()
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range trials {
		if tr.State != TrialComplete {
			t.Errorf("trial %d state %v", tr.Number, tr.State)
		}
		if tr.Value < best.Value {
			t.Errorf("trial %d beats best", tr.Number)
		}
		if tr.DatetimeComplete.Before(tr.DatetimeStart) {
			t.Errorf("trial %d ends before it starts", tr.Number)
		}
	}
}

func TestStudyFailedTrials(t *testing.T) {
	study := newTestStudy(WithSampler(NewRandomSampler(2)))
	objective := func(_ context.Context, trial *Trial) (float64, error) {
		switch trial.Number() {
		case 0:
			return 0, errors.New("boom")
		case 1:
			panic("kaboom")
		case 2:
			return math.NaN(), nil
		}
		return float64(trial.Number()), nil
	}
	if err := study.Optimize(context.Background(), objective, OptimizeOptions{NTrials: 5}); err != nil {
		t.Fatal(err)
	}
	trials := study.Trials()
	for _, tr := range trials[:3] {
		if tr.State != TrialFail || !math.IsInf(tr.Value, 1) || tr.Err == "" {
			t.Errorf("trial %d = %+v, want failed with +Inf", tr.Number, tr)
		}
	}
	best, err := study.BestTrial()
	if err != nil {
		t.Fatal(err)
	}
	if best.Number != 3 || best.Value != 3 {
		t.Errorf("best = %+v", best)
	}
}

func TestStudyNoCompletedTrials(t *testing.T) {
	study := newTestStudy()
	if _, err := study.BestTrial(); !estateerrors.Is(err, estateerrors.ErrNoCompletedTrials) {
		t.Errorf("BestTrial() error = %v", err)
	}
	fail := func(context.Context, *Trial) (float64, error) { return 0, errors.New("nope") }
	if err := study.Optimize(context.Background(), fail, OptimizeOptions{NTrials: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := study.BestTrial(); !estateerrors.Is(err, estateerrors.ErrNoCompletedTrials) {
		t.Errorf("BestTrial() error = %v", err)
	}
}

func TestStudyPruning(t *testing.T) {
	study := newTestStudy(
		WithSampler(NewRandomSampler(3)),
		WithPruner(&MedianPruner{NStartupTrials: 2, IntervalSteps: 1}),
	)
	objective := func(_ context.Context, trial *Trial) (float64, error) {
		// later trials are worse at every step
		base := float64(trial.Number())
		for step := 0; step < 3; step++ {
			trial.Report(step, base+float64(step))
			if trial.ShouldPrune() {
				return 0, ErrTrialPruned
			}
		}
		return base, nil
	}
	if err := study.Optimize(context.Background(), objective, OptimizeOptions{NTrials: 4}); err != nil {
		t.Fatal(err)
	}
	counts := study.CountByState()
	if counts[TrialComplete] != 2 || counts[TrialPruned] != 2 {
		t.Fatalf("counts = %v", counts)
	}
	for _, tr := range study.Trials() {
		if tr.State == TrialPruned && tr.Value != tr.IntermediateValues[0] {
			t.Errorf("pruned trial %d value %v, want last intermediate %v", tr.Number, tr.Value, tr.IntermediateValues[0])
		}
	}
}

func TestStudyTimeout(t *testing.T) {
	study := newTestStudy(WithSampler(NewRandomSampler(4)))
	slow := func(ctx context.Context, trial *Trial) (float64, error) {
		select {
		case <-time.After(20 * time.Millisecond):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	start := time.Now()
	err := study.Optimize(context.Background(), slow, OptimizeOptions{Timeout: 110 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not honoured: %v", elapsed)
	}
	trials := study.Trials()
	if len(trials) == 0 || len(trials) > 6 {
		t.Errorf("recorded %d trials", len(trials))
	}
	for _, tr := range trials {
		if tr.State != TrialComplete {
			t.Errorf("abandoned trial %d was recorded as %v", tr.Number, tr.State)
		}
	}
}

func TestStudyParentCancel(t *testing.T) {
	study := newTestStudy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := study.Optimize(ctx, quadratic, OptimizeOptions{NTrials: 3})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Optimize() error = %v, want context.Canceled", err)
	}
	if len(study.Trials()) != 0 {
		t.Errorf("recorded trials after cancel")
	}
}

func TestStudyParallelJobs(t *testing.T) {
	study := newTestStudy(WithSampler(NewRandomSampler(5)))
	var running, peak atomic.Int32
	var mu sync.Mutex
	seen := map[int]bool{}
	objective := func(ctx context.Context, trial *Trial) (float64, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		seen[trial.Number()] = true
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return quadratic(ctx, trial)
	}
	if err := study.Optimize(context.Background(), objective, OptimizeOptions{NTrials: 12, NJobs: 4}); err != nil {
		t.Fatal(err)
	}
	if got := len(study.Trials()); got != 12 {
		t.Errorf("recorded %d trials, want 12", got)
	}
	if len(seen) != 12 {
		t.Errorf("trial numbers not unique: %v", seen)
	}
	if peak.Load() > 4 {
		t.Errorf("peak concurrency %d exceeds NJobs", peak.Load())
	}
}

func TestStudyOptimizeValidation(t *testing.T) {
	study := newTestStudy()
	cases := []OptimizeOptions{{}, {NTrials: -1}}
	for _, opts := range cases {
		if err := study.Optimize(context.Background(), quadratic, opts); err == nil {
			t.Errorf("Optimize(%+v) should fail", opts)
		}
	}
	if err := study.Optimize(context.Background(), nil, OptimizeOptions{NTrials: 1}); err == nil {
		t.Error("nil objective should fail")
	}
}

func TestTrialSuggestSameName(t *testing.T) {
	study := newTestStudy(WithSampler(NewRandomSampler(6)))
	objective := func(_ context.Context, trial *Trial) (float64, error) {
		a, err := trial.SuggestFloat("lr", 0.01, 0.06, false)
		if err != nil {
			return 0, err
		}
		b, err := trial.SuggestFloat("lr", 0.01, 0.06, false)
		if err != nil {
			return 0, err
		}
		if a != b {
			t.Errorf("re-suggest changed value: %v != %v", a, b)
		}
		if _, err := trial.SuggestInt("lr", 1, 3); err == nil {
			t.Error("expected error for conflicting distribution")
		}
		if _, err := trial.SuggestFloat("bad", 1, 0, false); err == nil {
			t.Error("expected error for invalid distribution")
		}
		return a, nil
	}
	if err := study.Optimize(context.Background(), objective, OptimizeOptions{NTrials: 2}); err != nil {
		t.Fatal(err)
	}
	if got := len(study.Trials()[0].Params); got != 1 {
		t.Errorf("params = %v", study.Trials()[0].Params)
	}
}
