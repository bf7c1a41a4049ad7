package tuning

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/estateml/estateml/pkg/errors"
)

// ErrTrialPruned is returned by an objective whose trial was pruned.
var ErrTrialPruned = errors.New("tuning: trial pruned")

// TrialState is the terminal state of a trial.
type TrialState int

const (
	TrialRunning TrialState = iota
	TrialComplete
	TrialPruned
	TrialFail
)

func (s TrialState) String() string {
	switch s {
	case TrialRunning:
		return "running"
	case TrialComplete:
		return "complete"
	case TrialPruned:
		return "pruned"
	case TrialFail:
		return "fail"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s TrialState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FrozenTrial is the immutable record of a finished trial.
type FrozenTrial struct {
	Number             int                     `json:"number"`
	State              TrialState              `json:"state"`
	Value              float64                 `json:"value"`
	Params             Params                  `json:"params"`
	Distributions      map[string]Distribution `json:"-"`
	IntermediateValues map[int]float64         `json:"intermediate_values,omitempty"`
	DatetimeStart      time.Time               `json:"datetime_start"`
	DatetimeComplete   time.Time               `json:"datetime_complete"`
	Err                string                  `json:"error,omitempty"`
}

// Duration is the wall time the trial took.
func (t FrozenTrial) Duration() time.Duration {
	return t.DatetimeComplete.Sub(t.DatetimeStart)
}

// internal returns the internal representation of param name.
func (t FrozenTrial) internal(name string) (float64, bool) {
	d, ok := t.Distributions[name]
	if !ok {
		return 0, false
	}
	x, err := d.ToInternal(t.Params[name])
	if err != nil {
		return 0, false
	}
	return x, true
}

// lastStep returns the highest reported step, or -1.
func (t FrozenTrial) lastStep() int {
	last := -1
	for step := range t.IntermediateValues {
		if step > last {
			last = step
		}
	}
	return last
}

// Objective evaluates one hyperparameter configuration and returns the value
// to minimise. It draws parameters through the Suggest methods of trial.
type Objective func(ctx context.Context, trial *Trial) (float64, error)

// Trial is a running evaluation handed to an Objective. Its methods are safe
// for concurrent use.
type Trial struct {
	study    *Study
	number   int
	start    time.Time
	relative map[string]float64
	space    SearchSpace

	mu           sync.Mutex
	params       Params
	dists        map[string]Distribution
	intermediate map[int]float64
}

// Number is the trial's sequence number within its study, starting at 0.
func (t *Trial) Number() int { return t.number }

// Params returns a copy of the values suggested so far.
func (t *Trial) Params() Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(Params, len(t.params))
	for k, v := range t.params {
		out[k] = v
	}
	return out
}

// Suggest draws a value for name from dist. Asking again for the same name
// returns the first value; asking with a different distribution is an error.
func (t *Trial) Suggest(name string, dist Distribution) (interface{}, error) {
	if err := dist.Validate(); err != nil {
		return nil, errors.Wrapf(err, "parameter %q", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.dists[name]; ok {
		if !sameDistribution(prev, dist) {
			return nil, errors.NewValidationError(name, "already suggested with a different distribution", dist)
		}
		return t.params[name], nil
	}

	var x float64
	if rel, ok := t.relative[name]; ok && sameDistribution(t.space[name], dist) {
		x = rel
	} else {
		x = t.study.sampleIndependent(name, dist)
	}
	v := dist.ToExternal(x)
	t.params[name] = v
	t.dists[name] = dist
	return v, nil
}

// SuggestFloat draws a float64 from [low, high], log-uniformly when log is set.
func (t *Trial) SuggestFloat(name string, low, high float64, log bool) (float64, error) {
	v, err := t.Suggest(name, FloatDistribution{Low: low, High: high, Log: log})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// SuggestInt draws an integer from [low, high].
func (t *Trial) SuggestInt(name string, low, high int) (int, error) {
	v, err := t.Suggest(name, IntDistribution{Low: low, High: high})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// SuggestCategorical draws one of choices.
func (t *Trial) SuggestCategorical(name string, choices ...interface{}) (interface{}, error) {
	return t.Suggest(name, CategoricalDistribution{Choices: choices})
}

// Report records an intermediate objective value at step. Reporting the same
// step twice keeps the first value.
func (t *Trial) Report(step int, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.intermediate[step]; ok {
		return
	}
	t.intermediate[step] = value
}

// ShouldPrune asks the study's pruner whether the trial should stop at its
// latest reported step.
func (t *Trial) ShouldPrune() bool {
	frozen := t.snapshot(TrialRunning, math.NaN(), "")
	return t.study.shouldPrune(frozen)
}

func (t *Trial) snapshot(state TrialState, value float64, errMsg string) FrozenTrial {
	t.mu.Lock()
	defer t.mu.Unlock()
	ft := FrozenTrial{
		Number:             t.number,
		State:              state,
		Value:              value,
		Params:             make(Params, len(t.params)),
		Distributions:      make(map[string]Distribution, len(t.dists)),
		IntermediateValues: make(map[int]float64, len(t.intermediate)),
		DatetimeStart:      t.start,
		Err:                errMsg,
	}
	for k, v := range t.params {
		ft.Params[k] = v
	}
	for k, v := range t.dists {
		ft.Distributions[k] = v
	}
	for k, v := range t.intermediate {
		ft.IntermediateValues[k] = v
	}
	return ft
}
