package tuning

import (
	"math"
	"slices"
)

// Pruner decides whether a running trial should stop early.
type Pruner interface {
	Prune(history []FrozenTrial, trial FrozenTrial) bool
}

// NopPruner never prunes.
type NopPruner struct{}

func (NopPruner) Prune([]FrozenTrial, FrozenTrial) bool { return false }

// MedianPruner prunes a trial whose best intermediate value so far is worse
// than the median of the values complete trials reported at the same step.
type MedianPruner struct {
	// NStartupTrials complete trials are required before pruning starts.
	NStartupTrials int
	// NWarmupSteps steps of every trial are never pruned.
	NWarmupSteps int
	// IntervalSteps is the step interval between pruning checks.
	IntervalSteps int
}

// NewMedianPruner returns a MedianPruner with 5 startup trials, no warmup
// and a check at every step.
func NewMedianPruner() *MedianPruner {
	return &MedianPruner{NStartupTrials: 5, IntervalSteps: 1}
}

func (p *MedianPruner) Prune(history []FrozenTrial, trial FrozenTrial) bool {
	step := trial.lastStep()
	if step < 0 || step < p.NWarmupSteps {
		return false
	}
	if interval := max(p.IntervalSteps, 1); (step-p.NWarmupSteps)%interval != 0 {
		return false
	}
	if countComplete(history) < p.NStartupTrials {
		return false
	}

	var others []float64
	for _, t := range history {
		if t.State != TrialComplete || t.Number == trial.Number {
			continue
		}
		if v, ok := t.IntermediateValues[step]; ok && !math.IsNaN(v) {
			others = append(others, v)
		}
	}
	if len(others) == 0 {
		return false
	}

	best := math.Inf(1)
	for s, v := range trial.IntermediateValues {
		if s <= step && v < best {
			best = v
		}
	}
	if math.IsInf(best, 1) {
		return true
	}
	return best > median(others)
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
