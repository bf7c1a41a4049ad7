package tuning

import (
	"math"
	"math/rand/v2"
	"slices"
)

// DefaultGamma returns the number of "good" observations for n finished
// trials: ceil(0.1·n), capped at 25.
func DefaultGamma(n int) int {
	return min(int(math.Ceil(0.1*float64(n))), 25)
}

// defaultWeights gives older observations lower weight once more than 25
// are available.
func defaultWeights(n int) []float64 {
	w := make([]float64, n)
	if n < 25 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	ramp := n - 25
	for i := 0; i < ramp; i++ {
		if ramp == 1 {
			w[i] = 1 / float64(n)
			continue
		}
		w[i] = 1/float64(n) + (1-1/float64(n))*float64(i)/float64(ramp-1)
	}
	for i := ramp; i < n; i++ {
		w[i] = 1
	}
	return w
}

// TPESampler is a Tree-structured Parzen Estimator. It splits finished trials
// into a good and a bad group by value, fits a Parzen mixture to each and
// proposes the candidate maximising l(x)/g(x).
type TPESampler struct {
	rng *rand.Rand

	NStartupTrials int
	NEICandidates  int
	Multivariate   bool
	PriorWeight    float64
	Gamma          func(n int) int
}

// TPEOption configures a TPESampler.
type TPEOption func(*TPESampler)

// WithStartupTrials sets how many complete trials are sampled at random
// before the model is used.
func WithStartupTrials(n int) TPEOption { return func(s *TPESampler) { s.NStartupTrials = n } }

// WithEICandidates sets how many candidates are scored per draw.
func WithEICandidates(n int) TPEOption { return func(s *TPESampler) { s.NEICandidates = n } }

// WithMultivariate samples the shared search space jointly.
func WithMultivariate(on bool) TPEOption { return func(s *TPESampler) { s.Multivariate = on } }

// WithGamma overrides DefaultGamma.
func WithGamma(g func(n int) int) TPEOption { return func(s *TPESampler) { s.Gamma = g } }

// NewTPESampler returns a seeded TPESampler.
func NewTPESampler(seed uint64, opts ...TPEOption) *TPESampler {
	s := &TPESampler{
		rng:            newRand(seed),
		NStartupTrials: 10,
		NEICandidates:  24,
		PriorWeight:    1,
		Gamma:          DefaultGamma,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TPESampler) InferRelativeSearchSpace(history []FrozenTrial) SearchSpace {
	if !s.Multivariate {
		return nil
	}
	return intersectionSearchSpace(history)
}

func (s *TPESampler) SampleRelative(history []FrozenTrial, space SearchSpace) map[string]float64 {
	if len(space) == 0 {
		return nil
	}
	names := space.Names()
	trials := completeWith(history, names, space)
	if len(trials) < s.NStartupTrials || len(trials) == 0 {
		return nil
	}
	dims := make([]dimension, len(names))
	for i, name := range names {
		dims[i] = newDimension(space[name])
	}

	best := s.sample(trials, names, dims)
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = best[i]
	}
	return out
}

func (s *TPESampler) SampleIndependent(history []FrozenTrial, name string, dist Distribution) float64 {
	if dist.Single() {
		return singleValue(dist)
	}
	if countComplete(history) < s.NStartupTrials {
		return sampleUniform(s.rng, dist)
	}
	names := []string{name}
	trials := completeWith(history, names, SearchSpace{name: dist})
	if len(trials) == 0 {
		return sampleUniform(s.rng, dist)
	}
	return s.sample(trials, names, []dimension{newDimension(dist)})[0]
}

func (s *TPESampler) sample(trials []FrozenTrial, names []string, dims []dimension) []float64 {
	below, above := splitTrials(trials, s.Gamma(len(trials)))
	l := newParzenEstimator(dims, observations(below, names), defaultWeights(len(below)), s.PriorWeight)
	g := newParzenEstimator(dims, observations(above, names), defaultWeights(len(above)), s.PriorWeight)

	candidates := l.sample(s.rng, max(s.NEICandidates, 1))
	bestIdx, bestScore := 0, math.Inf(-1)
	for i, c := range candidates {
		score := l.logPDF(c) - g.logPDF(c)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return candidates[bestIdx]
}

// splitTrials ranks trials by value and returns the best nBelow and the rest,
// each ordered by trial number.
func splitTrials(trials []FrozenTrial, nBelow int) (below, above []FrozenTrial) {
	ranked := slices.Clone(trials)
	slices.SortStableFunc(ranked, func(a, b FrozenTrial) int {
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return a.Number - b.Number
	})
	nBelow = min(max(nBelow, 0), len(ranked))
	below, above = ranked[:nBelow], ranked[nBelow:]
	byNumber := func(a, b FrozenTrial) int { return a.Number - b.Number }
	slices.SortFunc(below, byNumber)
	slices.SortFunc(above, byNumber)
	return below, above
}

func observations(trials []FrozenTrial, names []string) [][]float64 {
	obs := make([][]float64, len(trials))
	for i, t := range trials {
		row := make([]float64, len(names))
		for j, name := range names {
			row[j], _ = t.internal(name)
		}
		obs[i] = row
	}
	return obs
}

// completeWith returns the complete trials that drew every name from the
// same distribution as space.
func completeWith(history []FrozenTrial, names []string, space SearchSpace) []FrozenTrial {
	var out []FrozenTrial
outer:
	for _, t := range history {
		if t.State != TrialComplete {
			continue
		}
		for _, name := range names {
			d, ok := t.Distributions[name]
			if !ok || !sameDistribution(d, space[name]) {
				continue outer
			}
			if _, ok := t.internal(name); !ok {
				continue outer
			}
		}
		out = append(out, t)
	}
	return out
}

func countComplete(history []FrozenTrial) int {
	n := 0
	for _, t := range history {
		if t.State == TrialComplete {
			n++
		}
	}
	return n
}

func singleValue(dist Distribution) float64 {
	switch d := dist.(type) {
	case FloatDistribution:
		return d.Low
	case IntDistribution:
		return float64(d.Low)
	}
	return 0
}
