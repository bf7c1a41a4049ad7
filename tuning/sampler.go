package tuning

import (
	"math"
	"math/rand/v2"
)

// Sampler proposes hyperparameter values from the history of finished trials.
// The study serialises every call, so implementations need no locking.
type Sampler interface {
	// InferRelativeSearchSpace returns the parameters to sample jointly at
	// the start of a trial. A nil space disables relative sampling.
	InferRelativeSearchSpace(history []FrozenTrial) SearchSpace
	// SampleRelative draws internal values for every parameter of space.
	SampleRelative(history []FrozenTrial, space SearchSpace) map[string]float64
	// SampleIndependent draws an internal value for a single parameter.
	SampleIndependent(history []FrozenTrial, name string, dist Distribution) float64
}

// RandomSampler draws every parameter independently and uniformly.
type RandomSampler struct {
	rng *rand.Rand
}

// NewRandomSampler returns a RandomSampler seeded with seed.
func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{rng: newRand(seed)}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
}

func (s *RandomSampler) InferRelativeSearchSpace([]FrozenTrial) SearchSpace { return nil }

func (s *RandomSampler) SampleRelative([]FrozenTrial, SearchSpace) map[string]float64 { return nil }

func (s *RandomSampler) SampleIndependent(_ []FrozenTrial, _ string, dist Distribution) float64 {
	return sampleUniform(s.rng, dist)
}

func sampleUniform(rng *rand.Rand, dist Distribution) float64 {
	switch d := dist.(type) {
	case FloatDistribution:
		if d.Log {
			lo, hi := math.Log(d.Low), math.Log(d.High)
			return clamp(math.Exp(lo+rng.Float64()*(hi-lo)), d.Low, d.High)
		}
		return d.Low + rng.Float64()*(d.High-d.Low)
	case IntDistribution:
		if d.Log {
			lo, hi := math.Log(float64(d.Low)-0.5), math.Log(float64(d.High)+0.5)
			return clamp(math.Round(math.Exp(lo+rng.Float64()*(hi-lo))), float64(d.Low), float64(d.High))
		}
		return float64(d.Low + rng.IntN(d.High-d.Low+1))
	case CategoricalDistribution:
		return float64(rng.IntN(len(d.Choices)))
	}
	return math.NaN()
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
