package tuning

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/estateml/estateml/pkg/errors"
)

// sigma0 scales the Scott-rule kernel bandwidth.
const sigma0 = 0.2

// dimension maps one distribution to the space the kernels live in: log
// space for log-scaled ranges, with integer ranges widened by half a step.
type dimension struct {
	dist    Distribution
	low     float64
	high    float64
	log     bool
	choices int // > 0 for categorical dimensions
}

func newDimension(dist Distribution) dimension {
	switch d := dist.(type) {
	case FloatDistribution:
		dim := dimension{dist: d, low: d.Low, high: d.High, log: d.Log}
		if d.Log {
			dim.low, dim.high = math.Log(d.Low), math.Log(d.High)
		}
		return dim
	case IntDistribution:
		lo, hi := float64(d.Low)-0.5, float64(d.High)+0.5
		dim := dimension{dist: d, low: lo, high: hi, log: d.Log}
		if d.Log {
			dim.low, dim.high = math.Log(lo), math.Log(hi)
		}
		return dim
	case CategoricalDistribution:
		return dimension{dist: d, choices: len(d.Choices)}
	}
	return dimension{dist: dist}
}

func (d dimension) transform(x float64) float64 {
	if d.log {
		return math.Log(x)
	}
	return x
}

func (d dimension) untransform(y float64) float64 {
	x := y
	if d.log {
		x = math.Exp(y)
	}
	switch dist := d.dist.(type) {
	case IntDistribution:
		return clamp(math.Round(x), float64(dist.Low), float64(dist.High))
	case FloatDistribution:
		return clamp(x, dist.Low, dist.High)
	}
	return x
}

// parzenEstimator is a weighted mixture with one component per observation
// plus a wide prior component. Each component is a product of truncated
// normals over numeric dimensions and smoothed one-hot distributions over
// categorical ones.
type parzenEstimator struct {
	dims       []dimension
	logWeights []float64
	weights    []float64
	mus        [][]float64   // [component][dimension]
	sigmas     [][]float64   // [component][dimension]
	catProbs   [][][]float64 // [component][dimension][choice]
}

// newParzenEstimator builds the mixture from observations given as internal
// values per dimension. obsWeights must have one entry per observation.
func newParzenEstimator(dims []dimension, obs [][]float64, obsWeights []float64, priorWeight float64) *parzenEstimator {
	n := len(obs)
	nComp := n + 1
	pe := &parzenEstimator{
		dims:     dims,
		weights:  make([]float64, nComp),
		mus:      make([][]float64, nComp),
		sigmas:   make([][]float64, nComp),
		catProbs: make([][][]float64, nComp),
	}

	total := priorWeight
	for _, w := range obsWeights {
		total += w
	}
	for k := 0; k < n; k++ {
		pe.weights[k] = obsWeights[k] / total
	}
	pe.weights[n] = priorWeight / total
	pe.logWeights = make([]float64, nComp)
	for k, w := range pe.weights {
		pe.logWeights[k] = math.Log(w)
	}

	bandwidth := sigma0 * math.Pow(math.Max(float64(n), 1), -1/(float64(len(dims))+4))
	for k := 0; k < nComp; k++ {
		pe.mus[k] = make([]float64, len(dims))
		pe.sigmas[k] = make([]float64, len(dims))
		pe.catProbs[k] = make([][]float64, len(dims))
		prior := k == n
		for j, dim := range dims {
			if dim.choices > 0 {
				probs := make([]float64, dim.choices)
				if prior {
					for c := range probs {
						probs[c] = 1 / float64(dim.choices)
					}
				} else {
					for c := range probs {
						probs[c] = priorWeight / float64(dim.choices)
					}
					probs[int(obs[k][j])]++
					for c := range probs {
						probs[c] /= 1 + priorWeight
					}
				}
				pe.catProbs[k][j] = probs
				continue
			}
			width := dim.high - dim.low
			if prior {
				pe.mus[k][j] = (dim.low + dim.high) / 2
				pe.sigmas[k][j] = width
			} else {
				pe.mus[k][j] = dim.transform(obs[k][j])
				pe.sigmas[k][j] = bandwidth * width
			}
		}
	}
	return pe
}

// sample draws n points in internal representation.
func (pe *parzenEstimator) sample(rng *rand.Rand, n int) [][]float64 {
	picker := distuv.NewCategorical(pe.weights, rng)
	out := make([][]float64, n)
	for i := range out {
		k := int(picker.Rand())
		x := make([]float64, len(pe.dims))
		for j, dim := range pe.dims {
			if dim.choices > 0 {
				x[j] = distuv.NewCategorical(pe.catProbs[k][j], rng).Rand()
				continue
			}
			normal := distuv.Normal{Mu: pe.mus[k][j], Sigma: pe.sigmas[k][j]}
			a, b := normal.CDF(dim.low), normal.CDF(dim.high)
			y := normal.Quantile(a + rng.Float64()*(b-a))
			x[j] = dim.untransform(clamp(y, dim.low, dim.high))
		}
		out[i] = x
	}
	return out
}

// logPDF returns the log density of an internal point under the mixture.
func (pe *parzenEstimator) logPDF(x []float64) float64 {
	terms := make([]float64, len(pe.weights))
	for k := range pe.weights {
		lp := pe.logWeights[k]
		for j, dim := range pe.dims {
			if dim.choices > 0 {
				lp += math.Log(pe.catProbs[k][j][int(x[j])])
				continue
			}
			normal := distuv.Normal{Mu: pe.mus[k][j], Sigma: pe.sigmas[k][j]}
			mass := normal.CDF(dim.high) - normal.CDF(dim.low)
			lp += normal.LogProb(dim.transform(x[j])) - math.Log(math.Max(mass, 1e-300))
		}
		terms[k] = lp
	}
	return errors.LogSumExp(terms)
}
