package boosting

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/estateml/estateml/core/parallel"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// evalSet is an optional held-out set scored after every iteration.
type evalSet struct {
	rows  [][]float64
	y     []float64
	preds []float64
}

// trainer grows an Ensemble with second-order gradient boosting on the
// squared error loss. Trees are symmetric in depth only: every node is split
// depth-first until Depth is reached or no split has positive gain.
type trainer struct {
	params    Params
	logger    log.Logger
	callbacks []Callback

	rows  [][]float64
	y     []float64
	bins  []featureBins
	grad  []float64
	preds []float64
	eval  *evalSet

	rng         *rand.Rand
	featureGain []float64
}

// splitInfo is the best split found for a single feature.
type splitInfo struct {
	valid      bool
	feature    int
	gain       float64
	bin        int
	threshold  float64
	categories []int
}

func newTrainer(params Params, logger log.Logger, callbacks []Callback) *trainer {
	return &trainer{
		params:    params,
		logger:    logger,
		callbacks: callbacks,
		rng:       rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
	}
}

func (t *trainer) initialize(rows [][]float64, y []float64, numFeatures int) {
	t.rows = rows
	t.y = y
	categorical := make(map[int]bool, len(t.params.CategoricalFeatures))
	for _, j := range t.params.CategoricalFeatures {
		categorical[j] = true
	}
	t.bins = binMatrix(rows, numFeatures, t.params.BorderCount, categorical)
	t.grad = make([]float64, len(y))
	t.preds = make([]float64, len(y))
	t.featureGain = make([]float64, numFeatures)
}

func (t *trainer) train(ctx context.Context, rows [][]float64, y []float64, numFeatures int) (*Ensemble, error) {
	t.initialize(rows, y, numFeatures)

	init := 0.0
	for _, v := range y {
		init += v
	}
	init /= float64(len(y))
	for i := range t.preds {
		t.preds[i] = init
	}
	if t.eval != nil {
		t.eval.preds = make([]float64, len(t.eval.y))
		for i := range t.eval.preds {
			t.eval.preds[i] = init
		}
	}

	ens := &Ensemble{
		InitScore:    init,
		LearningRate: t.params.LearningRate,
		NumFeatures:  numFeatures,
		Trees:        make([]Tree, 0, t.params.Iterations),
	}
	env := &CallbackEnv{Ensemble: ens, BeginTime: time.Now(), BestIteration: -1}

	for it := 0; it < t.params.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "boosting: training interrupted at iteration %d", it)
		}

		t.calculateGradients()
		tree := t.buildTree()
		ens.Trees = append(ens.Trees, tree)

		results := map[string]float64{EvalTrain: rmse(t.y, t.preds)}
		if err := errors.CheckScalar("boosting.train", results[EvalTrain], it); err != nil {
			return nil, err
		}
		if t.eval != nil {
			for i, row := range t.eval.rows {
				t.eval.preds[i] += tree.Predict(row)
			}
			results[EvalValid] = rmse(t.eval.y, t.eval.preds)
		}

		env.Iteration = it
		env.EvalResults = results
		for _, cb := range t.callbacks {
			if err := cb(env); err != nil {
				return nil, err
			}
		}
		if env.StopTraining {
			t.logger.Debug("boosting stopped early",
				log.IterationKey, it,
				"best_iteration", env.BestIteration,
			)
			break
		}
	}

	if env.BestIteration >= 0 && env.BestIteration+1 < len(ens.Trees) {
		ens.Trees = ens.Trees[:env.BestIteration+1]
	}
	ens.FeatureGain = t.featureGain
	return ens, nil
}

func (t *trainer) calculateGradients() {
	for i := range t.grad {
		t.grad[i] = t.preds[i] - t.y[i]
	}
}

func (t *trainer) buildTree() Tree {
	tree := Tree{ShrinkageRate: t.params.LearningRate}
	indices := make([]int, len(t.y))
	for i := range indices {
		indices[i] = i
	}
	t.buildNode(&tree, indices, 0)
	return tree
}

func (t *trainer) buildNode(tree *Tree, indices []int, depth int) int {
	nodeIdx := len(tree.Nodes)

	if depth >= t.params.Depth || len(indices) < 2*t.params.MinDataInLeaf {
		return t.makeLeaf(tree, indices)
	}

	best := t.findBestSplit(indices)
	if !best.valid || best.gain <= 0 {
		return t.makeLeaf(tree, indices)
	}

	node := Node{
		NodeType:     NumericalNode,
		SplitFeature: best.feature,
		Threshold:    best.threshold,
		Gain:         best.gain,
	}
	if t.bins[best.feature].categorical {
		node.NodeType = CategoricalNode
		node.Categories = best.categories
	}
	tree.Nodes = append(tree.Nodes, node)
	t.featureGain[best.feature] += best.gain

	leftIndices, rightIndices := t.splitData(indices, best)
	leftChild := t.buildNode(tree, leftIndices, depth+1)
	rightChild := t.buildNode(tree, rightIndices, depth+1)

	tree.Nodes[nodeIdx].LeftChild = leftChild
	tree.Nodes[nodeIdx].RightChild = rightChild
	return nodeIdx
}

func (t *trainer) makeLeaf(tree *Tree, indices []int) int {
	nodeIdx := len(tree.Nodes)
	value := t.calculateLeafValue(indices)
	tree.Nodes = append(tree.Nodes, Node{
		NodeType:   LeafNode,
		LeftChild:  -1,
		RightChild: -1,
		LeafValue:  value,
		LeafCount:  len(indices),
	})
	for _, i := range indices {
		t.preds[i] += t.params.LearningRate * value
	}
	return nodeIdx
}

// findBestSplit scans every feature concurrently and then picks the winner
// sequentially so that the random-strength noise stays reproducible.
func (t *trainer) findBestSplit(indices []int) splitInfo {
	sumGrad, sumGrad2 := 0.0, 0.0
	for _, i := range indices {
		sumGrad += t.grad[i]
		sumGrad2 += t.grad[i] * t.grad[i]
	}
	sumHess := float64(len(indices))

	candidates := make([]splitInfo, len(t.bins))
	parallel.ParallelizeWithThreshold(len(t.bins), 1, func(start, end int) {
		for j := start; j < end; j++ {
			candidates[j] = t.findBestSplitForFeature(indices, j, sumGrad, sumHess)
		}
	})

	noiseScale := t.params.RandomStrength * sumGrad2 / sumHess
	best := splitInfo{}
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		if !c.valid {
			continue
		}
		score := c.gain
		if noiseScale > 0 {
			score += noiseScale * t.rng.NormFloat64()
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

func (t *trainer) findBestSplitForFeature(indices []int, feature int, sumGrad, sumHess float64) splitInfo {
	fb := &t.bins[feature]
	gradHist := make([]float64, fb.numSlots)
	countHist := make([]int, fb.numSlots)
	for _, i := range indices {
		s := fb.slots[i]
		gradHist[s] += t.grad[i]
		countHist[s]++
	}
	if fb.categorical {
		return t.bestCategoricalSplit(fb, feature, gradHist, countHist, sumGrad, sumHess)
	}

	best := splitInfo{feature: feature}
	minData := t.params.MinDataInLeaf
	leftGrad, leftCount := 0.0, 0
	for b := 0; b < len(fb.borders); b++ {
		leftGrad += gradHist[b]
		leftCount += countHist[b]
		rightCount := len(indices) - leftCount
		if countHist[b] == 0 || leftCount < minData {
			continue
		}
		if rightCount < minData {
			break
		}
		gain := t.calculateSplitGain(leftGrad, float64(leftCount), sumGrad-leftGrad, float64(rightCount), sumGrad, sumHess)
		if !best.valid || gain > best.gain {
			best.valid = true
			best.gain = gain
			best.bin = b
			best.threshold = fb.borders[b]
		}
	}
	return best
}

// bestCategoricalSplit orders the categories present in the node by their
// leaf value and scans prefixes of that order. Unknown codes always go right.
func (t *trainer) bestCategoricalSplit(fb *featureBins, feature int, gradHist []float64, countHist []int, sumGrad, sumHess float64) splitInfo {
	best := splitInfo{feature: feature}
	slotsPresent := make([]int, 0, fb.numSlots)
	for s := 1; s < fb.numSlots; s++ {
		if countHist[s] > 0 {
			slotsPresent = append(slotsPresent, s)
		}
	}
	if len(slotsPresent) < 2 && countHist[0] == 0 {
		return best
	}

	lambda := t.params.L2LeafReg
	sort.SliceStable(slotsPresent, func(a, b int) bool {
		sa, sb := slotsPresent[a], slotsPresent[b]
		return gradHist[sa]/(float64(countHist[sa])+lambda) < gradHist[sb]/(float64(countHist[sb])+lambda)
	})

	total := int(sumHess)
	minData := t.params.MinDataInLeaf
	leftGrad, leftCount := 0.0, 0
	bestK := -1
	for k, s := range slotsPresent {
		leftGrad += gradHist[s]
		leftCount += countHist[s]
		rightCount := total - leftCount
		if rightCount == 0 {
			break
		}
		if leftCount < minData || rightCount < minData {
			continue
		}
		gain := t.calculateSplitGain(leftGrad, float64(leftCount), sumGrad-leftGrad, float64(rightCount), sumGrad, sumHess)
		if bestK < 0 || gain > best.gain {
			best.valid = true
			best.gain = gain
			bestK = k
		}
	}
	if bestK < 0 {
		return best
	}
	best.categories = make([]int, 0, bestK+1)
	for _, s := range slotsPresent[:bestK+1] {
		best.categories = append(best.categories, s-1)
	}
	slices.Sort(best.categories)
	return best
}

func (t *trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := t.params.L2LeafReg
	return 0.5 * (leftGrad*leftGrad/(leftHess+lambda) +
		rightGrad*rightGrad/(rightHess+lambda) -
		totalGrad*totalGrad/(totalHess+lambda))
}

func (t *trainer) splitData(indices []int, split splitInfo) ([]int, []int) {
	fb := &t.bins[split.feature]
	var goLeft func(slot uint32) bool
	if fb.categorical {
		left := make([]bool, fb.numSlots)
		for _, c := range split.categories {
			left[c+1] = true
		}
		goLeft = func(slot uint32) bool { return left[slot] }
	} else {
		goLeft = func(slot uint32) bool { return int(slot) <= split.bin }
	}

	leftIndices := make([]int, 0, len(indices))
	rightIndices := make([]int, 0, len(indices))
	for _, i := range indices {
		if goLeft(fb.slots[i]) {
			leftIndices = append(leftIndices, i)
		} else {
			rightIndices = append(rightIndices, i)
		}
	}
	return leftIndices, rightIndices
}

func (t *trainer) calculateLeafValue(indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	sumGrad := 0.0
	for _, i := range indices {
		sumGrad += t.grad[i]
	}
	return -sumGrad / (float64(len(indices)) + t.params.L2LeafReg)
}

func rmse(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	sum := 0.0
	for i := range y {
		d := y[i] - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(y)))
}
