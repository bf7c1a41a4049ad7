package boosting

import (
	"math"
	"slices"
)

// NodeType represents the type of a tree node
type NodeType int

const (
	// LeafNode represents a terminal node with a value
	LeafNode NodeType = iota
	// NumericalNode sends x <= Threshold to the left child
	NumericalNode
	// CategoricalNode sends codes listed in Categories to the left child
	CategoricalNode
)

// Node represents a single node in a decision tree
type Node struct {
	NodeType   NodeType
	LeftChild  int // -1 for leaves
	RightChild int // -1 for leaves

	SplitFeature int
	Threshold    float64
	Categories   []int // sorted
	Gain         float64

	LeafValue float64
	LeafCount int
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.NodeType == LeafNode
}

// Tree represents a single decision tree in the ensemble. Node 0 is the root.
type Tree struct {
	Nodes         []Node
	ShrinkageRate float64
}

// Predict returns the shrunk leaf value reached by features.
// NaN numeric values and unknown category codes go right.
func (t *Tree) Predict(features []float64) float64 {
	return t.Nodes[t.leafIndex(features)].LeafValue * t.ShrinkageRate
}

func (t *Tree) leafIndex(features []float64) int {
	id := 0
	for {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return id
		}
		v := features[node.SplitFeature]
		left := false
		switch node.NodeType {
		case NumericalNode:
			left = !math.IsNaN(v) && v <= node.Threshold
		case CategoricalNode:
			_, left = slices.BinarySearch(node.Categories, categoryCode(v))
		}
		if left {
			id = node.LeftChild
		} else {
			id = node.RightChild
		}
	}
}

// NumLeaves counts the leaves of the tree.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(id int) int
	walk = func(id int) int {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.LeftChild), walk(n.RightChild))
	}
	return walk(0)
}

// Ensemble is a fitted sequence of trees on top of a constant initial score.
type Ensemble struct {
	InitScore    float64
	LearningRate float64
	NumFeatures  int
	Trees        []Tree
	// FeatureGain is the summed split gain per feature.
	FeatureGain []float64
}

// PredictRow predicts a single row.
func (e *Ensemble) PredictRow(features []float64) float64 {
	pred := e.InitScore
	for i := range e.Trees {
		pred += e.Trees[i].Predict(features)
	}
	return pred
}

// FeatureImportance returns FeatureGain normalised to sum to 100.
func (e *Ensemble) FeatureImportance() []float64 {
	out := make([]float64, len(e.FeatureGain))
	total := 0.0
	for _, g := range e.FeatureGain {
		total += g
	}
	if total == 0 {
		return out
	}
	for i, g := range e.FeatureGain {
		out[i] = 100 * g / total
	}
	return out
}
