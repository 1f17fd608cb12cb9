package ml

import (
	"errors"
	"fmt"
)

// DecisionTree is a binary tree exported from the training pipeline. Node 0 is the root.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`

	classCount int
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Value      []float64 `json:"value,omitempty"`
}

func (dt *DecisionTree) Predict(v FeatureVector) (int, error) {
	leaf, err := dt.leaf(v)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

// PredictProba returns the normalised class counts of the reached leaf. Leaves
// without counts put all mass on their label.
func (dt *DecisionTree) PredictProba(v FeatureVector) ([]float64, error) {
	leaf, err := dt.leaf(v)
	if err != nil {
		return nil, err
	}
	if probs := leafDistribution(leaf); probs != nil {
		return probs, nil
	}
	if leaf.ClassLabel < 0 {
		return nil, errors.New("leaf has no class label")
	}
	n := dt.classCount
	if n <= leaf.ClassLabel {
		n = leaf.ClassLabel + 1
	}
	probs := make([]float64, n)
	probs[leaf.ClassLabel] = 1
	return probs, nil
}

func (dt *DecisionTree) leaf(v FeatureVector) (TreeNode, error) {
	if len(dt.Nodes) == 0 {
		return TreeNode{}, errors.New("model not trained")
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= v.Len() {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if v.At(node.FeatureIdx) <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
	return TreeNode{}, errors.New("tree contains a cycle")
}

func (dt *DecisionTree) check(featureCount, classCount int) error {
	if len(dt.Nodes) == 0 {
		return errors.New("decision tree has no nodes")
	}
	dt.classCount = classCount
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= classCount {
				return fmt.Errorf("node %d: class label %d out of range", i, node.ClassLabel)
			}
			if len(node.Value) != 0 && len(node.Value) != classCount {
				return fmt.Errorf("node %d: %d class counts, want %d", i, len(node.Value), classCount)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) || node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func leafDistribution(leaf TreeNode) []float64 {
	total := 0.0
	for _, count := range leaf.Value {
		total += count
	}
	if total <= 0 {
		return nil
	}
	probs := make([]float64, len(leaf.Value))
	for i, count := range leaf.Value {
		probs[i] = count / total
	}
	return probs
}
