package ml

import (
	"errors"
	"fmt"
	"slices"
)

// TreeOptions bound the growth of a trained tree.
type TreeOptions struct {
	MaxDepth       int
	MinSamplesLeaf int
}

// TrainDecisionTree grows a CART tree on rows with Gini impurity. labels are
// class indexes in [0, classCount). Every leaf keeps its training class counts
// so the tree can report probabilities.
func TrainDecisionTree(rows [][]float64, labels []int, classCount int, opts TreeOptions) (*DecisionTree, error) {
	if len(rows) == 0 || len(labels) == 0 {
		return nil, errors.New("features or labels empty")
	}
	if len(rows) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	if classCount <= 0 {
		return nil, errors.New("class count must be positive")
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
		if labels[i] < 0 || labels[i] >= classCount {
			return nil, fmt.Errorf("row %d: label %d out of range", i, labels[i])
		}
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 8
	}
	if opts.MinSamplesLeaf <= 0 {
		opts.MinSamplesLeaf = 1
	}

	b := &treeBuilder{rows: rows, labels: labels, classCount: classCount, opts: opts}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	b.build(idx, 0)

	tree := &DecisionTree{Nodes: b.nodes}
	if err := tree.check(width, classCount); err != nil {
		return nil, fmt.Errorf("trained tree is inconsistent: %w", err)
	}
	return tree, nil
}

type treeBuilder struct {
	rows       [][]float64
	labels     []int
	classCount int
	opts       TreeOptions
	nodes      []TreeNode
}

// build appends the subtree for idx in pre-order and returns its root index, so
// children always sit after their parent.
func (b *treeBuilder) build(idx []int, depth int) int {
	counts := b.classCounts(idx)
	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: majorityLabel(counts),
		IsLeaf:     true,
		Value:      counts,
	})

	if depth >= b.opts.MaxDepth || isPure(counts) || len(idx) < 2*b.opts.MinSamplesLeaf {
		return self
	}
	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node := &b.nodes[self]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.Value = nil

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self].LeftChild = l
	b.nodes[self].RightChild = r
	return self
}

// bestSplit sweeps every feature in sorted order and returns the midpoint
// threshold with the lowest weighted Gini impurity.
func (b *treeBuilder) bestSplit(idx []int, total []float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := gini(total, float64(len(idx)))
	minLeaf := b.opts.MinSamplesLeaf

	order := slices.Clone(idx)
	left := make([]float64, b.classCount)
	right := make([]float64, b.classCount)
	for feature := range b.rows[idx[0]] {
		slices.SortFunc(order, func(x, y int) int {
			switch vx, vy := b.rows[x][feature], b.rows[y][feature]; {
			case vx < vy:
				return -1
			case vx > vy:
				return 1
			}
			return 0
		})
		clear(left)
		copy(right, total)

		n := float64(len(order))
		for k := 0; k < len(order)-1; k++ {
			label := b.labels[order[k]]
			left[label]++
			right[label]--

			nLeft := k + 1
			nRight := len(order) - nLeft
			cur, next := b.rows[order[k]][feature], b.rows[order[k+1]][feature]
			if cur == next || nLeft < minLeaf || nRight < minLeaf {
				continue
			}
			impurity := (float64(nLeft)/n)*gini(left, float64(nLeft)) +
				(float64(nRight)/n)*gini(right, float64(nRight))
			if impurity < bestImpurity-1e-12 {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) classCounts(idx []int) []float64 {
	counts := make([]float64, b.classCount)
	for _, i := range idx {
		counts[b.labels[i]]++
	}
	return counts
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / n
		impurity -= p * p
	}
	return impurity
}

// majorityLabel breaks ties towards the lower class index.
func majorityLabel(counts []float64) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
