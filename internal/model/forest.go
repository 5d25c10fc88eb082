package model

import (
	"fmt"
	"math/rand"
	"sort"
)

// ForestRegressor is a bagged ensemble of regression trees. Trees differ
// only by the bootstrap sample each is grown on; splits themselves are
// exhaustive over all features. The seed fixes the bootstrap draws, so a
// fitted forest is fully deterministic.
type ForestRegressor struct {
	NEstimators int         `json:"n_estimators"`
	MaxDepth    int         `json:"max_depth"` // 0 means unbounded
	MinLeaf     int         `json:"min_leaf"`
	Seed        int64       `json:"seed"`
	NumFeatures int         `json:"num_features"`
	Trees       []*treeNode `json:"trees,omitempty"`
}

// treeNode is one node of a regression tree. Leaves carry the mean target
// of their training rows; internal nodes route on feature <= threshold.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	Leaf      bool      `json:"leaf"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

// NewForestRegressor creates an unfitted forest of the given size.
func NewForestRegressor(nEstimators int) *ForestRegressor {
	return &ForestRegressor{NEstimators: nEstimators, MinLeaf: 1}
}

// SetSeed fixes the randomness of the bootstrap draws.
func (f *ForestRegressor) SetSeed(seed int64) {
	f.Seed = seed
}

// Fit grows NEstimators trees, each on an independent with-replacement
// resample of the training rows. Refitting replaces any previous trees.
func (f *ForestRegressor) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("forest fit: %d rows for %d targets", len(x), len(y))
	}
	if f.NEstimators < 1 {
		return fmt.Errorf("forest fit: n_estimators must be positive, got %d", f.NEstimators)
	}
	f.NumFeatures = len(x[0])
	f.Trees = make([]*treeNode, f.NEstimators)
	rng := rand.New(rand.NewSource(f.Seed))
	for t := range f.Trees {
		indices := make([]int, len(x))
		for i := range indices {
			indices[i] = rng.Intn(len(x))
		}
		f.Trees[t] = growTree(x, y, indices, 1, f.MaxDepth, f.MinLeaf)
	}
	return nil
}

// Predict averages the per-tree predictions for each row.
func (f *ForestRegressor) Predict(x [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != f.NumFeatures {
			return nil, fmt.Errorf("forest predict: row %d has %d features, trained on %d", i, len(row), f.NumFeatures)
		}
		sum := 0.0
		for _, tree := range f.Trees {
			sum += tree.eval(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

// Clone returns a fresh unfitted forest with the same hyperparameters.
func (f *ForestRegressor) Clone() Estimator {
	return &ForestRegressor{
		NEstimators: f.NEstimators,
		MaxDepth:    f.MaxDepth,
		MinLeaf:     f.MinLeaf,
		Seed:        f.Seed,
	}
}

func (n *treeNode) eval(row []float64) float64 {
	for !n.Leaf {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// growTree builds one CART regression tree node over the given row
// indices, splitting greedily on the feature/threshold pair that minimizes
// the summed squared error of the two children.
func growTree(x [][]float64, y []float64, indices []int, depth, maxDepth, minLeaf int) *treeNode {
	mean := 0.0
	for _, i := range indices {
		mean += y[i]
	}
	mean /= float64(len(indices))

	if len(indices) < 2*minLeaf || (maxDepth > 0 && depth > maxDepth) || constantTarget(y, indices) {
		return &treeNode{Leaf: true, Value: mean}
	}

	feature, threshold, ok := bestSplit(x, y, indices, minLeaf)
	if !ok {
		return &treeNode{Leaf: true, Value: mean}
	}

	var left, right []int
	for _, i := range indices {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(x, y, left, depth+1, maxDepth, minLeaf),
		Right:     growTree(x, y, right, depth+1, maxDepth, minLeaf),
	}
}

// bestSplit scans every feature in sorted order, tracking running sums so
// each candidate threshold is evaluated in constant time.
func bestSplit(x [][]float64, y []float64, indices []int, minLeaf int) (int, float64, bool) {
	nFeatures := len(x[indices[0]])
	total := 0.0
	totalSq := 0.0
	for _, i := range indices {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	n := float64(len(indices))

	bestScore := totalSq - total*total/n // SSE of the unsplit node
	bestFeature, bestThreshold := -1, 0.0
	found := false

	order := make([]int, len(indices))
	for feature := 0; feature < nFeatures; feature++ {
		copy(order, indices)
		sort.Slice(order, func(a, b int) bool {
			return x[order[a]][feature] < x[order[b]][feature]
		})
		leftSum, leftSq := 0.0, 0.0
		for pos := 0; pos < len(order)-1; pos++ {
			i := order[pos]
			leftSum += y[i]
			leftSq += y[i] * y[i]
			// Split only between distinct feature values.
			if x[order[pos+1]][feature] == x[i][feature] {
				continue
			}
			nl := float64(pos + 1)
			nr := n - nl
			if int(nl) < minLeaf || int(nr) < minLeaf {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			score := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if score < bestScore {
				bestScore = score
				bestFeature = feature
				bestThreshold = (x[i][feature] + x[order[pos+1]][feature]) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func constantTarget(y []float64, indices []int) bool {
	for _, i := range indices[1:] {
		if y[i] != y[indices[0]] {
			return false
		}
	}
	return true
}
