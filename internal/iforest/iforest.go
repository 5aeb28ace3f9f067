// Package iforest implements an isolation-forest outlier model over
// fixed-length feature vectors.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrNotFitted is returned when scoring is attempted before Fit.
var ErrNotFitted = errors.New("iforest: model not fitted")

const (
	defaultTrees      = 100
	defaultSampleSize = 256
	defaultSeed       = 42

	// Euler-Mascheroni constant, used by the harmonic-number approximation.
	eulerGamma = 0.5772156649
)

// Forest is an ensemble of isolation trees. A point's anomaly degree is
// inversely related to the average depth at which it isolates across the
// ensemble. Raw scores follow the convention raw = -2^(-E[h(x)]/c(psi)),
// so lower (more negative) means more anomalous.
//
// Fields are exported for gob serialization; a Forest is immutable once
// fitted.
type Forest struct {
	Trees         []*Tree
	NumTrees      int
	SampleSize    int
	Contamination float64
	Threshold     float64
	Norm          float64

	seed     int64
	maxDepth int
}

// Tree is a single isolation tree.
type Tree struct {
	Root *Node
}

// Node is one split (or leaf) of an isolation tree.
type Node struct {
	SplitFeature int
	SplitValue   float64
	Left         *Node
	Right        *Node
	Count        int
}

// Option configures a Forest before fitting.
type Option func(*Forest)

// WithTrees sets the ensemble size.
func WithTrees(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.NumTrees = n
		}
	}
}

// WithSampleSize sets the per-tree subsample size.
func WithSampleSize(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.SampleSize = n
		}
	}
}

// WithSeed sets the seed for the randomized tree construction. The rng is
// re-created from the seed on every Fit, so fitting the same batch twice
// yields identical trees.
func WithSeed(seed int64) Option {
	return func(f *Forest) {
		f.seed = seed
	}
}

// New returns an unfitted Forest.
func New(opts ...Option) *Forest {
	f := &Forest{
		NumTrees:   defaultTrees,
		SampleSize: defaultSampleSize,
		seed:       defaultSeed,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fitted reports whether the ensemble has been trained.
func (f *Forest) Fitted() bool {
	return len(f.Trees) > 0
}

// Fit grows the ensemble on the provided (scaled) vectors and fixes the
// classification threshold so that roughly a contamination fraction of the
// fit set scores at or below it. The threshold does not adapt afterwards.
func (f *Forest) Fit(data [][]float64, contamination float64) error {
	if len(data) == 0 {
		return errors.New("iforest: empty training set")
	}
	if contamination < 0 || contamination > 0.5 {
		return fmt.Errorf("iforest: contamination %v out of [0, 0.5]", contamination)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("iforest: sample %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	sampleSize := f.SampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	f.maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))
	if f.maxDepth < 1 {
		f.maxDepth = 1
	}

	rng := rand.New(rand.NewSource(f.seed))

	trees := make([]*Tree, f.NumTrees)
	for i := 0; i < f.NumTrees; i++ {
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		trees[i] = &Tree{Root: f.buildNode(rng, sample, nFeatures, 0)}
	}

	f.Trees = trees
	f.Norm = averagePathLength(float64(sampleSize))
	f.Contamination = contamination

	if contamination > 0 {
		scores := make([]float64, nSamples)
		for i, row := range data {
			scores[i] = f.rawScore(row)
		}
		f.Threshold = percentile(scores, 100*contamination)
	} else {
		// Contamination zero: nothing in the fit set is an anomaly.
		f.Threshold = math.Inf(-1)
	}

	return nil
}

func (f *Forest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *Node {
	n := len(data)
	if depth >= f.maxDepth || n <= 1 {
		return &Node{Count: n}
	}

	feature := rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}
	if minVal == maxVal {
		return &Node{Count: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         f.buildNode(rng, left, nFeatures, depth+1),
		Right:        f.buildNode(rng, right, nFeatures, depth+1),
	}
}

// Score returns the raw anomaly score for a single sample. Lower is more
// anomalous; values lie in (-1, 0).
func (f *Forest) Score(sample []float64) (float64, error) {
	if !f.Fitted() {
		return 0, ErrNotFitted
	}
	return f.rawScore(sample), nil
}

// Classify reports whether the sample falls at or below the decision
// threshold fixed at fit time.
func (f *Forest) Classify(sample []float64) (bool, error) {
	if !f.Fitted() {
		return false, ErrNotFitted
	}
	return f.rawScore(sample) <= f.Threshold, nil
}

func (f *Forest) rawScore(sample []float64) float64 {
	var totalPath float64
	for _, tree := range f.Trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.Trees))

	return -math.Pow(2, -avgPath/f.Norm)
}

func pathLength(sample []float64, n *Node, depth int) float64 {
	if n.Left == nil && n.Right == nil {
		return float64(depth) + averagePathLength(float64(n.Count))
	}
	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, depth+1)
	}
	return pathLength(sample, n.Right, depth+1)
}

// averagePathLength returns c(n), the average path length of an unsuccessful
// BST search: c(n) = 2*H(n-1) - 2*(n-1)/n.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// percentile returns the p-th percentile (0-100) of data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
