package streaming

import (
	"math"
	"math/rand/v2"
)

// epsilon guards all divisions in this package. Degenerate inputs produce
// degenerate-but-finite outputs instead of NaN or panics.
const epsilon = 1e-3

// SubModel is the contract every ensemble member satisfies. Train fits the
// model on a series of (x, y) pairs; Predict extrapolates it. Each sub-model
// owns its fitted parameters and shares nothing with its siblings.
type SubModel interface {
	Train(xs, ys []float64)
	Predict(x float64) float64
	Name() string
}

// LinearFit is an ordinary least-squares line.
type LinearFit struct {
	slope     float64
	intercept float64
	rSquared  float64
}

// NewLinearFit creates an untrained linear model.
func NewLinearFit() *LinearFit { return &LinearFit{} }

func (m *LinearFit) Name() string { return "linear" }

// Train fits slope and intercept by least squares and records R².
func (m *LinearFit) Train(xs, ys []float64) {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return
	}

	xMean := mean(xs)
	yMean := mean(ys)

	var num, den float64
	for i := 0; i < n; i++ {
		num += (xs[i] - xMean) * (ys[i] - yMean)
		den += (xs[i] - xMean) * (xs[i] - xMean)
	}

	m.slope = num / (den + epsilon)
	m.intercept = yMean - m.slope*xMean

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		pred := m.Predict(xs[i])
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - yMean) * (ys[i] - yMean)
	}
	m.rSquared = 1 - ssRes/(ssTot+epsilon)
}

func (m *LinearFit) Predict(x float64) float64 {
	return m.slope*x + m.intercept
}

// RSquared reports the goodness of fit from the last training run.
func (m *LinearFit) RSquared() float64 { return m.rSquared }

// NearestNeighbor memorizes the training series and answers with the y of
// the closest x.
type NearestNeighbor struct {
	xs []float64
	ys []float64
}

// NewNearestNeighbor creates an untrained nearest-neighbor model.
func NewNearestNeighbor() *NearestNeighbor { return &NearestNeighbor{} }

func (m *NearestNeighbor) Name() string { return "nearest" }

func (m *NearestNeighbor) Train(xs, ys []float64) {
	m.xs = append([]float64(nil), xs...)
	m.ys = append([]float64(nil), ys...)
}

func (m *NearestNeighbor) Predict(x float64) float64 {
	if len(m.xs) == 0 {
		return 0
	}

	best := 0
	bestDist := math.Abs(x - m.xs[0])
	for i := 1; i < len(m.xs); i++ {
		if d := math.Abs(x - m.xs[i]); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return m.ys[best]
}

// KNN averages the y values of the k nearest training points.
type KNN struct {
	k  int
	xs []float64
	ys []float64
}

// NewKNN creates an untrained k-nearest-neighbors model.
func NewKNN(k int) *KNN {
	if k <= 0 {
		k = 1
	}
	return &KNN{k: k}
}

func (m *KNN) Name() string { return "knn" }

func (m *KNN) Train(xs, ys []float64) {
	m.xs = append([]float64(nil), xs...)
	m.ys = append([]float64(nil), ys...)
}

func (m *KNN) Predict(x float64) float64 {
	n := len(m.xs)
	if n == 0 {
		return 0
	}

	type scored struct {
		dist float64
		y    float64
	}
	neighbors := make([]scored, n)
	for i := 0; i < n; i++ {
		neighbors[i] = scored{dist: math.Abs(x - m.xs[i]), y: m.ys[i]}
	}

	// Partial selection sort: only the first k positions matter.
	count := m.k
	if count > n {
		count = n
	}
	for i := 0; i < count; i++ {
		minIdx := i
		for j := i + 1; j < n; j++ {
			if neighbors[j].dist < neighbors[minIdx].dist {
				minIdx = j
			}
		}
		neighbors[i], neighbors[minIdx] = neighbors[minIdx], neighbors[i]
	}

	var sum float64
	for i := 0; i < count; i++ {
		sum += neighbors[i].y
	}
	return sum / float64(count)
}

// BootstrapForest trains a set of nearest-neighbor learners on bootstrap
// resamples of the series and averages their predictions.
type BootstrapForest struct {
	trees    int
	maxDepth int
	learners []*NearestNeighbor
	rng      *rand.Rand
}

// NewBootstrapForest creates a forest of the given size. Depth is retained
// for parity with the learner configuration but nearest-neighbor members
// have no depth to limit.
func NewBootstrapForest(trees, maxDepth int) *BootstrapForest {
	if trees <= 0 {
		trees = 1
	}
	return &BootstrapForest{
		trees:    trees,
		maxDepth: maxDepth,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (m *BootstrapForest) Name() string { return "forest" }

func (m *BootstrapForest) Train(xs, ys []float64) {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return
	}

	learners := make([]*NearestNeighbor, 0, m.trees)
	bootX := make([]float64, n)
	bootY := make([]float64, n)
	for t := 0; t < m.trees; t++ {
		for i := 0; i < n; i++ {
			idx := m.rng.IntN(n)
			bootX[i] = xs[idx]
			bootY[i] = ys[idx]
		}
		learner := NewNearestNeighbor()
		learner.Train(bootX, bootY)
		learners = append(learners, learner)
	}
	m.learners = learners
}

func (m *BootstrapForest) Predict(x float64) float64 {
	if len(m.learners) == 0 {
		return 0
	}

	var sum float64
	for _, learner := range m.learners {
		sum += learner.Predict(x)
	}
	return sum / float64(len(m.learners))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
