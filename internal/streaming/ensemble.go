package streaming

import (
	"math"
)

// Ensemble combines interchangeable sub-models with adaptive weights. An
// ensemble is trained fully before it is published to readers and is never
// mutated afterwards; the online trainer builds a fresh instance per retrain
// and swaps it in atomically.
type Ensemble struct {
	members []SubModel
	weights []float64

	// Training snapshot, kept for re-scoring during weight adaptation.
	xs []float64
	ys []float64
}

// NewEnsemble creates an ensemble over the given members with equal weights.
func NewEnsemble(members ...SubModel) *Ensemble {
	weights := make([]float64, len(members))
	for i := range weights {
		weights[i] = 1.0 / float64(len(members))
	}
	return &Ensemble{members: members, weights: weights}
}

// Train fits every member independently on the same index-based series: x is
// the position in the snapshot, y the reading value.
func (e *Ensemble) Train(values []float64) {
	if len(values) == 0 {
		return
	}

	xs := make([]float64, len(values))
	ys := make([]float64, len(values))
	for i, v := range values {
		xs[i] = float64(i)
		ys[i] = v
	}
	e.xs = xs
	e.ys = ys

	for _, m := range e.members {
		m.Train(xs, ys)
	}
}

// Predict returns the weighted sum of member predictions.
func (e *Ensemble) Predict(x float64) float64 {
	var sum float64
	for i, m := range e.members {
		sum += e.weights[i] * m.Predict(x)
	}
	return sum
}

// Accuracies re-scores every member against the training snapshot and maps
// its name to 1/(1+RMSE).
func (e *Ensemble) Accuracies() map[string]float64 {
	out := make(map[string]float64, len(e.members))
	if len(e.xs) == 0 {
		return out
	}

	n := float64(len(e.xs))
	for _, m := range e.members {
		var sse float64
		for i := range e.xs {
			diff := m.Predict(e.xs[i]) - e.ys[i]
			sse += diff * diff
		}
		out[m.Name()] = 1.0 / (1.0 + math.Sqrt(sse/n))
	}
	return out
}

// AdaptWeights recomputes the member weights proportionally to their
// accuracies. Weights stay non-negative and sum to 1.
func (e *Ensemble) AdaptWeights() {
	if len(e.xs) == 0 {
		return
	}

	accuracies := e.Accuracies()
	var total float64
	raw := make([]float64, len(e.members))
	for i, m := range e.members {
		raw[i] = accuracies[m.Name()]
		total += raw[i]
	}
	if total <= 0 {
		return
	}

	for i := range raw {
		e.weights[i] = raw[i] / total
	}
}

// Weights returns a copy of the current member weights.
func (e *Ensemble) Weights() []float64 {
	return append([]float64(nil), e.weights...)
}

// RMSE re-scores the whole ensemble against its training snapshot.
func (e *Ensemble) RMSE() float64 {
	if len(e.xs) == 0 {
		return 0
	}

	var sse float64
	for i := range e.xs {
		diff := e.Predict(e.xs[i]) - e.ys[i]
		sse += diff * diff
	}
	return math.Sqrt(sse / float64(len(e.xs)))
}

// Forecast extrapolates the ensemble steps positions past the end of the
// training snapshot.
func (e *Ensemble) Forecast(steps int) []float64 {
	out := make([]float64, steps)
	lastX := 0.0
	if len(e.xs) > 0 {
		lastX = e.xs[len(e.xs)-1]
	}
	for i := 0; i < steps; i++ {
		out[i] = e.Predict(lastX + float64(i+1))
	}
	return out
}

// TrainedSize reports the number of samples the ensemble was fitted on.
func (e *Ensemble) TrainedSize() int {
	return len(e.xs)
}
