package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnsemble() *Ensemble {
	return NewEnsemble(
		NewLinearFit(),
		NewNearestNeighbor(),
		NewKNN(5),
		NewBootstrapForest(10, 5),
	)
}

func TestEnsembleWeightsSumToOne(t *testing.T) {
	e := newTestEnsemble()

	sum := 0.0
	for _, w := range e.Weights() {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "initial weights are equal")

	e.Train([]float64{45.5, 52.3, 48.9, 41.2, 55.0})
	e.AdaptWeights()

	sum = 0.0
	for _, w := range e.Weights() {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "adapted weights stay normalized")
}

func TestEnsemblePredictIsIdempotent(t *testing.T) {
	e := newTestEnsemble()
	e.Train([]float64{45.5, 52.3, 48.9, 41.2, 55.0})
	e.AdaptWeights()

	first := e.Predict(5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Predict(5), "prediction must not mutate the ensemble")
	}
}

func TestEnsembleAccuracies(t *testing.T) {
	e := newTestEnsemble()

	assert.Empty(t, e.Accuracies(), "untrained ensemble reports no accuracies")

	e.Train([]float64{10, 12, 14, 16, 18})
	acc := e.Accuracies()
	require.Len(t, acc, 4)
	for name, a := range acc {
		assert.Greater(t, a, 0.0, "model %s", name)
		assert.LessOrEqual(t, a, 1.0, "model %s", name)
	}

	// A perfectly linear series is the linear member's home turf.
	assert.Greater(t, acc["linear"], 0.99)
}

func TestAdaptWeightsFavorsAccurateMembers(t *testing.T) {
	e := NewEnsemble(NewLinearFit(), NewNearestNeighbor())
	e.Train([]float64{45.5, 52.3, 48.9, 41.2, 55.0})
	e.AdaptWeights()

	weights := e.Weights()
	require.Len(t, weights, 2)

	// Re-scoring runs over the training snapshot, where the memorizing
	// nearest-neighbor member reproduces every point exactly while the
	// linear fit carries residual error on a noisy series.
	assert.Greater(t, weights[1], weights[0])
}

func TestEnsembleTrainEmptyIsNoop(t *testing.T) {
	e := newTestEnsemble()
	e.Train(nil)

	assert.Zero(t, e.TrainedSize())
	assert.Zero(t, e.Predict(3))
	assert.Zero(t, e.RMSE())
}

func TestEnsembleForecast(t *testing.T) {
	e := NewEnsemble(NewLinearFit())
	e.Train([]float64{10, 12, 14, 16, 18})

	forecast := e.Forecast(3)
	require.Len(t, forecast, 3)

	// The linear extrapolation keeps climbing past the window.
	assert.Greater(t, forecast[0], 18.0)
	assert.Greater(t, forecast[1], forecast[0])
	assert.Greater(t, forecast[2], forecast[1])
}
