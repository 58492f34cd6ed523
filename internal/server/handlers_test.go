package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smartenergy/aeos/internal/adaptation"
	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/internal/streaming"
	"github.com/smartenergy/aeos/pkg/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *streaming.Engine, *adaptation.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	logger := zaptest.NewLogger(t)

	engine := streaming.NewEngine(cfg.Streaming, logger)
	store := adaptation.NewStore(cfg.Adaptation.GlobalThreshold, cfg.Adaptation.MinSamples)
	trainer := adaptation.NewTrainer(cfg.Adaptation, store, logger)
	corrector := adaptation.NewCorrector(store, logger)

	srv := NewServer(cfg.Server, logger, engine, trainer, store, corrector, nil, nil)
	return srv.Router(), engine, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestIngestReading(t *testing.T) {
	router, engine, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/readings",
		`{"device_id":"M-001","value":45.5,"error_bits":2}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Accepted bool   `json:"accepted"`
		ID       string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.NotEmpty(t, resp.ID, "server assigns an ID when the producer omits one")

	assert.Equal(t, 1, engine.Stats().BufferDepth)
}

func TestIngestValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	cases := map[string]string{
		"missing device": `{"value":45.5}`,
		"missing value":  `{"device_id":"M-001"}`,
		"bad uuid":       `{"id":"not-a-uuid","device_id":"M-001","value":45.5}`,
		"bad error bits": `{"device_id":"M-001","value":45.5,"error_bits":65}`,
		"long device id": fmt.Sprintf(`{"device_id":"%s","value":45.5}`, strings.Repeat("x", 65)),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/readings", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPredictEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("missing x", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/prediction/predict", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cold engine answers with the default", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/prediction/predict?x=5", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var p models.Prediction
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, 0.5, p.Confidence)
		assert.Equal(t, models.StatusNormal, p.Status)
	})
}

func TestForecastEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/prediction/forecast?steps=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Forecast []float64 `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Forecast, 3)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/prediction/forecast?steps=1001", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnomalyCheckEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/prediction/anomaly-check",
		`{"device_id":"M-001","value":5000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"anomaly":false`,
		"an empty window never flags anomalies")
}

func TestTrainAndStatistics(t *testing.T) {
	router, _, store := newTestRouter(t)

	body := `{"readings":[
		{"device_id":"M-001","value":45.5,"error_bits":2},
		{"device_id":"M-001","value":52.3,"error_bits":2},
		{"device_id":"M-001","value":48.9,"error_bits":2}
	]}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/adaptation/train", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trained":3`)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/machines/M-001/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.MachineStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "M-001", stats.DeviceID)
	assert.Equal(t, int64(3), stats.SamplesProcessed)
	assert.InDelta(t, 0.3, stats.Confidence, 1e-9)

	p, ok := store.Profile("M-001")
	require.True(t, ok)
	assert.Equal(t, 3, p.EpochCount)
}

func TestApplyCorrectionsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{"readings":[{"device_id":"M-001","value":100,"error_bits":10}]}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/adaptation/corrections", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Corrections []models.CorrectedRecord `json:"corrections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Corrections, 1)

	record := resp.Corrections[0]
	assert.GreaterOrEqual(t, record.Corrected, 70.0)
	assert.LessOrEqual(t, record.Corrected, 130.0)
}

func TestExportEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/adaptation/train",
		`{"readings":[{"device_id":"M-001","value":45.5,"error_bits":2}]}`)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/adaptation/export", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var export models.ProfileExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Contains(t, export.MachineProfiles, "M-001")
	assert.Equal(t, int64(1), export.SamplesProcessed)
}

func TestResetAdaptationEndpoint(t *testing.T) {
	router, _, store := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/adaptation/train",
		`{"readings":[{"device_id":"M-001","value":45.5,"error_bits":2}]}`)
	_, ok := store.Profile("M-001")
	require.True(t, ok)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/machines/M-001/adaptation", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok = store.Profile("M-001")
	assert.False(t, ok)
}

func TestRecommendationsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/adaptation/train",
		`{"readings":[{"device_id":"M-001","value":45.5,"error_bits":2}]}`)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/adaptation/recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Recommendations map[string]string `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Recommendations, "M-001")
}
