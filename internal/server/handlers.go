package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/smartenergy/aeos/pkg/models"
)

// bindError turns a binding failure into a field-level error payload when
// the failure came from validation, or a generic message otherwise.
func bindError(err error) gin.H {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
		return gin.H{"error": "validation failed", "fields": fields}
	}
	return gin.H{"error": err.Error()}
}

// readingRequest is the wire form of a single reading. Validation runs via
// the binding tags on every endpoint that accepts readings.
type readingRequest struct {
	ID        string  `json:"id" binding:"omitempty,uuid"`
	DeviceID  string  `json:"device_id" binding:"required,max=64"`
	Value     float64 `json:"value" binding:"required"`
	Timestamp int64   `json:"timestamp" binding:"omitempty,gt=0"`
	ErrorBits int     `json:"error_bits" binding:"omitempty,min=0,max=64"`
}

type batchRequest struct {
	Readings []readingRequest `json:"readings" binding:"required,min=1,dive"`
}

func (r readingRequest) toReading() models.Reading {
	reading := models.NewReading(r.DeviceID, r.Value, r.ErrorBits)
	if r.ID != "" {
		reading.ID = r.ID
	}
	if r.Timestamp > 0 {
		reading.Timestamp = time.UnixMilli(r.Timestamp).UTC()
	}
	return reading
}

func toReadings(reqs []readingRequest) []models.Reading {
	out := make([]models.Reading, len(reqs))
	for i, r := range reqs {
		out[i] = r.toReading()
	}
	return out
}

func (s *Server) handleIngest(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}

	reading := req.toReading()
	if s.engine.Ingest(reading) {
		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "id": reading.ID})
		return
	}
	// Backpressure drop: the caller may re-submit the reading.
	c.JSON(http.StatusTooManyRequests, gin.H{"accepted": false, "id": reading.ID})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handlePredict(c *gin.Context) {
	x, err := strconv.ParseFloat(c.Query("x"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter x must be a number"})
		return
	}
	c.JSON(http.StatusOK, s.engine.Predict(x))
}

func (s *Server) handleForecast(c *gin.Context) {
	steps := 10
	if raw := c.Query("steps"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "steps must be in [1,1000]"})
			return
		}
		steps = parsed
	}
	c.JSON(http.StatusOK, gin.H{"forecast": s.engine.Forecast(steps)})
}

func (s *Server) handleModelAccuracies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"accuracies": s.engine.ModelAccuracies()})
}

func (s *Server) handleAnomalyCheck(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}

	reading := req.toReading()
	c.JSON(http.StatusOK, gin.H{
		"device_id": reading.DeviceID,
		"value":     reading.Value,
		"anomaly":   s.engine.IsAnomaly(reading),
	})
}

func (s *Server) handleTrainBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}

	s.trainer.TrainBatch(toReadings(req.Readings))
	s.persistProfiles(c)

	c.JSON(http.StatusOK, gin.H{"trained": len(req.Readings)})
}

func (s *Server) handleApplyCorrections(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}

	corrected := s.corrector.ApplyCorrections(toReadings(req.Readings))
	c.JSON(http.StatusOK, gin.H{"corrections": corrected})
}

func (s *Server) handleExportProfiles(c *gin.Context) {
	// Report tooling may ask for the cached copy to avoid touching the
	// live store; a cache miss falls through to a fresh export.
	if c.Query("cached") == "true" && s.exportCache != nil {
		cached, found, err := s.exportCache.Get(c.Request.Context())
		if err != nil {
			s.logger.Warn("failed to read export cache", zap.Error(err))
		} else if found {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	export := s.store.Export()

	if s.exportCache != nil {
		if err := s.exportCache.Put(c.Request.Context(), export); err != nil {
			s.logger.Warn("failed to refresh export cache", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, export)
}

func (s *Server) handleRecommendations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"recommendations": s.store.Recommendations()})
}

func (s *Server) handleMachineStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Statistics(c.Param("id")))
}

func (s *Server) handleCorrectionStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.corrector.Statistics(c.Param("id")))
}

func (s *Server) handleResetAdaptation(c *gin.Context) {
	deviceID := c.Param("id")
	s.store.Reset(deviceID)

	if s.repository != nil {
		if err := s.repository.DeleteProfile(c.Request.Context(), deviceID); err != nil {
			s.logger.Warn("failed to delete persisted profile", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"reset": deviceID})
}

// persistProfiles mirrors the current store into the database after a
// training batch. Persistence failures degrade to a warning.
func (s *Server) persistProfiles(c *gin.Context) {
	if s.repository == nil {
		return
	}
	if err := s.repository.SaveProfiles(c.Request.Context(), s.store.Export()); err != nil {
		s.logger.Warn("failed to persist profiles", zap.Error(err))
	}
}
