package server

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smartenergy/aeos/internal/adaptation"
	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/internal/storage"
	"github.com/smartenergy/aeos/internal/streaming"
)

// Server is the HTTP façade over the streaming and adaptation engines. It
// owns no analysis state of its own; every endpoint delegates to the
// engines and the profile store.
type Server struct {
	cfg       config.ServerConfig
	logger    *zap.Logger
	engine    *streaming.Engine
	trainer   *adaptation.Trainer
	store     *adaptation.Store
	corrector *adaptation.Corrector

	// Optional collaborators, nil when the module is disabled.
	repository  *storage.ProfileRepository
	exportCache *storage.ExportCache
}

// NewServer assembles the HTTP façade.
func NewServer(
	cfg config.ServerConfig,
	logger *zap.Logger,
	engine *streaming.Engine,
	trainer *adaptation.Trainer,
	store *adaptation.Store,
	corrector *adaptation.Corrector,
	repository *storage.ProfileRepository,
	exportCache *storage.ExportCache,
) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger,
		engine:      engine,
		trainer:     trainer,
		store:       store,
		corrector:   corrector,
		repository:  repository,
		exportCache: exportCache,
	}
}

// Router builds the gin router with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))

	router.GET(s.cfg.HealthCheckPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "running": s.engine.Running()})
	})
	router.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			readings := v1.Group("/readings")
			{
				readings.POST("", s.handleIngest)
				readings.GET("/stats", s.handleStats)
			}

			prediction := v1.Group("/prediction")
			{
				prediction.GET("/predict", s.handlePredict)
				prediction.GET("/forecast", s.handleForecast)
				prediction.GET("/accuracies", s.handleModelAccuracies)
				prediction.POST("/anomaly-check", s.handleAnomalyCheck)
			}

			adaptationGroup := v1.Group("/adaptation")
			{
				adaptationGroup.POST("/train", s.handleTrainBatch)
				adaptationGroup.POST("/corrections", s.handleApplyCorrections)
				adaptationGroup.GET("/export", s.handleExportProfiles)
				adaptationGroup.GET("/recommendations", s.handleRecommendations)
			}

			machines := v1.Group("/machines")
			{
				machines.GET("/:id/statistics", s.handleMachineStatistics)
				machines.GET("/:id/corrections", s.handleCorrectionStatistics)
				machines.DELETE("/:id/adaptation", s.handleResetAdaptation)
			}
		}
	}

	return router
}
