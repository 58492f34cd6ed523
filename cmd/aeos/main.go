package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/smartenergy/aeos/internal/adaptation"
	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/internal/ingest"
	"github.com/smartenergy/aeos/internal/server"
	"github.com/smartenergy/aeos/internal/storage"
	"github.com/smartenergy/aeos/internal/streaming"
	"github.com/smartenergy/aeos/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Streaming subsystem
	engine := streaming.NewEngine(cfg.Streaming, zapLogger)
	if cfg.Modules.Streaming {
		engine.Start(ctx)
	}

	// Adaptation subsystem
	store := adaptation.NewStore(cfg.Adaptation.GlobalThreshold, cfg.Adaptation.MinSamples)
	trainer := adaptation.NewTrainer(cfg.Adaptation, store, zapLogger)
	corrector := adaptation.NewCorrector(store, zapLogger)

	// Optional collaborators
	var repository *storage.ProfileRepository
	if cfg.Modules.Persistence {
		repository, err = storage.NewProfileRepository(cfg.Database.DSN, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to open profile repository", zap.Error(err))
		}
		persisted, err := repository.LoadProfiles(ctx)
		if err != nil {
			zapLogger.Warn("Failed to load persisted profiles", zap.Error(err))
		} else if len(persisted) > 0 {
			store.Seed(persisted)
			zapLogger.Info("Warm-started adaptation profiles", zap.Int("count", len(persisted)))
		}
	}

	var exportCache *storage.ExportCache
	if cfg.Modules.ExportCache {
		exportCache = storage.NewExportCache(
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ExportTTL, zapLogger)
		defer exportCache.Close()
	}

	var kafkaSource *ingest.KafkaSource
	if cfg.Modules.KafkaIngestion {
		kafkaSource = ingest.NewKafkaSource(cfg.Kafka, engine, zapLogger)
		kafkaSource.Start(ctx)
	}

	// HTTP façade
	apiServer := server.NewServer(cfg.Server, zapLogger, engine, trainer, store, corrector, repository, exportCache)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("API server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP shutdown failed", zap.Error(err))
	}

	if kafkaSource != nil {
		if err := kafkaSource.Stop(); err != nil {
			zapLogger.Error("Failed to stop kafka source", zap.Error(err))
		}
	}
	if cfg.Modules.Streaming {
		engine.Stop()
	}

	zapLogger.Info("Server exited properly")
}
