package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP façade configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MetricsPath     string        `yaml:"metrics_path" json:"metrics_path"`
	HealthCheckPath string        `yaml:"health_check_path" json:"health_check_path"`
}

// StreamingConfig tunes the ingestion buffer, rolling window and the online
// trainer loop.
type StreamingConfig struct {
	BufferSize        int           `yaml:"buffer_size" json:"buffer_size"`
	WindowCapacity    int           `yaml:"window_capacity" json:"window_capacity"`
	IngestTimeout     time.Duration `yaml:"ingest_timeout" json:"ingest_timeout"`
	ConsumerPoll      time.Duration `yaml:"consumer_poll" json:"consumer_poll"`
	RetrainInterval   time.Duration `yaml:"retrain_interval" json:"retrain_interval"`
	RetrainThreshold  int           `yaml:"retrain_threshold" json:"retrain_threshold"`
	KNNNeighbors      int           `yaml:"knn_neighbors" json:"knn_neighbors"`
	ForestTrees       int           `yaml:"forest_trees" json:"forest_trees"`
	ForestDepth       int           `yaml:"forest_depth" json:"forest_depth"`
	AnomalyMinSamples int           `yaml:"anomaly_min_samples" json:"anomaly_min_samples"`
	AnomalyZScore     float64       `yaml:"anomaly_z_score" json:"anomaly_z_score"`
}

// AdaptationConfig tunes the per-device correction trainer.
type AdaptationConfig struct {
	EpochsPerBatch     int     `yaml:"epochs_per_batch" json:"epochs_per_batch"`
	AccuracyAlpha      float64 `yaml:"accuracy_alpha" json:"accuracy_alpha"`
	ErrorRateAlpha     float64 `yaml:"error_rate_alpha" json:"error_rate_alpha"`
	GlobalThreshold    float64 `yaml:"global_threshold" json:"global_threshold"`
	MinSamples         int     `yaml:"min_samples" json:"min_samples"`
	MaxCorrectionRatio float64 `yaml:"max_correction_ratio" json:"max_correction_ratio"`
}

// Modules enumerates the analysis subsystems and whether each is enabled.
// Toggles are struct fields rather than string keys so a misspelled module
// name fails at compile time.
type Modules struct {
	Streaming      bool `yaml:"streaming" json:"streaming"`
	Adaptation     bool `yaml:"adaptation" json:"adaptation"`
	AnomalyChecks  bool `yaml:"anomaly_checks" json:"anomaly_checks"`
	KafkaIngestion bool `yaml:"kafka_ingestion" json:"kafka_ingestion"`
	Persistence    bool `yaml:"persistence" json:"persistence"`
	ExportCache    bool `yaml:"export_cache" json:"export_cache"`
}

// KafkaConfig configures the reading source consumer.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers" json:"brokers"`
	Topic         string        `yaml:"topic" json:"topic"`
	ConsumerGroup string        `yaml:"consumer_group" json:"consumer_group"`
	MinBytes      int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes      int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait       time.Duration `yaml:"max_wait" json:"max_wait"`
}

// Config is the application configuration, loaded once at startup and passed
// explicitly to every component constructor.
type Config struct {
	LogLevel   string           `yaml:"log_level" json:"log_level"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Streaming  StreamingConfig  `yaml:"streaming" json:"streaming"`
	Adaptation AdaptationConfig `yaml:"adaptation" json:"adaptation"`
	Modules    Modules          `yaml:"modules" json:"modules"`
	Kafka      KafkaConfig      `yaml:"kafka" json:"kafka"`
	Database   struct {
		DSN string `yaml:"dsn" json:"dsn"`
	} `yaml:"database" json:"database"`
	Redis struct {
		Address   string        `yaml:"address" json:"address"`
		Password  string        `yaml:"password" json:"password"`
		DB        int           `yaml:"db" json:"db"`
		ExportTTL time.Duration `yaml:"export_ttl" json:"export_ttl"`
	} `yaml:"redis" json:"redis"`
}

// Load reads configuration from config.yaml (searched in ., ./config and
// /etc/aeos) and environment variables, on top of built-in defaults.
func Load() (*Config, error) {
	cfg := Default()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/aeos")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing file is fine, defaults plus env apply.
	} else {
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	cfg := &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsPath:     "/metrics",
			HealthCheckPath: "/healthz",
		},
		Streaming: StreamingConfig{
			BufferSize:        1000,
			WindowCapacity:    1000,
			IngestTimeout:     time.Second,
			ConsumerPoll:      time.Second,
			RetrainInterval:   5 * time.Second,
			RetrainThreshold:  100,
			KNNNeighbors:      5,
			ForestTrees:       10,
			ForestDepth:       5,
			AnomalyMinSamples: 10,
			AnomalyZScore:     3.0,
		},
		Adaptation: AdaptationConfig{
			EpochsPerBatch:     3,
			AccuracyAlpha:      0.2,
			ErrorRateAlpha:     0.3,
			GlobalThreshold:    0.05,
			MinSamples:         10,
			MaxCorrectionRatio: 0.3,
		},
		Modules: Modules{
			Streaming:      true,
			Adaptation:     true,
			AnomalyChecks:  true,
			KafkaIngestion: false,
			Persistence:    false,
			ExportCache:    false,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         "energy.readings",
			ConsumerGroup: "aeos",
			MinBytes:      1,
			MaxBytes:      1 << 20,
			MaxWait:       time.Second,
		},
	}
	cfg.Database.DSN = "aeos.db"
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.ExportTTL = 10 * time.Minute
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEOS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AEOS_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AEOS_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AEOS_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("AEOS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AEOS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = []string{v}
	}
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.Streaming.BufferSize <= 0 {
		return fmt.Errorf("streaming.buffer_size must be positive, got %d", c.Streaming.BufferSize)
	}
	if c.Streaming.WindowCapacity <= 0 {
		return fmt.Errorf("streaming.window_capacity must be positive, got %d", c.Streaming.WindowCapacity)
	}
	if c.Streaming.RetrainThreshold <= 0 {
		return fmt.Errorf("streaming.retrain_threshold must be positive, got %d", c.Streaming.RetrainThreshold)
	}
	if c.Adaptation.EpochsPerBatch <= 0 {
		return fmt.Errorf("adaptation.epochs_per_batch must be positive, got %d", c.Adaptation.EpochsPerBatch)
	}
	if a := c.Adaptation.AccuracyAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("adaptation.accuracy_alpha must be in (0,1], got %f", a)
	}
	if a := c.Adaptation.ErrorRateAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("adaptation.error_rate_alpha must be in (0,1], got %f", a)
	}
	return nil
}
