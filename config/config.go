package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const envPrefix = "FLIGHTDASH_"

type DatasetConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"`
	Watch    bool   `yaml:"watch"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StaticDir      string        `yaml:"static_dir"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

type MLConfig struct {
	ModelDir        string  `yaml:"model_dir"`
	LoadExisting    bool    `yaml:"load_existing"`
	SaveAfterTrain  bool    `yaml:"save_after_train"`
	ModelType       string  `yaml:"model_type"`
	NumTrees        int     `yaml:"num_trees"`
	MaxDepth        int     `yaml:"max_depth"`
	TestRatio       float64 `yaml:"test_ratio"`
	Seed            int64   `yaml:"seed"`
	MinDelayedRows  int     `yaml:"min_delayed_rows"`
	Workers         int     `yaml:"workers"`
	RetrainSchedule string  `yaml:"retrain_schedule"`
}

type CacheConfig struct {
	PredictionSize int `yaml:"prediction_size"`
}

// AlertConfig holds the thresholds of the snapshot health rules.
type AlertConfig struct {
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxRejectedRatio float64       `yaml:"max_rejected_ratio"`
	MinR2            float64       `yaml:"min_r2"`
	MinAccuracy      float64       `yaml:"min_accuracy"`
}

type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	ML       MLConfig       `yaml:"ml"`
	Cache    CacheConfig    `yaml:"cache"`
	Alerts   AlertConfig    `yaml:"alerts"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Dataset: DatasetConfig{
			Path:     "data/flights.csv",
			Encoding: "utf-8",
		},
		Database: DatabaseConfig{Path: "data/flightdash.db"},
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/flightdash.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Console:    true,
		},
		ML: MLConfig{
			ModelDir:       "data/models",
			SaveAfterTrain: true,
			ModelType:      "random_forest",
			NumTrees:       100,
			MaxDepth:       10,
			TestRatio:      0.2,
			Seed:           42,
			MinDelayedRows: 100,
		},
		Cache: CacheConfig{PredictionSize: 1024},
		Alerts: AlertConfig{
			Cooldown:         15 * time.Minute,
			MaxRejectedRatio: 0.05,
			MinR2:            0,
			MinAccuracy:      0.6,
		},
	}
}

// Load reads .env, then the YAML file at path, then FLIGHTDASH_* environment
// overrides. A missing file is not an error: defaults are used instead.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Locate returns config.yaml in the working directory, or ../config.yaml
// when run from a subdirectory such as cmd/.
func Locate() string {
	path := "config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := os.Stat(filepath.Join("..", path)); err == nil {
			return filepath.Join("..", path)
		}
	}
	return path
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("DATASET_PATH"); ok {
		c.Dataset.Path = v
	}
	if v, ok := lookup("DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("MODEL_DIR"); ok {
		c.ML.ModelDir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_PORT: %w", envPrefix, err)
		}
		c.HTTP.Port = port
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Dataset.Path == "" {
		return errors.New("dataset.path is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.ML.TestRatio <= 0 || c.ML.TestRatio >= 1 {
		return fmt.Errorf("ml.test_ratio %.2f must be in (0,1)", c.ML.TestRatio)
	}
	switch c.ML.ModelType {
	case "random_forest", "decision_tree":
	default:
		return fmt.Errorf("ml.model_type %q must be random_forest or decision_tree", c.ML.ModelType)
	}
	if c.ML.NumTrees <= 0 {
		return fmt.Errorf("ml.num_trees must be positive")
	}
	if c.ML.MaxDepth <= 0 {
		return fmt.Errorf("ml.max_depth must be positive")
	}
	if c.Cache.PredictionSize < 0 {
		return fmt.Errorf("cache.prediction_size must not be negative")
	}
	if c.Alerts.MaxRejectedRatio < 0 || c.Alerts.MaxRejectedRatio > 1 {
		return fmt.Errorf("alerts.max_rejected_ratio %.2f must be in [0,1]", c.Alerts.MaxRejectedRatio)
	}
	return nil
}
