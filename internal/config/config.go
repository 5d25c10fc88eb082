// Package config holds the pipeline configuration surface, loaded from
// environment variables with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces the environment variables read by Load.
const EnvPrefix = "CASHCAST"

// Config is the complete application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" envconfig:"DATA"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Tracking TrackingConfig `yaml:"tracking" envconfig:"TRACKING"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// DataConfig locates the raw weekly batches and fixes the resampling rate.
// YearMin anchors week numbering: batch week numbers count from the first
// ISO week of that year. Zero means derive it from the date at hand.
type DataConfig struct {
	Dir     string        `yaml:"dir" envconfig:"DIR"`
	Sources []string      `yaml:"sources" envconfig:"SOURCES" validate:"min=1"`
	Freq    time.Duration `yaml:"freq" envconfig:"FREQ" validate:"gt=0"`
	YearMin int           `yaml:"year_min" envconfig:"YEAR_MIN" validate:"min=0"`
}

// PipelineConfig carries the week range and model hyperparameters.
type PipelineConfig struct {
	StartWeek   int           `yaml:"start_week" envconfig:"START_WEEK" validate:"min=0"`
	EndWeek     int           `yaml:"end_week" envconfig:"END_WEEK" validate:"gtefield=StartWeek"`
	NextWeek    int           `yaml:"next_week" envconfig:"NEXT_WEEK" validate:"min=0"`
	NFold       int           `yaml:"n_fold" envconfig:"N_FOLD" validate:"min=2"`
	NEstimators int           `yaml:"n_estimators" envconfig:"N_ESTIMATORS" validate:"min=1"`
	NModels     int           `yaml:"n_models" envconfig:"N_MODELS" validate:"min=1"`
	Degree      int           `yaml:"degree" envconfig:"DEGREE" validate:"min=1"`
	LagInWeek   int           `yaml:"lag_in_week" envconfig:"LAG_IN_WEEK" validate:"min=1"`
	Horizon     time.Duration `yaml:"horizon" envconfig:"HORIZON" validate:"gt=0"`
	Workers     int           `yaml:"workers" envconfig:"WORKERS" validate:"min=0"`
}

// TrackingConfig locates the run store.
type TrackingConfig struct {
	Dir      string `yaml:"dir" envconfig:"DIR"`
	Revision string `yaml:"revision" envconfig:"REVISION"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Default returns the baseline configuration before file and environment
// overrides.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:     "data",
			Sources: []string{"restaurant_1", "restaurant_2"},
			Freq:    time.Hour,
		},
		Pipeline: PipelineConfig{
			NFold:       10,
			NEstimators: 10,
			NModels:     10,
			Degree:      1,
			LagInWeek:   1,
			Horizon:     7 * 24 * time.Hour,
		},
		Tracking: TrackingConfig{
			Dir:      "runs",
			Revision: "dev",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/cashcast.log",
		},
	}
}

// EffectiveWorkers resolves the worker-pool size; zero means one worker
// per available core.
func (p PipelineConfig) EffectiveWorkers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Load builds the configuration in three layers: defaults, then the YAML
// file if one exists at configFile (empty means skip), then environment
// variables. The merged result is validated before use.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
