// Package config provides configuration loading and management for mrilabelsync.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"mrilabelsync/pkg/alignment"
)

// DefaultConfigPath is where the CLI looks for a configuration file
const DefaultConfigPath = "mrilabelsync.yaml"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Dataset layout parameters
	Dataset struct {
		// RawDir holds downloaded <id>_RTSTRUCT_MRI / _segmentation pairs
		RawDir string `yaml:"rawDir" env:"RAW_DIR"`

		// TaskName names the training dataset (e.g. Dataset500_NYU)
		TaskName string `yaml:"taskName" env:"TASK_NAME"`

		// Root is the directory holding all task folders
		Root string `yaml:"root" env:"ROOT"`

		// ImagesDir and LabelsDir override the <root>/<task>/imagesTr and labelsTr defaults
		ImagesDir string `yaml:"imagesDir" env:"IMAGES_DIR"`
		LabelsDir string `yaml:"labelsDir" env:"LABELS_DIR"`

		// Description is written into the dataset manifest
		Description string `yaml:"description" env:"DESCRIPTION"`

		// Labels maps class names to label values for the manifest
		Labels map[string]int `yaml:"labels"`
	} `yaml:"dataset" envPrefix:"DATASET_"`

	// Processing parameters
	Processing struct {
		// NumCores is how many subjects are processed concurrently
		NumCores int `yaml:"numCores" env:"NUM_CORES"`

		// ResampleWorkers splits each resampling run across goroutines
		ResampleWorkers int `yaml:"resampleWorkers" env:"RESAMPLE_WORKERS"`
	} `yaml:"processing" envPrefix:"PROCESSING_"`

	// Validation thresholds
	Validation struct {
		// OriginTolerance is the absolute origin tolerance in mm
		OriginTolerance float64 `yaml:"originTolerance" env:"ORIGIN_TOLERANCE"`

		// DirectionTolerance is the absolute direction-cosine tolerance
		DirectionTolerance float64 `yaml:"directionTolerance" env:"DIRECTION_TOLERANCE"`
	} `yaml:"validation" envPrefix:"VALIDATION_"`

	// Output parameters
	Output struct {
		// SaveOverlays writes a QC preview per processed subject
		SaveOverlays bool `yaml:"saveOverlays" env:"SAVE_OVERLAYS"`

		// OverlayDir is where QC previews are written
		OverlayDir string `yaml:"overlayDir" env:"OVERLAY_DIR"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" env:"VERBOSE"`
	} `yaml:"output" envPrefix:"OUTPUT_"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Dataset layout defaults follow the training toolkit's raw data convention
	cfg.Dataset.RawDir = "NYU_MRI_Scans"
	cfg.Dataset.TaskName = "Dataset500_NYU"
	cfg.Dataset.Root = "nnUNet_raw_data"
	cfg.Dataset.Description = "NYU Brain MRI + Segmentation Dataset"
	cfg.Dataset.Labels = map[string]int{"background": 0, "tumor": 1}

	// Subjects are processed one at a time unless configured otherwise
	cfg.Processing.NumCores = 1
	cfg.Processing.ResampleWorkers = 1

	cfg.Validation.OriginTolerance = alignment.DefaultOriginTolerance
	cfg.Validation.DirectionTolerance = alignment.DefaultDirectionTolerance

	cfg.Output.SaveOverlays = false
	cfg.Output.OverlayDir = "overlays"
	cfg.Output.Verbose = true

	return cfg
}

// TaskDir returns <root>/<taskName>
func (c *Config) TaskDir() string {
	return filepath.Join(c.Dataset.Root, c.Dataset.TaskName)
}

// ImagesDir returns the scan directory, defaulting to <task>/imagesTr
func (c *Config) ImagesDir() string {
	if c.Dataset.ImagesDir != "" {
		return c.Dataset.ImagesDir
	}
	return filepath.Join(c.TaskDir(), "imagesTr")
}

// LabelsDir returns the label directory, defaulting to <task>/labelsTr
func (c *Config) LabelsDir() string {
	if c.Dataset.LabelsDir != "" {
		return c.Dataset.LabelsDir
	}
	return filepath.Join(c.TaskDir(), "labelsTr")
}

// ManifestPath returns <task>/dataset.json
func (c *Config) ManifestPath() string {
	return filepath.Join(c.TaskDir(), "dataset.json")
}

// Tolerances returns the configured validation thresholds
func (c *Config) Tolerances() alignment.Tolerances {
	return alignment.Tolerances{
		Origin:    c.Validation.OriginTolerance,
		Direction: c.Validation.DirectionTolerance,
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.ResampleWorkers < 1 {
		return fmt.Errorf("processing.resampleWorkers must be at least 1, got %d", c.Processing.ResampleWorkers)
	}
	if c.Validation.OriginTolerance < 0 || c.Validation.DirectionTolerance < 0 {
		return fmt.Errorf("validation tolerances must be non-negative")
	}
	if c.Dataset.TaskName == "" && (c.Dataset.ImagesDir == "" || c.Dataset.LabelsDir == "") {
		return fmt.Errorf("dataset.taskName is required unless imagesDir and labelsDir are both set")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file and applies MRILABELSYNC_*
// environment overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Read config file if present
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Environment wins over the file
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "MRILABELSYNC_"}); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
