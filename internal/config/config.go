package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Quality  QualityConfig  `json:"quality"`
	Detector DetectorConfig `json:"detector"`
	Editor   EditorConfig   `json:"editor"`
	Pipeline PipelineConfig `json:"pipeline"`
	Selector SelectorConfig `json:"selector"`
	Output   OutputConfig   `json:"output"`
}

// QualityConfig holds the frame scoring weights
type QualityConfig struct {
	SharpnessWeight  float64 `json:"sharpness_weight"`
	ContrastWeight   float64 `json:"contrast_weight"`
	BrightnessWeight float64 `json:"brightness_weight"`
	GlareWeight      float64 `json:"glare_weight"`
}

// DetectorConfig holds the fundus region detection thresholds
type DetectorConfig struct {
	MinBrightness  float64 `json:"min_brightness"`
	MaxBrightness  float64 `json:"max_brightness"`
	RadiusFraction float64 `json:"radius_fraction"`
}

// EditorConfig holds the crop editor interaction limits
type EditorConfig struct {
	EdgeBand  float64 `json:"edge_band"`
	MinRadius float64 `json:"min_radius"`
}

// PipelineConfig holds the enhancement pipeline constants
type PipelineConfig struct {
	GlareThreshold float64 `json:"glare_threshold"`
	GlareFactor    float64 `json:"glare_factor"`
	SampleFraction float64 `json:"sample_fraction"`
	BalanceMin     float64 `json:"balance_min"`
	BalanceMax     float64 `json:"balance_max"`
	BlurSigma      float64 `json:"blur_sigma"`
	DetailGain     float64 `json:"detail_gain"`
	CanonicalSize  int     `json:"canonical_size"`
}

// SelectorConfig holds the best-frame search parameters
type SelectorConfig struct {
	FPS        float64 `json:"fps"`
	MaxSamples int     `json:"max_samples"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Quality       int    `json:"quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Quality: QualityConfig{
			SharpnessWeight:  0.4,
			ContrastWeight:   0.3,
			BrightnessWeight: 0.2,
			GlareWeight:      0.1,
		},
		Detector: DetectorConfig{
			MinBrightness:  50,
			MaxBrightness:  230,
			RadiusFraction: 0.35,
		},
		Editor: EditorConfig{
			EdgeBand:  30,
			MinRadius: 50,
		},
		Pipeline: PipelineConfig{
			GlareThreshold: 235,
			GlareFactor:    0.9,
			SampleFraction: 0.3,
			BalanceMin:     0.7,
			BalanceMax:     1.3,
			BlurSigma:      0.5,
			DetailGain:     0.3,
			CanonicalSize:  1024,
		},
		Selector: SelectorConfig{
			FPS:        30,
			MaxSamples: 30,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			OutputDir:     "./output",
			Quality:       95,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Quality.SharpnessWeight < 0 || c.Quality.ContrastWeight < 0 ||
		c.Quality.BrightnessWeight < 0 || c.Quality.GlareWeight < 0 {
		return fmt.Errorf("quality weights must be non-negative")
	}

	if c.Detector.MinBrightness < 0 || c.Detector.MinBrightness >= c.Detector.MaxBrightness {
		return fmt.Errorf("detector.min_brightness must be non-negative and below max_brightness")
	}

	if c.Detector.MaxBrightness > 255 {
		return fmt.Errorf("detector.max_brightness must not exceed 255")
	}

	if c.Detector.RadiusFraction <= 0 || c.Detector.RadiusFraction > 0.5 {
		return fmt.Errorf("detector.radius_fraction must be between 0 and 0.5")
	}

	if c.Editor.EdgeBand <= 0 {
		return fmt.Errorf("editor.edge_band must be positive")
	}

	if c.Editor.MinRadius < 0 {
		return fmt.Errorf("editor.min_radius must be non-negative")
	}

	if c.Pipeline.GlareThreshold <= 0 || c.Pipeline.GlareThreshold > 255 {
		return fmt.Errorf("pipeline.glare_threshold must be between 1 and 255")
	}

	if c.Pipeline.BalanceMin <= 0 || c.Pipeline.BalanceMin > c.Pipeline.BalanceMax {
		return fmt.Errorf("pipeline.balance_min must be positive and not above balance_max")
	}

	if c.Pipeline.CanonicalSize < 1 {
		return fmt.Errorf("pipeline.canonical_size must be positive")
	}

	if c.Selector.FPS <= 0 {
		return fmt.Errorf("selector.fps must be positive")
	}

	if c.Selector.MaxSamples < 1 {
		return fmt.Errorf("selector.max_samples must be positive")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "fundus-extractor", "config.json")
}
