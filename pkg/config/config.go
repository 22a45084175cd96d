package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/menta2k/vision-batch/internal/utils"
)

// Config holds the application configuration
type Config struct {
	Backend BackendConfig `json:"backend"`
	Send    SendConfig    `json:"send"`
	Export  ExportConfig  `json:"export"`
	Extract ExtractConfig `json:"extract"`
}

// BackendConfig selects and addresses the vision backend
type BackendConfig struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
	Model    string `json:"model"`
	Token    string `json:"token,omitempty"`
}

// SendConfig controls how images are prepared before inference
type SendConfig struct {
	Format  string `json:"format"`
	MaxDim  int    `json:"max_dim"`
	Quality int    `json:"quality"`
}

// ExportConfig controls batch result export
type ExportConfig struct {
	Format    string `json:"format"`
	OutputDir string `json:"output_dir"`
	Name      string `json:"name"`
}

// ExtractConfig controls region extraction
type ExtractConfig struct {
	OutputDir string `json:"output_dir"`
	Annotate  bool   `json:"annotate"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Provider: "ollama",
			URL:      "http://localhost:11434",
			Model:    "minicpm-v",
		},
		Send: SendConfig{
			Format:  "jpg",
			MaxDim:  1536,
			Quality: 85,
		},
		Export: ExportConfig{
			Format:    "json",
			OutputDir: "./output",
			Name:      "results",
		},
		Extract: ExtractConfig{
			OutputDir: "./crops",
			Annotate:  false,
		},
	}
}

// Load returns the configuration from the default path, overlaid with
// environment variables. A missing config file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	if path := GetConfigPath(); utils.FileExists(path) {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays VISION_BATCH_* variables, loading .env first when present
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("VISION_BATCH_PROVIDER"); v != "" {
		c.Backend.Provider = v
	}
	if v := os.Getenv("VISION_BATCH_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("VISION_BATCH_MODEL"); v != "" {
		c.Backend.Model = v
	}
	if v := os.Getenv("VISION_BATCH_TOKEN"); v != "" {
		c.Backend.Token = v
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
	switch c.Backend.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("backend.provider must be ollama or openai")
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url cannot be empty")
	}

	if c.Backend.Model == "" {
		return fmt.Errorf("backend.model cannot be empty")
	}

	switch c.Send.Format {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("send.format must be jpg, jpeg, or png")
	}

	if c.Send.Quality < 1 || c.Send.Quality > 100 {
		return fmt.Errorf("send.quality must be between 1 and 100")
	}

	if c.Send.MaxDim < 0 {
		return fmt.Errorf("send.max_dim cannot be negative")
	}

	switch c.Export.Format {
	case "json", "csv", "individual":
	default:
		return fmt.Errorf("export.format must be json, csv, or individual")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "vision-batch", "config.json")
}
