// Package config loads and validates studyNERD configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all studyNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Chat backend configuration
	LLM LLMConfig `yaml:"llm"`

	// Image generation configuration
	Image ImageConfig `yaml:"image"`

	// Tutoring behavior
	Tutor TutorConfig `yaml:"tutor"`

	// Session persistence
	Memory MemoryConfig `yaml:"memory"`

	// UI settings
	UI UIConfig `yaml:"ui"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the Gemini chat backend.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// ImageConfig configures the Imagen image backend.
type ImageConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Tier    string `yaml:"tier"` // 1K, 2K, 4K
	Timeout string `yaml:"timeout"`
}

// TutorConfig configures tutoring behavior.
type TutorConfig struct {
	// KnowledgeLevel controls response style: Beginner, Intermediate, Advanced
	KnowledgeLevel string `yaml:"knowledge_level"`
}

// MemoryConfig configures session persistence.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// UIConfig configures the TUI.
type UIConfig struct {
	Theme string `yaml:"theme"` // light, dark
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "studyNERD",
		Version: "0.3.0",

		LLM: LLMConfig{
			Model:           "gemini-2.5-flash",
			Timeout:         "120s",
			MaxOutputTokens: 8192,
		},

		Image: ImageConfig{
			Model:   "imagen-3.0-generate-002",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Tier:    "1K",
			Timeout: "90s",
		},

		Tutor: TutorConfig{
			KnowledgeLevel: "Beginner",
		},

		Memory: MemoryConfig{
			DatabasePath: filepath.Join(".studynerd", "sessions.db"),
		},

		UI: UIConfig{
			Theme: "dark",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigPath returns the path of the config file under the given workspace.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, ".studynerd", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("STUDYNERD_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("STUDYNERD_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
}

// GetLLMTimeout returns the chat backend timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetImageTimeout returns the image backend timeout as a duration.
func (c *Config) GetImageTimeout() time.Duration {
	d, err := time.ParseDuration(c.Image.Timeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// ValidKnowledgeLevels lists the supported knowledge levels.
var ValidKnowledgeLevels = []string{"Beginner", "Intermediate", "Advanced"}

// ValidImageTiers lists the supported image resolution tiers.
var ValidImageTiers = []string{"1K", "2K", "4K"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("Gemini API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}

	validLevel := false
	for _, l := range ValidKnowledgeLevels {
		if c.Tutor.KnowledgeLevel == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid knowledge level: %s (valid: %v)", c.Tutor.KnowledgeLevel, ValidKnowledgeLevels)
	}

	validTier := false
	for _, t := range ValidImageTiers {
		if c.Image.Tier == t {
			validTier = true
			break
		}
	}
	if !validTier {
		return fmt.Errorf("invalid image tier: %s (valid: %v)", c.Image.Tier, ValidImageTiers)
	}

	return nil
}
