package worker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables the worker reads its credentials from
const (
	EnvURL       = "VOXKIT_URL"
	EnvAPIKey    = "VOXKIT_API_KEY"
	EnvAPISecret = "VOXKIT_API_SECRET"
)

// Config holds the worker's connection settings. Values come from a YAML
// file, the environment, or both; environment variables win.
type Config struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// AgentName identifies this worker fleet to the job dispatcher
	AgentName string `yaml:"agent_name"`

	// MaxJobs caps concurrently running jobs. 0 means unlimited.
	MaxJobs int `yaml:"max_jobs"`
}

// ConfigFromEnv builds a config from VOXKIT_* environment variables
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file and overlays VOXKIT_* environment
// variables on top of it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvURL); v != "" {
		c.URL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvAPISecret); v != "" {
		c.APISecret = v
	}
}

// Validate checks that all required settings are present
func (c *Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, EnvURL)
	}
	if c.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.APISecret == "" {
		missing = append(missing, EnvAPISecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
