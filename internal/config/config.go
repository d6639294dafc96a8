// Package config loads the runtime configuration for a conclave node
// from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration for a conclaved
// process.
type Config struct {
	HTTPPort int    `yaml:"http_port"`
	DBPath   string `yaml:"db_path"`
	NodeID   string `yaml:"node_id"`

	Broker BrokerConfig `yaml:"broker"`
	LLM    LLMConfig    `yaml:"llm"`
	Queue  QueueConfig  `yaml:"queue"`
}

// BrokerConfig controls how this node reaches NATS.
type BrokerConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	StoreDir string `yaml:"store_dir"`
}

// LLMConfig selects and authenticates the decomposition provider.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// QueueConfig tunes the Distributed Task Service.
type QueueConfig struct {
	MaxParallelism int           `yaml:"max_parallelism"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
}

// Default returns a configuration usable for local/dev runs with an
// embedded broker and in-process SQLite file.
func Default() Config {
	return Config{
		HTTPPort: 8080,
		DBPath:   "conclave.db",
		Broker: BrokerConfig{
			Embedded: true,
			StoreDir: "./data/broker",
		},
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "local",
		},
		Queue: QueueConfig{
			MaxParallelism: 4,
			LeaseDuration:  30 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file, applying it on top of
// Default so an operator only needs to specify overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
