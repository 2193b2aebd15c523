package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Providers  []ProviderConfig `json:"providers"`
	Agent      AgentConfig      `json:"agent"`
	Database   DatabaseConfig   `json:"database"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	OCR        OCRConfig        `json:"ocr"`
	Extensions ExtensionsConfig `json:"extensions"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Model    string            `json:"model"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// AgentConfig tunes the reasoning loop and the completion client.
type AgentConfig struct {
	Name             string  `json:"name"`
	MaxSteps         int     `json:"max_steps"`
	Temperature      float64 `json:"temperature"`
	MinIntervalMS    int     `json:"min_interval_ms"`
	MaxRetries       int     `json:"max_retries"`
	MemoryFanout     int     `json:"memory_fanout"`
	MemoryCollection string  `json:"memory_collection"`
}

// MinInterval returns the minimum wall-clock gap between completion requests.
func (a AgentConfig) MinInterval() time.Duration {
	return time.Duration(a.MinIntervalMS) * time.Millisecond
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// OCRConfig points at the external text-recognition service.
type OCRConfig struct {
	Endpoint string `json:"endpoint"`
}

// ExtensionsConfig locates dynamically loaded tool plugins.
type ExtensionsConfig struct {
	Dir string `json:"dir"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3180
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "questor"
	}
	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 5
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.7
	}
	if c.Agent.MinIntervalMS == 0 {
		c.Agent.MinIntervalMS = 1000
	}
	if c.Agent.MaxRetries == 0 {
		c.Agent.MaxRetries = 3
	}
	if c.Agent.MemoryFanout == 0 {
		c.Agent.MemoryFanout = 5
	}
	if c.Agent.MemoryCollection == "" {
		c.Agent.MemoryCollection = "questor_memory"
	}
}
