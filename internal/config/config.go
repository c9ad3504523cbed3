// Package config provides YAML-based configuration for eetutor.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. EETUTOR_CONFIG environment variable
//  3. ~/.eetutor/config.yaml
//  4. ./eetutor.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model backend shared by both inference stages.
	Model ModelConfig `yaml:"model"`

	// VLM configures the vision-language reasoning endpoint.
	VLM EndpointConfig `yaml:"vlm"`

	// Codegen configures the diagram-code generation endpoint.
	Codegen EndpointConfig `yaml:"codegen"`

	// Embedding configures the page-embedding service.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval configures PDF rasterization and page retrieval.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Health configures the readiness gate for the inference endpoints.
	Health HealthConfig `yaml:"health"`

	// Diagram configures the diagram compiler sandbox.
	Diagram DiagramConfig `yaml:"diagram"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures solve-history persistence.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds settings shared by both chat model stages.
type ModelConfig struct {
	// Provider selects the chat backend: openai (vLLM-compatible) or ollama.
	Provider string `yaml:"provider"`

	// APIKey is the bearer token sent to the inference endpoints.
	// Self-hosted vLLM deployments usually leave this empty.
	APIKey string `yaml:"api_key"`

	// MaxTokens is the maximum number of tokens generated per response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// RequestTimeout bounds a single chat-completion call (e.g. "600s").
	// Must exceed plausible generation latency — it is deliberately much
	// longer than the readiness probe timeout.
	RequestTimeout string `yaml:"request_timeout"`
}

// EndpointConfig identifies one model-serving endpoint.
type EndpointConfig struct {
	// Endpoint is the base URL of the serving process (e.g. "http://localhost:8000").
	Endpoint string `yaml:"endpoint"`
	// Model is the served model name passed in completion requests.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds the page-embedding service settings.
type EmbeddingConfig struct {
	// Endpoint is the base URL of the embedding server.
	Endpoint string `yaml:"endpoint"`
	// Model is the embedding model identifier (informational, sent with requests).
	Model string `yaml:"model"`
}

// RetrievalConfig holds document indexing and retrieval settings.
type RetrievalConfig struct {
	// BatchSize is the number of pages embedded per request.
	BatchSize int `yaml:"batch_size"`
	// TopK is the default number of pages returned per query.
	TopK int `yaml:"top_k"`
	// RenderDPI is the resolution at which PDF pages are rasterized.
	RenderDPI int `yaml:"render_dpi"`
}

// HealthConfig holds readiness-gate settings.
type HealthConfig struct {
	// MaxAttempts is the number of probes before giving up.
	MaxAttempts int `yaml:"max_attempts"`
	// ProbeTimeout bounds a single probe (e.g. "30s").
	ProbeTimeout string `yaml:"probe_timeout"`
	// Interval is the sleep between failed probes (e.g. "10s").
	Interval string `yaml:"interval"`
}

// DiagramConfig holds diagram compiler settings.
type DiagramConfig struct {
	// PythonBin is the interpreter used to run generated diagram programs.
	PythonBin string `yaml:"python_bin"`
	// DPI is the raster resolution of the rendered diagram.
	DPI int `yaml:"dpi"`
	// Timeout is the hard wall-clock budget per compile (e.g. "120s").
	Timeout string `yaml:"timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var EETUTOR_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds solve-history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_API_KEY", func(c *Config) string { return c.Model.APIKey }},
	{"GENERATION_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"GENERATION_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return c.Model.RequestTimeout }},
	{"VLM_ENDPOINT", func(c *Config) string { return c.VLM.Endpoint }},
	{"VLM_MODEL", func(c *Config) string { return c.VLM.Model }},
	{"CODEGEN_ENDPOINT", func(c *Config) string { return c.Codegen.Endpoint }},
	{"CODEGEN_MODEL", func(c *Config) string { return c.Codegen.Model }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"RETRIEVAL_BATCH_SIZE", func(c *Config) string { return intStr(c.Retrieval.BatchSize) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_RENDER_DPI", func(c *Config) string { return intStr(c.Retrieval.RenderDPI) }},
	{"HEALTH_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Health.MaxAttempts) }},
	{"HEALTH_PROBE_TIMEOUT", func(c *Config) string { return c.Health.ProbeTimeout }},
	{"HEALTH_INTERVAL", func(c *Config) string { return c.Health.Interval }},
	{"DIAGRAM_PYTHON_BIN", func(c *Config) string { return c.Diagram.PythonBin }},
	{"DIAGRAM_DPI", func(c *Config) string { return intStr(c.Diagram.DPI) }},
	{"DIAGRAM_TIMEOUT", func(c *Config) string { return c.Diagram.Timeout }},
	{"EETUTOR_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"EETUTOR_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("EETUTOR_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".eetutor", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("eetutor.yaml"); err == nil {
		return "eetutor.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
