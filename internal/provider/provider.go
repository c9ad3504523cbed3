// Package provider constructs the chat models used by the reasoning and
// code-generation stages. Both stages speak to OpenAI-compatible serving
// processes (vLLM in production), so the default backend is the eino openai
// component pointed at a custom base URL; an ollama backend is available for
// local development without GPUs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// ErrUpstream classifies a failed or malformed response from a remote
// chat-completion call. Stages wrap completion errors with this sentinel so
// the orchestrator can distinguish upstream failures from local ones.
var ErrUpstream = errors.New("upstream completion failure")

// Backend enumerates the supported inference backends.
type Backend string

const (
	// BackendOpenAI selects any OpenAI-compatible server (vLLM, OpenAI).
	BackendOpenAI Backend = "openai"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
)

// Generation defaults from the deployed configuration: short answers at low
// temperature, with a request ceiling far above plausible generation latency.
const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.1
	defaultTimeout     = 600 * time.Second
)

// Config holds the settings for one chat-model stage.
type Config struct {
	// Backend identifies which inference backend to use.
	Backend Backend

	// Endpoint is the base URL of the serving process (no API path suffix),
	// e.g. "http://localhost:8000". The OpenAI-compatible API lives under
	// <Endpoint>/v1; the liveness probe under <Endpoint>/health.
	Endpoint string

	// Model is the served model name (e.g. "Qwen/Qwen2.5-VL-3B-Instruct").
	Model string

	// APIKey is the bearer token, if the endpoint requires one.
	// Self-hosted vLLM deployments usually leave this empty.
	APIKey string

	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate checks the config for errors that would otherwise only surface on
// the first request.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("provider: endpoint must not be empty")
	}
	if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return fmt.Errorf("provider: invalid endpoint %q: %w", c.Endpoint, err)
	}
	if c.Model == "" {
		return fmt.Errorf("provider: model must not be empty")
	}
	switch c.Backend {
	case BackendOpenAI, BackendOllama:
		return nil
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: openai, ollama", c.Backend)
	}
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend factory. It validates the config first so callers get
// a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature

	switch cfg.Backend {
	case BackendOllama:
		return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
		})
	default:
		return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
			BaseURL:     cfg.Endpoint + "/v1",
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	}
}

// VLMConfigFromEnv resolves the reasoning-stage config from VLM_ENDPOINT and
// VLM_MODEL plus the shared MODEL_* / GENERATION_* env vars.
func VLMConfigFromEnv() *Config {
	return stageConfigFromEnv(
		getEnvOrDefault("VLM_ENDPOINT", "http://localhost:8000"),
		getEnvOrDefault("VLM_MODEL", "Qwen/Qwen2.5-VL-3B-Instruct"),
	)
}

// CodegenConfigFromEnv resolves the code-generation-stage config from
// CODEGEN_ENDPOINT and CODEGEN_MODEL plus the shared env vars.
func CodegenConfigFromEnv() *Config {
	return stageConfigFromEnv(
		getEnvOrDefault("CODEGEN_ENDPOINT", "http://localhost:8001"),
		getEnvOrDefault("CODEGEN_MODEL", "deepseek-ai/deepseek-coder-1.3b-instruct"),
	)
}

// RequestTimeoutFromEnv returns the per-call generation timeout from
// GENERATION_TIMEOUT, defaulting to 600s. This ceiling is deliberately much
// longer than the readiness probe timeout — generation is slow, probing is not.
func RequestTimeoutFromEnv() time.Duration {
	if v := os.Getenv("GENERATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultTimeout
}

// stageConfigFromEnv assembles a Config from the shared env vars plus the
// per-stage endpoint and model.
func stageConfigFromEnv(endpoint, modelName string) *Config {
	return &Config{
		Backend:     Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOpenAI))),
		Endpoint:    endpoint,
		Model:       modelName,
		APIKey:      os.Getenv("MODEL_API_KEY"),
		MaxTokens:   getEnvInt("GENERATION_MAX_TOKENS", defaultMaxTokens),
		Temperature: getEnvFloat32("GENERATION_TEMPERATURE", defaultTemperature),
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
