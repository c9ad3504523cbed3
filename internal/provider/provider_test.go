package provider

import (
	"testing"
	"time"
)

// TestConfigValidate exercises the startup validation paths so bad
// deployments fail fast rather than on the first request.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid openai",
			cfg:     Config{Backend: BackendOpenAI, Endpoint: "http://localhost:8000", Model: "m"},
			wantErr: false,
		},
		{
			name:    "valid ollama",
			cfg:     Config{Backend: BackendOllama, Endpoint: "http://localhost:11434", Model: "m"},
			wantErr: false,
		},
		{
			name:    "missing endpoint",
			cfg:     Config{Backend: BackendOpenAI, Model: "m"},
			wantErr: true,
		},
		{
			name:    "malformed endpoint",
			cfg:     Config{Backend: BackendOpenAI, Endpoint: "not a url", Model: "m"},
			wantErr: true,
		},
		{
			name:    "missing model",
			cfg:     Config{Backend: BackendOpenAI, Endpoint: "http://localhost:8000"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "bedrock", Endpoint: "http://localhost:8000", Model: "m"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestVLMConfigFromEnv verifies env resolution and defaults for the
// reasoning-stage config.
func TestVLMConfigFromEnv(t *testing.T) {
	t.Setenv("VLM_ENDPOINT", "http://gpu-a:9000")
	t.Setenv("VLM_MODEL", "custom/vlm")
	t.Setenv("GENERATION_MAX_TOKENS", "2048")
	t.Setenv("GENERATION_TEMPERATURE", "0.5")

	cfg := VLMConfigFromEnv()
	if cfg.Endpoint != "http://gpu-a:9000" {
		t.Errorf("Endpoint: got %q", cfg.Endpoint)
	}
	if cfg.Model != "custom/vlm" {
		t.Errorf("Model: got %q", cfg.Model)
	}
	if cfg.MaxTokens != 2048 {
		t.Errorf("MaxTokens: got %d", cfg.MaxTokens)
	}
	if cfg.Temperature != 0.5 {
		t.Errorf("Temperature: got %v", cfg.Temperature)
	}
	if cfg.Backend != BackendOpenAI {
		t.Errorf("Backend: expected default openai, got %q", cfg.Backend)
	}
}

// TestCodegenConfigFromEnv_Defaults verifies the baked-in defaults when no
// env vars are set.
func TestCodegenConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("CODEGEN_ENDPOINT", "")
	t.Setenv("CODEGEN_MODEL", "")
	t.Setenv("GENERATION_MAX_TOKENS", "")

	cfg := CodegenConfigFromEnv()
	if cfg.Endpoint != "http://localhost:8001" {
		t.Errorf("Endpoint default: got %q", cfg.Endpoint)
	}
	if cfg.Model != "deepseek-ai/deepseek-coder-1.3b-instruct" {
		t.Errorf("Model default: got %q", cfg.Model)
	}
	if cfg.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens default: got %d", cfg.MaxTokens)
	}
}

// TestRequestTimeoutFromEnv verifies parsing and fallback of the generation
// timeout.
func TestRequestTimeoutFromEnv(t *testing.T) {
	t.Setenv("GENERATION_TIMEOUT", "90s")
	if d := RequestTimeoutFromEnv(); d != 90*time.Second {
		t.Errorf("expected 90s, got %v", d)
	}

	t.Setenv("GENERATION_TIMEOUT", "garbage")
	if d := RequestTimeoutFromEnv(); d != defaultTimeout {
		t.Errorf("expected default %v for unparseable value, got %v", defaultTimeout, d)
	}
}
