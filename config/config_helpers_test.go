package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExpandString tests the expandString function with various scenarios
func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "string without placeholders",
			input:    "simple-string",
			envVars:  map[string]string{},
			expected: "simple-string",
		},
		{
			name:     "simple variable expansion",
			input:    "${API_KEY}",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "sk-12345",
		},
		{
			name:     "variable in middle of string",
			input:    "prefix-${API_KEY}-suffix",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "prefix-sk-12345-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "https", "HOST": "api.example.com", "PORT": "8080"},
			expected: "https://api.example.com:8080",
		},
		{
			name:     "variable with default value - env var exists",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": "sk-real-key"},
			expected: "sk-real-key",
		},
		{
			name:     "variable with default value - env var missing",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{},
			expected: "default-key",
		},
		{
			name:     "variable with default value - env var empty",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": ""},
			expected: "default-key",
		},
		{
			name:     "unresolved variable - no default",
			input:    "${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "${MISSING_VAR}",
		},
		{
			name:     "partially resolved string",
			input:    "${RESOLVED}-${UNRESOLVED}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1-${UNRESOLVED}",
		},
		{
			name:     "mixed resolved and unresolved with defaults",
			input:    "${RESOLVED}:${UNRESOLVED:-fallback}:${MISSING}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1:fallback:${MISSING}",
		},
		{
			name:     "default value with special characters",
			input:    "${API_KEY:-https://api.example.com/v1}",
			envVars:  map[string]string{},
			expected: "https://api.example.com/v1",
		},
		{
			name:     "default value with colon in it",
			input:    "${URL:-http://localhost:8080}",
			envVars:  map[string]string{},
			expected: "http://localhost:8080",
		},
		{
			name:     "complex real-world example",
			input:    "${BASE_URL:-https://api.openai.com}/v1/files",
			envVars:  map[string]string{},
			expected: "https://api.openai.com/v1/files",
		},
		{
			name:     "environment variable set to empty string (no default)",
			input:    "${EMPTY_VAR}",
			envVars:  map[string]string{"EMPTY_VAR": ""},
			expected: "${EMPTY_VAR}",
		},
		{
			name:     "empty default value - env var missing",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "empty default value - env var set",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": "actual-value"},
			expected: "actual-value",
		},
		{
			name:     "master key pattern - not set should be empty",
			input:    "${FILESIM_MASTER_KEY:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "master key pattern - set to value",
			input:    "${FILESIM_MASTER_KEY:-}",
			envVars:  map[string]string{"FILESIM_MASTER_KEY": "secret-key"},
			expected: "secret-key",
		},
		{
			name:     "multiple placeholders some resolved some not",
			input:    "prefix-${VAR1}-${VAR2}-${VAR3}-suffix",
			envVars:  map[string]string{"VAR1": "a", "VAR3": "c"},
			expected: "prefix-a-${VAR2}-c-suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				_ = os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					_ = os.Unsetenv(k)
				}
			}()

			result := expandString(tt.input)
			if result != tt.expected {
				t.Errorf("expandString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestParseSize tests the human-readable size parser
func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"512KB", 512 << 10, false},
		{"10MB", 10 << 20, false},
		{"1GB", 1 << 30, false},
		{"100mb", 100 << 20, false},
		{"64B", 64, false},
		{"2048", 2048, false},
		{" 5 MB ", 5 << 20, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12XB", 0, true},
		{"-1MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSize(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sim.Port != "3000" {
					t.Errorf("Sim.Port = %q, want %q", cfg.Sim.Port, "3000")
				}
			},
		},
		{
			name:    "FILESIM_MASTER_KEY override",
			envVars: map[string]string{"FILESIM_MASTER_KEY": "my-secret"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sim.MasterKey != "my-secret" {
					t.Errorf("Sim.MasterKey = %q, want %q", cfg.Sim.MasterKey, "my-secret")
				}
			},
		},
		{
			name: "client overrides",
			envVars: map[string]string{
				"OPENAI_API_KEY":    "sk-test",
				"OPENAI_BASE_URL":   "http://localhost:8080/v1",
				"OPENAI_ORG_ID":     "org-42",
				"OPENAI_PROJECT_ID": "proj-7",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Client.APIKey != "sk-test" {
					t.Errorf("Client.APIKey = %q, want %q", cfg.Client.APIKey, "sk-test")
				}
				if cfg.Client.BaseURL != "http://localhost:8080/v1" {
					t.Errorf("Client.BaseURL = %q", cfg.Client.BaseURL)
				}
				if cfg.Client.Organization != "org-42" {
					t.Errorf("Client.Organization = %q", cfg.Client.Organization)
				}
				if cfg.Client.Project != "proj-7" {
					t.Errorf("Client.Project = %q", cfg.Client.Project)
				}
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sim.Store.Type != "postgresql" {
					t.Errorf("Store.Type = %q, want %q", cfg.Sim.Store.Type, "postgresql")
				}
				if cfg.Sim.Store.PostgreSQL.URL != "postgres://localhost/test" {
					t.Errorf("Store.PostgreSQL.URL = %q", cfg.Sim.Store.PostgreSQL.URL)
				}
				if cfg.Sim.Store.PostgreSQL.MaxConns != 20 {
					t.Errorf("Store.PostgreSQL.MaxConns = %d, want %d", cfg.Sim.Store.PostgreSQL.MaxConns, 20)
				}
			},
		},
		{
			name:    "redis and s3 overrides",
			envVars: map[string]string{"REDIS_URL": "redis://cache:6379", "S3_BUCKET": "uploads", "S3_USE_PATH_STYLE": "true"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sim.Store.Redis.URL != "redis://cache:6379" {
					t.Errorf("Store.Redis.URL = %q", cfg.Sim.Store.Redis.URL)
				}
				if cfg.Sim.Store.S3.Bucket != "uploads" {
					t.Errorf("Store.S3.Bucket = %q", cfg.Sim.Store.S3.Bucket)
				}
				if !cfg.Sim.Store.S3.UsePathStyle {
					t.Error("Store.S3.UsePathStyle should be true")
				}
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "true", "FILESIM_VALIDATE_JSONL": "0"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled should be true")
				}
				if cfg.Sim.ValidateJSONL {
					t.Error("Sim.ValidateJSONL should be false")
				}
			},
		},
		{
			name:    "processing delay override",
			envVars: map[string]string{"FILESIM_PROCESSING_DELAY": "5"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sim.ProcessingDelay != 5 {
					t.Errorf("Sim.ProcessingDelay = %d, want 5", cfg.Sim.ProcessingDelay)
				}
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Sim.Port != "8080" {
					t.Errorf("Sim.Port = %q, want %q", cfg.Sim.Port, "8080")
				}
				if cfg.Resilience.Retry.MaxRetries != 3 {
					t.Errorf("Retry.MaxRetries = %d, want 3", cfg.Resilience.Retry.MaxRetries)
				}
				if !cfg.Sim.ValidateJSONL {
					t.Error("Sim.ValidateJSONL should default to true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

// TestApplyEnvOverridesRejectsBadValues ensures unparseable numeric and
// boolean env values surface as errors instead of being silently dropped.
func TestApplyEnvOverridesRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{"bad int", map[string]string{"POSTGRES_MAX_CONNS": "many"}},
		{"bad bool", map[string]string{"METRICS_ENABLED": "maybe"}},
		{"bad delay", map[string]string{"FILESIM_PROCESSING_DELAY": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.Error(t, applyEnvOverrides(cfg))
		})
	}
}
