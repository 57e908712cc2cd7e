package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile writes content to a temp YAML file and points
// GOFILE_CONFIG at it for the duration of the test. Override variables
// inherited from the host environment are cleared so they cannot leak in.
func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	for _, env := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_ORG_ID", "OPENAI_PROJECT_ID",
		"PORT", "FILESIM_MASTER_KEY", "STORAGE_TYPE", "METRICS_ENABLED",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(env, "")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("GOFILE_CONFIG", path)
}

func TestLoad_Defaults(t *testing.T) {
	// Point at an empty file so a stray config.yaml in the working
	// directory cannot leak into the test.
	writeConfigFile(t, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1", cfg.Client.BaseURL)
	assert.Empty(t, cfg.Client.APIKey)

	assert.Equal(t, 3, cfg.Resilience.Retry.MaxRetries)
	assert.Equal(t, 2.0, cfg.Resilience.Retry.BackoffFactor)
	assert.Equal(t, 5, cfg.Resilience.CircuitBreaker.FailureThreshold)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)

	assert.Equal(t, "8080", cfg.Sim.Port)
	assert.Equal(t, "memory", cfg.Sim.Store.Type)
	assert.True(t, cfg.Sim.ValidateJSONL)
	assert.Equal(t, int64(100<<20), cfg.Sim.BodySizeBytes)
}

func TestLoad_YAMLFile(t *testing.T) {
	writeConfigFile(t, `
client:
  api_key: sk-from-yaml
  base_url: http://localhost:9090/v1
logging:
  level: debug
  format: json
metrics:
  enabled: true
  endpoint: /internal/metrics
sim:
  port: "9090"
  body_size_limit: 512KB
  processing_delay: 2
  store:
    type: sqlite
    sqlite:
      path: /tmp/files.db
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-yaml", cfg.Client.APIKey)
	assert.Equal(t, "http://localhost:9090/v1", cfg.Client.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/internal/metrics", cfg.Metrics.Endpoint)
	assert.Equal(t, "9090", cfg.Sim.Port)
	assert.Equal(t, int64(512<<10), cfg.Sim.BodySizeBytes)
	assert.Equal(t, 2, cfg.Sim.ProcessingDelay)
	assert.Equal(t, "sqlite", cfg.Sim.Store.Type)
	assert.Equal(t, "/tmp/files.db", cfg.Sim.Store.SQLite.Path)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxRetries)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	writeConfigFile(t, `
client:
  api_key: sk-from-yaml
sim:
  port: "9000"
`)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Client.APIKey)
	assert.Equal(t, "9090", cfg.Sim.Port)
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	t.Setenv("GOFILE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestLoad_MalformedYAML(t *testing.T) {
	writeConfigFile(t, "client: [this is not a mapping")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{"bad port", map[string]string{"PORT": "not-a-port"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"unknown store type", map[string]string{"STORAGE_TYPE": "floppy"}},
		{"bad size limit", map[string]string{"FILESIM_BODY_SIZE_LIMIT": "12XB"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"negative processing delay", map[string]string{"FILESIM_PROCESSING_DELAY": "-5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfigFile(t, "")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := buildDefaultConfig()

	assert.Equal(t, "1s", cfg.Resilience.Retry.InitialBackoffDuration().String())
	assert.Equal(t, "30s", cfg.Resilience.Retry.MaxBackoffDuration().String())
	assert.Equal(t, "30s", cfg.Resilience.CircuitBreaker.TimeoutDuration().String())
	assert.Equal(t, "0s", cfg.Sim.ProcessingDelayDuration().String())

	cfg.Resilience.Retry.InitialBackoff = 0.5
	assert.Equal(t, "500ms", cfg.Resilience.Retry.InitialBackoffDuration().String())

	cfg.Sim.ProcessingDelay = 2
	assert.Equal(t, "2s", cfg.Sim.ProcessingDelayDuration().String())
}
