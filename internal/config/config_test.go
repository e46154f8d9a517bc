package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(APIKeyEnv, "")
	t.Setenv("SFT_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, DefaultModel, cfg.API.Model)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, 1.0, cfg.Pace.Scale)
	assert.Empty(t, cfg.API.Key)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
api:
  model: qwen-max
  timeout: 10s
retry:
  max_attempts: 5
output:
  dir: /tmp/out
pace:
  scale: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv(APIKeyEnv, "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qwen-max", cfg.API.Model)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, "sk-test", cfg.API.Key)
	assert.Zero(t, cfg.Pace.Apply(2*time.Second))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		API:   APIConfig{BaseURL: DefaultBaseURL, Model: DefaultModel},
		Retry: RetryConfig{MaxAttempts: 0},
	}
	assert.Error(t, cfg.Validate())

	cfg.Retry.MaxAttempts = 1
	assert.NoError(t, cfg.Validate())
}

func TestPaceAndOutputPath(t *testing.T) {
	p := PaceConfig{Scale: 0.5}
	assert.Equal(t, time.Second, p.Apply(2*time.Second))

	cfg := &Config{Output: OutputConfig{Dir: "data"}}
	assert.Equal(t, filepath.Join("data", "a.jsonl"), cfg.OutputPath("a.jsonl"))
	assert.Equal(t, "/abs/a.jsonl", cfg.OutputPath("/abs/a.jsonl"))
}
