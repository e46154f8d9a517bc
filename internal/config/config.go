package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel   = "qwen-plus"
	APIKeyEnv      = "DASHSCOPE_API_KEY"
)

// Config is read by viper from an optional YAML file and SFT_* environment
// variables. DASHSCOPE_API_KEY is honoured for the API key.
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Output OutputConfig `mapstructure:"output"`
	Pace   PaceConfig   `mapstructure:"pace"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Key     string        `mapstructure:"key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// PaceConfig scales every pause between API calls and batches. 0 turns the
// pauses off.
type PaceConfig struct {
	Scale float64 `mapstructure:"scale"`
}

func (p PaceConfig) Apply(d time.Duration) time.Duration {
	if p.Scale <= 0 {
		return 0
	}
	return time.Duration(float64(d) * p.Scale)
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sft-forge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sft-forge"))
		}
	}

	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.model", DefaultModel)
	v.SetDefault("api.timeout", 60*time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("output.dir", ".")
	v.SetDefault("pace.scale", 1.0)

	v.SetEnvPrefix("SFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api.key", "SFT_API_KEY", APIKeyEnv); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Model == "" {
		return fmt.Errorf("api.model is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Pace.Scale < 0 {
		return fmt.Errorf("pace.scale must not be negative")
	}
	return nil
}

// OutputPath resolves name against the configured output directory.
func (c *Config) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}
