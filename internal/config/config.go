package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Feeds    []FeedConfig   `yaml:"feeds"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WorkerConfig selects the summarization worker process. Provider
// credentials belong in EnvFile, never in this file or the database.
type WorkerConfig struct {
	Command     string                   `yaml:"command"`
	Args        []string                 `yaml:"args,omitempty"`
	Provider    string                   `yaml:"provider"`
	Model       string                   `yaml:"model"`
	Timeout     string                   `yaml:"timeout"`
	MaxAttempts int                      `yaml:"max_attempts"`
	Backoff     string                   `yaml:"backoff"`
	EnvFile     string                   `yaml:"env_file,omitempty"`
	Bindings    map[string]WorkerBinding `yaml:"bindings,omitempty"`
}

// WorkerBinding overrides the worker command for one provider.
type WorkerBinding struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

type PipelineConfig struct {
	Workers           int    `yaml:"workers"`
	StaleAfter        string `yaml:"stale_after"`
	SeedDefaultConfig *bool  `yaml:"seed_default_config,omitempty"`
}

type FeedConfig struct {
	URL  string `yaml:"url"`
	Room string `yaml:"room,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GetTimeout parses the worker timeout string
func (w *WorkerConfig) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(w.Timeout)
}

// GetBackoff parses the retry backoff string
func (w *WorkerConfig) GetBackoff() (time.Duration, error) {
	return time.ParseDuration(w.Backoff)
}

// GetStaleAfter parses the stale claim threshold
func (p *PipelineConfig) GetStaleAfter() (time.Duration, error) {
	return time.ParseDuration(p.StaleAfter)
}

// ShouldSeed reports whether the built-in summary config is created on first run.
func (p *PipelineConfig) ShouldSeed() bool {
	return p.SeedDefaultConfig == nil || *p.SeedDefaultConfig
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "~/.minmind/minmind.db"
	}
	cfg.Database.Path = expandPath(cfg.Database.Path)

	if cfg.Worker.Command == "" {
		cfg.Worker.Command = "minmind-worker"
	}
	if cfg.Worker.Provider == "" {
		cfg.Worker.Provider = "ollama"
	}
	if cfg.Worker.Model == "" {
		cfg.Worker.Model = "llama3.1"
	}
	if cfg.Worker.Timeout == "" {
		cfg.Worker.Timeout = "2m"
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.Backoff == "" {
		cfg.Worker.Backoff = "2s"
	}
	if cfg.Worker.EnvFile != "" {
		cfg.Worker.EnvFile = expandPath(cfg.Worker.EnvFile)
	}

	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 2
	}
	if cfg.Pipeline.StaleAfter == "" {
		cfg.Pipeline.StaleAfter = "30m"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks values that defaults cannot fix.
func (cfg *Config) Validate() error {
	if _, err := cfg.Worker.GetTimeout(); err != nil {
		return fmt.Errorf("worker.timeout: %w", err)
	}
	if _, err := cfg.Worker.GetBackoff(); err != nil {
		return fmt.Errorf("worker.backoff: %w", err)
	}
	if _, err := cfg.Pipeline.GetStaleAfter(); err != nil {
		return fmt.Errorf("pipeline.stale_after: %w", err)
	}
	if cfg.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be at least 1, got %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}
	for i, f := range cfg.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feeds[%d]: url is empty", i)
		}
	}
	return nil
}

// Save writes configuration to file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "minmind", "config.yaml")
}
