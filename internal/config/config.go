package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	MusicBrainz MusicBrainzConfig `yaml:"musicbrainz"`
	Judge       JudgeConfig       `yaml:"judge"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// MusicBrainzConfig holds external registry settings.
type MusicBrainzConfig struct {
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// JudgeConfig holds AI judge settings.
type JudgeConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PipelineConfig holds stage job runner settings.
type PipelineConfig struct {
	Workers             int     `yaml:"workers"`
	ProgressEvery       int     `yaml:"progress_every"`
	LocalMatchThreshold float64 `yaml:"local_match_threshold"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "/data/greatlist.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		MusicBrainz: MusicBrainzConfig{
			RequestsPerSecond: 1,
		},
		Judge: JudgeConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Pipeline: PipelineConfig{
			Workers:             2,
			ProgressEvery:       10,
			LocalMatchThreshold: 0.85,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("GL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("GL_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("GL_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("GL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("GL_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("GL_MUSICBRAINZ_URL"); v != "" {
		c.MusicBrainz.BaseURL = v
	}
	if v := os.Getenv("GL_JUDGE_URL"); v != "" {
		c.Judge.BaseURL = v
	}
	if v := os.Getenv("GL_JUDGE_API_KEY"); v != "" {
		c.Judge.APIKey = v
	}
	if v := os.Getenv("GL_JUDGE_MODEL"); v != "" {
		c.Judge.Model = v
	}
	if v := os.Getenv("GL_PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Workers = n
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.LocalMatchThreshold < 0 || c.Pipeline.LocalMatchThreshold > 1 {
		return fmt.Errorf("local match threshold must be within [0,1], got %v", c.Pipeline.LocalMatchThreshold)
	}
	return nil
}
