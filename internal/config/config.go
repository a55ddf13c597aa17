package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface and scratch storage.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	ScratchDir string `yaml:"scratch_dir"`
}

// OllamaConfig configures the model gateway.
type OllamaConfig struct {
	BaseURL        string `yaml:"base_url"`
	GenerateModel  string `yaml:"generate_model"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
}

// SMTPConfig configures history export delivery. Credentials come from the
// environment (EMAIL_ADDRESS / EMAIL_PASSWORD), not the config file.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"-"`
	Password string `yaml:"-"`
	From     string `yaml:"-"`
	To       string `yaml:"-"`
}

// LectureConfig configures the unlock schedule.
type LectureConfig struct {
	SchedulePath string `yaml:"schedule_path"`
	TestMode     bool   `yaml:"test_mode"`
}

// SessionConfig bounds session memory growth.
type SessionConfig struct {
	IdleTimeoutHours int `yaml:"idle_timeout_hours"`
}

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Ollama   OllamaConfig  `yaml:"ollama"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	Lectures LectureConfig `yaml:"lectures"`
	Sessions SessionConfig `yaml:"sessions"`
}

// Load reads the config from path, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Ollama: OllamaConfig{
			BaseURL:        "http://127.0.0.1:11434",
			GenerateModel:  "llama2",
			EmbedModel:     "nomic-embed-text",
			EmbedDimension: 768,
			TimeoutSecs:    60,
		},
		SMTP:     SMTPConfig{Host: "smtp.gmail.com", Port: 587},
		Lectures: LectureConfig{SchedulePath: "data/lectures.json"},
		Sessions: SessionConfig{IdleTimeoutHours: 12},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://127.0.0.1:11434"
	}
	if cfg.Ollama.GenerateModel == "" {
		cfg.Ollama.GenerateModel = "llama2"
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Ollama.EmbedDimension <= 0 {
		cfg.Ollama.EmbedDimension = 768
	}
	if cfg.Ollama.TimeoutSecs <= 0 {
		cfg.Ollama.TimeoutSecs = 60
	}
	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Lectures.SchedulePath == "" {
		cfg.Lectures.SchedulePath = "data/lectures.json"
	}
	if cfg.Sessions.IdleTimeoutHours <= 0 {
		cfg.Sessions.IdleTimeoutHours = 12
	}
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("EMAIL_ADDRESS"); addr != "" {
		cfg.SMTP.Username = addr
		cfg.SMTP.From = addr
		cfg.SMTP.To = addr
	}
	if pass := os.Getenv("EMAIL_PASSWORD"); pass != "" {
		cfg.SMTP.Password = pass
	}
	if v := os.Getenv("LECTURE_TEST_MODE"); v != "" {
		if testMode, err := strconv.ParseBool(v); err == nil {
			cfg.Lectures.TestMode = testMode
		}
	}
}
