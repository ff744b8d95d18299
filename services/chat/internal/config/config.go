package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with CHAT_CONFIG.
var ConfigPath = envOr("CHAT_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"logLevel"`
	Backend           string `yaml:"backend"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	BaseURL           string `yaml:"baseURL"`
	SystemPrompt      string `yaml:"systemPrompt"`
	MaxMessages       int    `yaml:"maxMessages"`
	AllowClientAPIKey bool   `yaml:"allowClientAPIKey"`

	// Service token verification; disabled when no public key is set.
	ServiceTokenPublicKeyPath string   `yaml:"serviceTokenPublicKeyPath"`
	ServiceTokenIssuers       []string `yaml:"serviceTokenIssuers"`
	ServiceTokenLeeway        string   `yaml:"serviceTokenLeeway"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("CHAT_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("CHAT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CHAT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CHAT_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MaxMessages = n
		}
	}
	if v := os.Getenv("CHAT_ALLOW_CLIENT_API_KEY"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.AllowClientAPIKey = b
		}
	}
	if v := os.Getenv("SERVICE_TOKEN_PUBLIC_KEY_PATH"); v != "" {
		cfg.ServiceTokenPublicKeyPath = strings.TrimSpace(v)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.Backend {
	case "openai", "ollama":
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return errors.New("config: apiKey is required for the gemini backend (set in config.yaml or CHAT_API_KEY)")
		}
	case "":
		return errors.New("config: backend is required (set in config.yaml or CHAT_BACKEND)")
	default:
		return fmt.Errorf("config: backend must be openai, gemini or ollama, got %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return errors.New("config: model is required (set in config.yaml or CHAT_MODEL)")
	}
	if cfg.MaxMessages < 0 {
		return errors.New("config: maxMessages must be >= 0")
	}
	if _, err := ParseDuration("serviceTokenLeeway", cfg.ServiceTokenLeeway); err != nil {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ParseDuration parses an optional duration setting.
func ParseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	return dur, nil
}
