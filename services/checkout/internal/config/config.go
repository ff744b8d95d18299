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

// ConfigPath is the default config file, overridable with CHECKOUT_CONFIG.
var ConfigPath = envOr("CHECKOUT_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	// Provider is stripe or midtrans.
	Provider string `yaml:"provider"`

	StripeSecretKey  string `yaml:"stripeSecretKey"`
	StripeAPIBaseURL string `yaml:"stripeAPIBaseURL"`
	Currency         string `yaml:"currency"`
	// SuccessURL and CancelURL may contain a {courseId} placeholder.
	SuccessURL string `yaml:"successURL"`
	CancelURL  string `yaml:"cancelURL"`

	MidtransServerKey  string `yaml:"midtransServerKey"`
	MidtransProduction bool   `yaml:"midtransProduction"`

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
	if v := os.Getenv("CHECKOUT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.StripeSecretKey = v
	}
	if v := os.Getenv("STRIPE_API_BASE_URL"); v != "" {
		cfg.StripeAPIBaseURL = v
	}
	if v := os.Getenv("MIDTRANS_SERVER_KEY"); v != "" {
		cfg.MidtransServerKey = v
	}
	if v := os.Getenv("MIDTRANS_PRODUCTION"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MidtransProduction = b
		}
	}
	if v := os.Getenv("SERVICE_TOKEN_PUBLIC_KEY_PATH"); v != "" {
		cfg.ServiceTokenPublicKeyPath = strings.TrimSpace(v)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.Provider {
	case "stripe":
		if strings.TrimSpace(cfg.StripeSecretKey) == "" {
			return errors.New("config: stripeSecretKey is required (set in config.yaml or STRIPE_SECRET_KEY)")
		}
		if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
			return errors.New("config: successURL and cancelURL are required for stripe")
		}
	case "midtrans":
		if strings.TrimSpace(cfg.MidtransServerKey) == "" {
			return errors.New("config: midtransServerKey is required (set in config.yaml or MIDTRANS_SERVER_KEY)")
		}
	case "":
		return errors.New("config: provider is required (set in config.yaml or CHECKOUT_PROVIDER)")
	default:
		return fmt.Errorf("config: provider must be stripe or midtrans, got %q", cfg.Provider)
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
