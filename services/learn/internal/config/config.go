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

// ConfigPath is the default config file, overridable with LEARN_CONFIG.
var ConfigPath = envOr("LEARN_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port"`
	LogLevel          string   `yaml:"logLevel"`
	DatabaseURL       string   `yaml:"databaseURL"`
	CatalogPath       string   `yaml:"catalogPath"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	// End-user session tokens: exactly one of jwksURL or jwtSecret.
	JWKSURL     string `yaml:"jwksURL"`
	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	FunctionsBaseURL           string            `yaml:"functionsBaseURL"`
	FunctionURLs               map[string]string `yaml:"functionURLs"`
	ServiceTokenPrivateKeyPath string            `yaml:"serviceTokenPrivateKeyPath"`
	ServiceTokenKeyID          string            `yaml:"serviceTokenKeyId"`
	ServiceTokenTTL            string            `yaml:"serviceTokenTTL"`

	PaymentMode            string `yaml:"paymentMode"`
	ChatMaxTurns           int    `yaml:"chatMaxTurns"`
	ReviewMinCommentLength int    `yaml:"reviewMinCommentLength"`

	RedisAddr                  string `yaml:"redisAddr"`
	RedisPassword              string `yaml:"redisPassword"`
	ChatRateLimitPerMinute     int    `yaml:"chatRateLimitPerMinute"`
	PurchaseRateLimitPerMinute int    `yaml:"purchaseRateLimitPerMinute"`

	// EventsBackend is one of none, redis or amqp.
	EventsBackend string `yaml:"eventsBackend"`
	EventsStream  string `yaml:"eventsStream"`
	AMQPURL       string `yaml:"amqpURL"`
	AMQPExchange  string `yaml:"amqpExchange"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioRegion    string `yaml:"minioRegion"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
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
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LEARN_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LEARN_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("LEARN_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("LEARN_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.JWKSURL = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("FUNCTIONS_BASE_URL"); v != "" {
		cfg.FunctionsBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SERVICE_TOKEN_PRIVATE_KEY_PATH"); v != "" {
		cfg.ServiceTokenPrivateKeyPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("LEARN_PAYMENT_MODE"); v != "" {
		cfg.PaymentMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("LEARN_CHAT_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ChatMaxTurns = n
		}
	}
	if v := os.Getenv("LEARN_REVIEW_MIN_COMMENT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ReviewMinCommentLength = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LEARN_CHAT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChatRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LEARN_PURCHASE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PurchaseRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LEARN_EVENTS_BACKEND"); v != "" {
		cfg.EventsBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.PaymentMode == "" {
		cfg.PaymentMode = "live"
	}
	if cfg.EventsBackend == "" {
		cfg.EventsBackend = "none"
	}
	if cfg.ChatMaxTurns == 0 {
		cfg.ChatMaxTurns = 20
	}
	if cfg.ReviewMinCommentLength == 0 {
		cfg.ReviewMinCommentLength = 10
	}
	if cfg.ChatRateLimitPerMinute == 0 {
		cfg.ChatRateLimitPerMinute = 20
	}
	if cfg.PurchaseRateLimitPerMinute == 0 {
		cfg.PurchaseRateLimitPerMinute = 10
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	jwks := strings.TrimSpace(cfg.JWKSURL) != ""
	secret := strings.TrimSpace(cfg.JWTSecret) != ""
	if jwks == secret {
		return errors.New("config: exactly one of jwksURL or jwtSecret is required")
	}
	if _, err := ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := ParseDuration("serviceTokenTTL", cfg.ServiceTokenTTL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.FunctionsBaseURL) == "" && len(cfg.FunctionURLs) == 0 {
		return errors.New("config: functionsBaseURL is required (set in config.yaml or FUNCTIONS_BASE_URL)")
	}
	switch cfg.PaymentMode {
	case "demo", "live":
	default:
		return fmt.Errorf("config: paymentMode must be demo or live, got %q", cfg.PaymentMode)
	}
	if cfg.ChatMaxTurns < 1 {
		return errors.New("config: chatMaxTurns must be >= 1")
	}
	if cfg.ReviewMinCommentLength < 1 {
		return errors.New("config: reviewMinCommentLength must be >= 1")
	}
	if cfg.ChatRateLimitPerMinute < 0 || cfg.PurchaseRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	switch cfg.EventsBackend {
	case "none":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when eventsBackend is redis")
		}
	case "amqp":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required when eventsBackend is amqp (set in config.yaml or AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: eventsBackend must be none, redis or amqp, got %q", cfg.EventsBackend)
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
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
