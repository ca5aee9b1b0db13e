package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Environment
// variables override file values for deployment.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	AMQPURL        string `yaml:"amqpURL"`
	EventsExchange string `yaml:"eventsExchange"`
	PushQueue      string `yaml:"pushQueue"`

	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	JWTLeeway string `yaml:"jwtLeeway"`

	CallProviderURL string `yaml:"callProviderURL"`
	CallProviderKey string `yaml:"callProviderKey"`
	PushVendorURL   string `yaml:"pushVendorURL"`
	PushVendorKey   string `yaml:"pushVendorKey"`

	WSAuthTimeoutSeconds int `yaml:"wsAuthTimeoutSeconds"`
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
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	overrides := []struct {
		env   string
		field *string
	}{
		{"PORT", &cfg.Port},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"REDIS_ADDR", &cfg.RedisAddr},
		{"REDIS_PASSWORD", &cfg.RedisPassword},
		{"AMQP_URL", &cfg.AMQPURL},
		{"EVENTS_EXCHANGE", &cfg.EventsExchange},
		{"PUSH_QUEUE", &cfg.PushQueue},
		{"JWT_SECRET", &cfg.JWTSecret},
		{"JWT_ISSUER", &cfg.JWTIssuer},
		{"JWT_LEEWAY", &cfg.JWTLeeway},
		{"CALL_PROVIDER_URL", &cfg.CallProviderURL},
		{"CALL_PROVIDER_KEY", &cfg.CallProviderKey},
		{"PUSH_VENDOR_URL", &cfg.PushVendorURL},
		{"PUSH_VENDOR_KEY", &cfg.PushVendorKey},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.field = v
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.AMQPURL != "" && strings.TrimSpace(cfg.EventsExchange) == "" {
		return errors.New("config: eventsExchange is required when amqpURL is set")
	}
	return nil
}

// ParseJWTLeeway parses the optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
