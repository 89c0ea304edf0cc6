// Package config loads server configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port         string `yaml:"port"`
	LogLevel     string `yaml:"logLevel"`
	DatabaseURL  string `yaml:"databaseURL"`
	GeminiAPIKey string `yaml:"geminiAPIKey"`
	Model        string `yaml:"model"`
	DataDir      string `yaml:"dataDir"`

	// session strategy: "memory", "redis", or "jwt"
	SessionStrategy string `yaml:"sessionStrategy"`
	JWTSecret       string `yaml:"jwtSecret"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	SignupRateLimitPerMinute int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int `yaml:"loginRateLimitPerMinute"`
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
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SessionStrategy == "" {
		cfg.SessionStrategy = "memory"
	}
	if cfg.MinioBucket == "" {
		cfg.MinioBucket = "campusai-transcripts"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.GeminiAPIKey == "" {
		return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.SessionStrategy {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis session strategy")
		}
	case "jwt":
		if cfg.JWTSecret == "" {
			return errors.New("config: jwtSecret is required for the jwt session strategy")
		}
	default:
		return fmt.Errorf("config: unknown session strategy %q", cfg.SessionStrategy)
	}
	return nil
}
