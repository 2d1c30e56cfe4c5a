package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the
// working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	GeneratorProvider  string `yaml:"generatorProvider"` // openai-compat | ollama
	GeneratorBaseURL   string `yaml:"generatorBaseURL"`
	GeneratorModel     string `yaml:"generatorModel"`
	GeneratorKeySecret string `yaml:"generatorKeySecret"`

	DockerHost string `yaml:"dockerHost"`

	PreviewBaseURL  string            `yaml:"previewBaseURL"`
	PreviewHostPort int               `yaml:"previewHostPort"`
	DefaultImage    string            `yaml:"defaultImage"`
	FrameworkImages map[string]string `yaml:"frameworkImages"`

	GenerationTimeoutSeconds int `yaml:"generationTimeoutSeconds"`
	OwnerLockTTLSeconds      int `yaml:"ownerLockTtlSeconds"`

	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int `yaml:"rateLimitBurst"`
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
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if useSSL, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = useSSL
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("GENERATOR_PROVIDER"); v != "" {
		cfg.GeneratorProvider = v
	}
	if v := os.Getenv("GENERATOR_BASE_URL"); v != "" {
		cfg.GeneratorBaseURL = v
	}
	if v := os.Getenv("GENERATOR_MODEL"); v != "" {
		cfg.GeneratorModel = v
	}
	if v := os.Getenv("DOCKER_HOST_ADDR"); v != "" {
		cfg.DockerHost = v
	}
	if v := os.Getenv("PREVIEW_BASE_URL"); v != "" {
		cfg.PreviewBaseURL = v
	}
	if v := os.Getenv("PREVIEW_HOST_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PreviewHostPort = n
		}
	}
	if v := os.Getenv("GENERATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GenerationTimeoutSeconds = n
		}
	}
	if v := os.Getenv("OWNER_LOCK_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OwnerLockTTLSeconds = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml or MINIO_BUCKET)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	switch cfg.GeneratorProvider {
	case "openai-compat", "ollama":
	case "":
		return errors.New("config: generatorProvider is required (openai-compat or ollama)")
	default:
		return fmt.Errorf("config: unknown generatorProvider %q (want openai-compat or ollama)", cfg.GeneratorProvider)
	}
	if cfg.GeneratorModel == "" {
		return errors.New("config: generatorModel is required (set in config.yaml or GENERATOR_MODEL)")
	}
	if cfg.DockerHost == "" {
		return errors.New("config: dockerHost is required (set in config.yaml or DOCKER_HOST_ADDR)")
	}
	if cfg.PreviewBaseURL == "" {
		return errors.New("config: previewBaseURL is required (set in config.yaml or PREVIEW_BASE_URL)")
	}
	if cfg.PreviewHostPort <= 0 || cfg.PreviewHostPort > 65535 {
		return errors.New("config: previewHostPort must be a valid TCP port")
	}
	if cfg.GenerationTimeoutSeconds < 0 {
		return errors.New("config: generationTimeoutSeconds must be >= 0")
	}
	if cfg.OwnerLockTTLSeconds < 0 {
		return errors.New("config: ownerLockTtlSeconds must be >= 0")
	}
	if cfg.RateLimitPerMinute < 0 || cfg.RateLimitBurst < 0 {
		return errors.New("config: rate limit settings must be >= 0")
	}
	return nil
}
