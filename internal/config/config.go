package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the honchkrow server
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Kernel  KernelConfig  `yaml:"kernel"`
	Images  ImagesConfig  `yaml:"images"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	// Listen address, e.g. ":8000"
	ListenAddr string `yaml:"listen_addr"`

	// Public base URL advertised in the plugin manifest and image links,
	// e.g. "http://localhost:8000". Empty means relative image links.
	BaseURL string `yaml:"base_url"`

	// Origin allowed to call the API from a browser context
	AllowedOrigin string `yaml:"allowed_origin"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KernelConfig holds execution session settings
type KernelConfig struct {
	// Interpreter binary launched for the session
	PythonBin string `yaml:"python_bin"`

	// How long to wait for the session to come up
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// ImagesConfig holds image store settings
type ImagesConfig struct {
	// Backend is "memory" or "redis"
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`

	// TTL applied to stored images on the redis backend; zero keeps
	// the append-only semantics of the memory backend
	TTL time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:    getEnv("HONCHKROW_ADDR", ":8000"),
			BaseURL:       getEnv("HONCHKROW_BASE_URL", "http://localhost:8000"),
			AllowedOrigin: getEnv("HONCHKROW_ALLOWED_ORIGIN", "https://chat.openai.com"),
			ReadTimeout:   15 * time.Second,
			// Execution has no timeout of its own, so give responses
			// a generous write window
			WriteTimeout: 5 * time.Minute,
		},
		Kernel: KernelConfig{
			PythonBin:      getEnv("HONCHKROW_PYTHON", "python3"),
			StartupTimeout: 10 * time.Second,
		},
		Images: ImagesConfig{
			Backend: getEnv("HONCHKROW_IMAGE_BACKEND", "memory"),
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnvInt("REDIS_PORT", 6379),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       0,
			},
			TTL: 0,
		},
		Logging: LoggingConfig{
			Level:  getEnv("HONCHKROW_LOG_LEVEL", "info"),
			Format: getEnv("HONCHKROW_LOG_FORMAT", "text"),
		},
	}
}

// Load returns the default configuration merged with an optional YAML file.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// RedisAddr returns the full Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address cannot be empty")
	}
	if c.Kernel.PythonBin == "" {
		return fmt.Errorf("kernel python binary cannot be empty")
	}
	switch c.Images.Backend {
	case "memory":
	case "redis":
		if c.Images.Redis.Host == "" {
			return fmt.Errorf("redis host cannot be empty")
		}
	default:
		return fmt.Errorf("unknown image backend %q", c.Images.Backend)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
