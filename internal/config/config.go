package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Context    ContextConfig    `mapstructure:"context"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Janitor    JanitorConfig    `mapstructure:"janitor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type ProviderConfig struct {
	BaseURL           string            `mapstructure:"base_url"`
	APIKey            string            `mapstructure:"api_key"`
	DefaultModel      string            `mapstructure:"default_model"`
	ModeModels        map[string]string `mapstructure:"mode_models"`
	MaxTokens         int               `mapstructure:"max_tokens"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	MaxRetries        int               `mapstructure:"max_retries"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Burst             int               `mapstructure:"burst"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ResponseTTL      time.Duration `mapstructure:"response_ttl"`
	ModeDetectionTTL time.Duration `mapstructure:"mode_detection_ttl"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	ExemptPaths []string      `mapstructure:"exempt_paths"`
}

type ContextConfig struct {
	MaxHistory      int `mapstructure:"max_history"`
	TurnCeiling     int `mapstructure:"turn_ceiling"`
	TruncatedLength int `mapstructure:"truncated_length"`
}

type AuthConfig struct {
	Secret    string        `mapstructure:"secret"`
	Algorithm string        `mapstructure:"algorithm"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Retry    time.Duration `mapstructure:"retry"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.response_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("provider.default_model", "gpt-4o-mini")
	v.SetDefault("provider.max_tokens", 4096)
	v.SetDefault("provider.timeout", 120*time.Second)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.requests_per_second", 10.0)
	v.SetDefault("provider.burst", 20)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.session_ttl", 24*time.Hour)
	v.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.response_ttl", 300*time.Second)
	v.SetDefault("cache.mode_detection_ttl", 600*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max_requests", 60)
	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.exempt_paths", []string{"/", "/health"})

	v.SetDefault("context.max_history", 15)
	v.SetDefault("context.turn_ceiling", 1000)
	v.SetDefault("context.truncated_length", 800)

	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.token_ttl", 30*time.Minute)

	v.SetDefault("janitor.interval", 5*time.Minute)
	v.SetDefault("janitor.retry", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.enabled", false)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en", "zh"})
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error; defaults and env apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	v.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	v.BindEnv("provider.default_model", "PROVIDER_MODEL")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("logging.level", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ModelFor returns the upstream model for a chat mode
func (p ProviderConfig) ModelFor(mode string) string {
	if m, ok := p.ModeModels[mode]; ok && m != "" {
		return m
	}
	return p.DefaultModel
}

func validateConfig(cfg *Config) error {
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL is required")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.MaxRequests <= 0 || cfg.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requires positive max_requests and window")
	}
	if cfg.Cache.ResponseTTL <= 0 || cfg.Cache.ModeDetectionTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if cfg.Janitor.Interval <= 0 {
		return fmt.Errorf("janitor interval must be positive")
	}
	if cfg.Server.ResponseTimeout <= 0 {
		return fmt.Errorf("response timeout must be positive")
	}
	switch cfg.Storage.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Context.TruncatedLength < 0 || cfg.Context.TurnCeiling < 0 || cfg.Context.MaxHistory < 0 {
		return fmt.Errorf("context limits must not be negative")
	}
	if cfg.Context.TruncatedLength > cfg.Context.TurnCeiling {
		return fmt.Errorf("context truncated_length must not exceed turn_ceiling")
	}
	return nil
}
