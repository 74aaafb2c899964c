package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "BASE_AUTH"

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// DatabaseConfig holds relational-store configurations.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite3"
	DSN    string `mapstructure:"dsn"`
}

// NATSConfig holds NATS-related configurations for the audit sink.
type NATSConfig struct {
	URL          string `mapstructure:"url"`
	AuditSubject string `mapstructure:"audit_subject"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds user-authentication configurations.
type AuthConfig struct {
	SecretToken          string `mapstructure:"secret_token"`            // API key guarding the token-generation endpoint, from ENV
	UserTokenSecret      string `mapstructure:"user_token_secret"`       // HS256 signing key for user tokens, from ENV
	UserTokenTTLMinutes  int    `mapstructure:"user_token_ttl_minutes"`  // Default 10080 (7 days)
	MaxDevicesPerUser    int    `mapstructure:"max_devices_per_user"`    // Default 2
	DeviceActivityWindow int    `mapstructure:"device_activity_seconds"` // Informational; device scores are unix timestamps
}

// TenantConfig holds machine-tenant token configurations.
type TenantConfig struct {
	TokenSecret            string `mapstructure:"token_secret"`              // HS256 signing key for tenant tokens, from ENV
	AccessTokenTTLSeconds  int    `mapstructure:"access_token_ttl_seconds"`  // Default 7200 (2 hours)
	RefreshTokenTTLSeconds int    `mapstructure:"refresh_token_ttl_seconds"` // Default 2592000 (30 days)
}

// CacheConfig holds tuning knobs for the cache client and result cache.
type CacheConfig struct {
	Prefix                     string  `mapstructure:"prefix"`                        // Result-cache key prefix, default "service:cache"
	DefaultTTLSeconds          int     `mapstructure:"default_ttl_seconds"`           // Default 3600
	TriggerExtendRatio         float64 `mapstructure:"trigger_extend_ratio"`          // Default 0.2
	HealthCheckIntervalSeconds int     `mapstructure:"health_check_interval_seconds"` // Default 60
	MaxRetries                 int     `mapstructure:"max_retries"`                   // Default 3
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Tenant   TenantConfig   `mapstructure:"tenant"`
	Cache    CacheConfig    `mapstructure:"cache"`
	App      AppConfig      `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config *Config
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// A basic logger (e.g., zap.NewProduction()) should be passed for internal logging during setup.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	cfg := &Config{}
	v := viper.New()

	v.SetDefault("tenant.access_token_ttl_seconds", 7200)
	v.SetDefault("tenant.refresh_token_ttl_seconds", 2592000)
	v.SetDefault("auth.user_token_ttl_minutes", 10080)
	v.SetDefault("auth.max_devices_per_user", 2)
	v.SetDefault("cache.prefix", "service:cache")
	v.SetDefault("cache.default_ttl_seconds", 3600)
	v.SetDefault("cache.trigger_extend_ratio", 0.2)
	v.SetDefault("cache.health_check_interval_seconds", 60)
	v.SetDefault("cache.max_retries", 3)

	// Configure Viper to read from YAML file
	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "/app/config"))
	v.AddConfigPath(".") // Also look in current directory for local dev

	// Configure Viper to read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., server.http_port becomes SERVER_HTTP_PORT

	// Attempt to read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal the configuration into the struct
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		config: cfg,
		logger: logger,
	}

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
				} else {
					newCfg := &Config{}
					if err := v.Unmarshal(newCfg); err != nil {
						p.logger.Error("Failed to unmarshal re-read config on SIGHUP", zap.Error(err))
					} else {
						p.config = newCfg
						p.logger.Info("Configuration reloaded successfully via SIGHUP")
					}
				}
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	// Watch for config file changes (useful for local dev, less so in containers usually)
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in OnConfigChange callback",
					zap.String("event_name", e.Name),
					zap.String("event_op", e.Op.String()),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			p.logger.Error("Failed to unmarshal config on file change event", zap.Error(err))
		} else {
			p.config = newCfg
			p.logger.Info("Configuration reloaded successfully via file change event")
		}
	})

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Static is a Provider over a fixed Config, for tests and tools that do not
// need file or environment loading.
type Static struct {
	Config *Config
}

// Get returns the wrapped configuration.
func (s Static) Get() *Config {
	return s.Config
}
