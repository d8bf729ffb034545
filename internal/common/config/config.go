// Package config provides configuration management for Promptgate.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Promptgate.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	History     HistoryConfig     `mapstructure:"history"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// GatewayConfig holds execution gateway configuration.
type GatewayConfig struct {
	// AgentBinary is the command-line agent executable (default: claude).
	AgentBinary string `mapstructure:"agentBinary"`

	// WarnAfterSeconds is the soft deadline: a diagnostic warning is logged
	// when an execution runs this long without terminating.
	WarnAfterSeconds int `mapstructure:"warnAfterSeconds"`

	// KillAfterSeconds is the hard deadline: the agent process is force-killed
	// and the execution resolves as a timeout.
	KillAfterSeconds int `mapstructure:"killAfterSeconds"`

	// BufferMaxBytes caps each output buffer. 0 means unbounded, which matches
	// the observed agent contract; set a cap to guard against runaway output.
	BufferMaxBytes int64 `mapstructure:"bufferMaxBytes"`
}

// CredentialsConfig holds the raw secret material the provisioner and the
// auth mode selector consume. All fields are optional; availability of each
// auth mode is derived from which fields are set.
type CredentialsConfig struct {
	AccessToken        string `mapstructure:"accessToken"`
	RefreshToken       string `mapstructure:"refreshToken"`
	ExpiresAt          string `mapstructure:"expiresAt"` // epoch millis or RFC3339
	APIKey             string `mapstructure:"apiKey"`
	PreferSubscription bool   `mapstructure:"preferSubscription"`

	// StoreDir overrides the credential store directory. Empty means
	// <user home>/.credentials-store.
	StoreDir string `mapstructure:"storeDir"`
}

// AssetsConfig holds the skill/agent/framework asset store configuration.
type AssetsConfig struct {
	// Mode selects the backing store: "local" (directory tree) or "s3".
	Mode      string `mapstructure:"mode"`
	LocalRoot string `mapstructure:"localRoot"`

	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

// HistoryConfig holds the execution history repository configuration.
type HistoryConfig struct {
	// Driver selects the repository: "memory" or "postgres".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`

	// MaxRecords caps the in-memory repository. Oldest records are evicted
	// first. Ignored by the postgres driver.
	MaxRecords int `mapstructure:"maxRecords"`
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AuthConfig holds inbound request authentication configuration.
type AuthConfig struct {
	// Token is the bearer token required on gateway endpoints. Empty disables
	// inbound auth (development mode). /healthz is always exempt.
	Token string `mapstructure:"token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// WarnAfter returns the soft deadline as a time.Duration.
func (g *GatewayConfig) WarnAfter() time.Duration {
	return time.Duration(g.WarnAfterSeconds) * time.Second
}

// KillAfter returns the hard deadline as a time.Duration.
func (g *GatewayConfig) KillAfter() time.Duration {
	return time.Duration(g.KillAfterSeconds) * time.Second
}

// DSN returns the PostgreSQL connection string.
func (h *HistoryConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		h.Host, h.Port, h.User, h.Password, h.DBName, h.SSLMode,
	)
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("PROMPTGATE_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	// Write timeout must outlive the hard deadline so a slow execution can
	// still deliver its timeout response.
	v.SetDefault("server.writeTimeout", 330)

	// Gateway defaults
	v.SetDefault("gateway.agentBinary", "claude")
	v.SetDefault("gateway.warnAfterSeconds", 10)
	v.SetDefault("gateway.killAfterSeconds", 300)
	v.SetDefault("gateway.bufferMaxBytes", 0)

	// Credentials defaults - all empty, auth mode is derived at request time
	v.SetDefault("credentials.accessToken", "")
	v.SetDefault("credentials.refreshToken", "")
	v.SetDefault("credentials.expiresAt", "")
	v.SetDefault("credentials.apiKey", "")
	v.SetDefault("credentials.preferSubscription", false)
	v.SetDefault("credentials.storeDir", "")

	// Assets defaults
	v.SetDefault("assets.mode", "local")
	v.SetDefault("assets.localRoot", "./assets")
	v.SetDefault("assets.endpoint", "")
	v.SetDefault("assets.bucket", "promptgate-assets")
	v.SetDefault("assets.useSSL", true)

	// History defaults
	v.SetDefault("history.driver", "memory")
	v.SetDefault("history.host", "")
	v.SetDefault("history.port", 5432)
	v.SetDefault("history.user", "promptgate")
	v.SetDefault("history.dbName", "promptgate")
	v.SetDefault("history.sslMode", "disable")
	v.SetDefault("history.maxRecords", 1000)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "promptgate")
	v.SetDefault("nats.maxReconnects", 10)

	// Auth defaults
	v.SetDefault("auth.token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix PROMPTGATE_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/promptgate/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("PROMPTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The credential secrets keep the variable names the surrounding platform
	// injects, so bind them explicitly alongside the prefixed forms.
	_ = v.BindEnv("credentials.accessToken", "CLAUDE_ACCESS_TOKEN", "PROMPTGATE_CREDENTIALS_ACCESS_TOKEN")
	_ = v.BindEnv("credentials.refreshToken", "CLAUDE_REFRESH_TOKEN", "PROMPTGATE_CREDENTIALS_REFRESH_TOKEN")
	_ = v.BindEnv("credentials.expiresAt", "CLAUDE_EXPIRES_AT", "PROMPTGATE_CREDENTIALS_EXPIRES_AT")
	_ = v.BindEnv("credentials.apiKey", "ANTHROPIC_API_KEY", "PROMPTGATE_CREDENTIALS_API_KEY")
	_ = v.BindEnv("credentials.preferSubscription", "CLAUDE_PREFER_SUBSCRIPTION", "PROMPTGATE_CREDENTIALS_PREFER_SUBSCRIPTION")
	_ = v.BindEnv("auth.token", "PROMPTGATE_AUTH_TOKEN")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/promptgate/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Gateway validation
	if cfg.Gateway.AgentBinary == "" {
		errs = append(errs, "gateway.agentBinary is required")
	}
	if cfg.Gateway.KillAfterSeconds <= 0 {
		errs = append(errs, "gateway.killAfterSeconds must be positive")
	}
	if cfg.Gateway.WarnAfterSeconds <= 0 {
		errs = append(errs, "gateway.warnAfterSeconds must be positive")
	}
	if cfg.Gateway.WarnAfterSeconds >= cfg.Gateway.KillAfterSeconds {
		errs = append(errs, "gateway.warnAfterSeconds must be below gateway.killAfterSeconds")
	}
	if cfg.Gateway.BufferMaxBytes < 0 {
		errs = append(errs, "gateway.bufferMaxBytes must not be negative")
	}

	// Assets validation
	switch cfg.Assets.Mode {
	case "local":
		if cfg.Assets.LocalRoot == "" {
			errs = append(errs, "assets.localRoot is required when assets.mode is local")
		}
	case "s3":
		if cfg.Assets.Endpoint == "" {
			errs = append(errs, "assets.endpoint is required when assets.mode is s3")
		}
		if cfg.Assets.Bucket == "" {
			errs = append(errs, "assets.bucket is required when assets.mode is s3")
		}
	default:
		errs = append(errs, "assets.mode must be one of: local, s3")
	}

	// History validation - postgres needs connection details
	switch cfg.History.Driver {
	case "memory":
	case "postgres":
		if cfg.History.Host == "" {
			errs = append(errs, "history.host is required when history.driver is postgres")
		}
		if cfg.History.Port <= 0 || cfg.History.Port > 65535 {
			errs = append(errs, "history.port must be between 1 and 65535")
		}
	default:
		errs = append(errs, "history.driver must be one of: memory, postgres")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
