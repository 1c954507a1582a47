package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server configuration (callback listener and metrics)
	Server ServerConfig `mapstructure:"server"`

	// Page fetcher configuration
	Fetcher FetcherConfig `mapstructure:"fetcher"`

	// Ranking-data provider
	Provider ProviderConfig `mapstructure:"provider"`

	// External authorization handshake
	Auth AuthConfig `mapstructure:"auth"`

	// Notification delivery
	Notifications NotificationConfig `mapstructure:"notifications"`

	// Scheduler configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FetcherConfig holds page fetcher configuration
type FetcherConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	FollowRobotsTxt   bool          `mapstructure:"follow_robots_txt"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

// ProviderConfig holds the OAuth client and endpoints of the ranking provider
type ProviderConfig struct {
	Name         string        `mapstructure:"name"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	AuthURL      string        `mapstructure:"auth_url"`
	TokenURL     string        `mapstructure:"token_url"`
	DataURL      string        `mapstructure:"data_url"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	Scopes       []string      `mapstructure:"scopes"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// AuthConfig holds handshake timing and origin allow-list
type AuthConfig struct {
	TrustedOrigins []string      `mapstructure:"trusted_origins"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	CloseGrace     time.Duration `mapstructure:"close_grace"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BrowserCommand string        `mapstructure:"browser_command"`
}

// NotificationConfig holds SMTP settings
type NotificationConfig struct {
	SMTPHost      string  `mapstructure:"smtp_host"`
	SMTPPort      int     `mapstructure:"smtp_port"`
	SMTPUser      string  `mapstructure:"smtp_user"`
	SMTPPassword  string  `mapstructure:"smtp_password"`
	From          string  `mapstructure:"from"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	SweepSpec string        `mapstructure:"sweep_spec"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type            string        `mapstructure:"type"` // "memory" or "postgres"
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds redis configuration; an empty address means in-process locks
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputPath string `mapstructure:"output_path"`
}

var (
	defaultConfig *Config
	configLoaded  bool
)

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	if configLoaded && defaultConfig != nil && configPath == "" {
		return defaultConfig, nil
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.seowatch")
	}

	// Set defaults
	setDefaults(v)

	// Bind environment variables
	bindEnvVars(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables
	loadFromEnv(&config)

	defaultConfig = &config
	configLoaded = true

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Fetcher defaults
	v.SetDefault("fetcher.user_agent", "SEOWatch/1.0")
	v.SetDefault("fetcher.timeout", "20s")
	v.SetDefault("fetcher.requests_per_second", 5)
	v.SetDefault("fetcher.follow_robots_txt", true)
	v.SetDefault("fetcher.max_body_bytes", 5<<20)

	// Provider defaults
	v.SetDefault("provider.name", "search-console")
	v.SetDefault("provider.auth_url", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("provider.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("provider.data_url", "https://searchconsole.googleapis.com/webmasters/v3")
	v.SetDefault("provider.redirect_url", "http://localhost:8089/oauth/callback")
	v.SetDefault("provider.scopes", []string{"https://www.googleapis.com/auth/webmasters.readonly"})
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.max_retries", 3)

	// Auth handshake defaults
	v.SetDefault("auth.trusted_origins", []string{"http://localhost:8089"})
	v.SetDefault("auth.poll_interval", "1s")
	v.SetDefault("auth.close_grace", "500ms")
	v.SetDefault("auth.timeout", "5m")

	// Notification defaults
	v.SetDefault("notifications.smtp_port", 587)
	v.SetDefault("notifications.from", "alerts@seowatch.local")
	v.SetDefault("notifications.rate_per_second", 2.0)

	// Scheduler defaults
	v.SetDefault("scheduler.sweep_spec", "@every 1m")
	v.SetDefault("scheduler.lock_ttl", "15m")

	// Storage defaults
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.max_open_conns", 25)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("SEOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars
	v.BindEnv("provider.client_id", "SEOWATCH_CLIENT_ID")
	v.BindEnv("provider.client_secret", "SEOWATCH_CLIENT_SECRET")
	v.BindEnv("storage.dsn", "DATABASE_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("notifications.smtp_password", "SMTP_PASSWORD")
}

// loadFromEnv loads secrets from environment variables
func loadFromEnv(config *Config) {
	if id := os.Getenv("SEOWATCH_CLIENT_ID"); id != "" {
		config.Provider.ClientID = id
	}
	if secret := os.Getenv("SEOWATCH_CLIENT_SECRET"); secret != "" {
		config.Provider.ClientSecret = secret
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Storage.DSN = dsn
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		config.Notifications.SMTPPassword = password
	}
}

// Get returns the current configuration
func Get() *Config {
	if !configLoaded || defaultConfig == nil {
		// Load with defaults if not already loaded
		config, _ := Load("")
		return config
	}
	return defaultConfig
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Fetcher.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher.requests_per_second must be positive")
	}
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be positive")
	}
	if c.Auth.PollInterval <= 0 {
		return fmt.Errorf("auth.poll_interval must be positive")
	}
	if c.Auth.CloseGrace < 0 {
		return fmt.Errorf("auth.close_grace must not be negative")
	}
	if c.Auth.Timeout <= 0 {
		return fmt.Errorf("auth.timeout must be positive")
	}
	if c.Notifications.RatePerSecond <= 0 {
		return fmt.Errorf("notifications.rate_per_second must be positive")
	}
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unsupported storage.type: %s", c.Storage.Type)
	}
	return nil
}
