package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	API        APIConfig        `mapstructure:"api"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Intake     IntakeConfig     `mapstructure:"intake"`
	Broadcast  BroadcastConfig  `mapstructure:"broadcast"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TLS       bool   `mapstructure:"tls"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
}

// APIConfig protects the /api/v1 moderation surface
type APIConfig struct {
	Keys []string `mapstructure:"keys"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// GatewayConfig points at the chat messaging gateway
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxMediaBytes caps media downloads before they are handed to the oracle
	MaxMediaBytes int64 `mapstructure:"max_media_bytes"`
	// MediaHosts are extra hosts media links may point at, such as the
	// gateway's CDN. They are fetched without the gateway token.
	MediaHosts []string `mapstructure:"media_hosts"`
}

// OracleConfig configures the AI verification oracle
type OracleConfig struct {
	Provider   string        `mapstructure:"provider"` // claude, openai
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// IntakeConfig holds the chat intake rules
type IntakeConfig struct {
	OperatorAddress     string            `mapstructure:"operator_address"`
	BotAddress          string            `mapstructure:"bot_address"`
	CountryCode         string            `mapstructure:"country_code"`
	AddressWindow       time.Duration     `mapstructure:"address_window"`
	DefaultDepartment   string            `mapstructure:"default_department"`
	DepartmentMap       map[string]string `mapstructure:"department_map"`
	CriticalDepartments []string          `mapstructure:"critical_departments"`
	EmergencyContact    string            `mapstructure:"emergency_contact"`
	DedupTTL            time.Duration     `mapstructure:"dedup_ttl"`
	SenderLockTTL       time.Duration     `mapstructure:"sender_lock_ttl"`
	SenderIdleTimeout   time.Duration     `mapstructure:"sender_idle_timeout"`
}

type BroadcastConfig struct {
	Workers int `mapstructure:"workers"`
}

type ReconcilerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// setDefaults registers the values used when neither the file nor the environment sets them
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "civicpulse")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "civicpulse:")

	v.SetDefault("nats.stream_name", "CIVICPULSE_EVENTS")

	v.SetDefault("ratelimit.requests_per_minute", 600)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("gateway.max_media_bytes", 16*1024*1024)

	v.SetDefault("oracle.provider", "claude")
	v.SetDefault("oracle.timeout", 45*time.Second)
	v.SetDefault("oracle.max_retries", 2)

	v.SetDefault("intake.country_code", "91")
	v.SetDefault("intake.address_window", 15*time.Minute)
	v.SetDefault("intake.default_department", "Municipal/General")
	v.SetDefault("intake.department_map", map[string]string{
		"pothole":     "Municipal/Waste",
		"road":        "Municipal/Waste",
		"garbage":     "Municipal/Waste",
		"waste":       "Municipal/Waste",
		"streetlight": "Electricity",
		"power":       "Electricity",
		"water":       "Water Supply",
		"sewage":      "Water Supply",
		"fire":        "Fire & Safety",
		"accident":    "Medical",
		"crime":       "Police",
		"traffic":     "Police",
	})
	v.SetDefault("intake.critical_departments", []string{"Police", "Fire & Safety", "Medical"})
	v.SetDefault("intake.dedup_ttl", 24*time.Hour)
	v.SetDefault("intake.sender_lock_ttl", 2*time.Minute)
	v.SetDefault("intake.sender_idle_timeout", 30*time.Second)

	v.SetDefault("broadcast.workers", 8)

	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", 10*time.Minute)
	v.SetDefault("reconciler.batch_size", 500)
	v.SetDefault("reconciler.lock_ttl", 5*time.Minute)
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/civicpulse")
	}

	v.SetEnvPrefix("CIVICPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	for _, key := range []string{
		"app.environment",
		"database.host", "database.port", "database.user", "database.password",
		"database.dbname", "database.sslmode",
		"redis.host", "redis.port", "redis.password", "redis.tls",
		"nats.enabled", "nats.url",
		"gateway.base_url", "gateway.token",
		"oracle.provider", "oracle.api_key", "oracle.model",
		"intake.operator_address", "intake.bot_address", "intake.emergency_contact",
		"api.keys",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}
