// Package config loads application configuration from an optional YAML file,
// an optional .env file and the environment using Viper. Environment variables
// take precedence.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // scheduler timezones must resolve on minimal images

	"github.com/spf13/viper"
)

// DefaultOffices are the six offices served out of the box. Each gets a
// database named after its key on the shared DB host unless a config file
// lists offices explicitly.
var DefaultOffices = []string{
	"P_W_Division_Akola",
	"P_W_Division_Washim",
	"P_W_Division_Buldhana",
	"P_W_Division_Khamgaon",
	"P_W_Division_WBAkola",
	"P_W_Circle_Akola",
}

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	DynamoDB     DynamoDBConfig
	JWT          JWTConfig
	OTP          OTPConfig
	SMS          SMSConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	// per client IP, applied to the login endpoints
	RateLimitRPS   float64
	RateLimitBurst int
}

type LogConfig struct {
	Level string
}

type DatabaseConfig struct {
	ConnectTimeout time.Duration
	Offices        []OfficeConfig
}

// OfficeConfig describes the database of one office.
type OfficeConfig struct {
	Key      string `mapstructure:"key"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type JWTConfig struct {
	SecretKey    string
	AccessExpiry time.Duration
}

type OTPConfig struct {
	Length        int
	Expiry        time.Duration
	MaxAttempts   int
	Store         string
	SweepInterval time.Duration
	BcryptCost    int
}

type SMSConfig struct {
	BaseURL       string
	APIKey        string
	SenderID      string
	DLTTemplateID string
	CountryCode   string
	Route         string
	Timeout       time.Duration
}

type NotificationConfig struct {
	Timezone      string
	MaxConcurrent int
}

type SchedulerConfig struct {
	Enabled  bool
	Spec     string
	Timezone string
	Office   string
	Window   string
}

// OTP session store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

var validWindows = map[string]bool{"today": true, "week": true, "half-month": true, "month": true}

// Load reads CONFIG_FILE (if set), then .env (if present), then the
// environment, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			ReadTimeout:    v.GetDuration("READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			ConnectTimeout: v.GetDuration("DB_CONNECT_TIMEOUT"),
		},
		Redis: RedisConfig{
			Endpoint: v.GetString("REDIS_ENDPOINT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  v.GetString("DYNAMODB_ENDPOINT"),
			Region:    v.GetString("DYNAMODB_REGION"),
			TableName: v.GetString("DYNAMODB_TABLE_NAME"),
		},
		JWT: JWTConfig{
			SecretKey:    v.GetString("JWT_SECRET_KEY"),
			AccessExpiry: v.GetDuration("JWT_ACCESS_EXPIRY"),
		},
		OTP: OTPConfig{
			Length:        v.GetInt("OTP_LENGTH"),
			Expiry:        v.GetDuration("OTP_TTL"),
			MaxAttempts:   v.GetInt("OTP_MAX_ATTEMPTS"),
			Store:         strings.ToLower(v.GetString("OTP_STORE")),
			SweepInterval: v.GetDuration("OTP_SWEEP_INTERVAL"),
			BcryptCost:    v.GetInt("OTP_BCRYPT_COST"),
		},
		SMS: SMSConfig{
			BaseURL:       v.GetString("SMS_BASE_URL"),
			APIKey:        v.GetString("SMS_API_KEY"),
			SenderID:      v.GetString("SMS_SENDER_ID"),
			DLTTemplateID: v.GetString("SMS_DLT_TEMPLATE_ID"),
			CountryCode:   v.GetString("SMS_COUNTRY_CODE"),
			Route:         v.GetString("SMS_ROUTE"),
			Timeout:       v.GetDuration("SMS_TIMEOUT"),
		},
		Notification: NotificationConfig{
			Timezone:      v.GetString("NOTIFICATION_TIMEZONE"),
			MaxConcurrent: v.GetInt("NOTIFICATION_MAX_CONCURRENT"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("SCHEDULER_ENABLED"),
			Spec:     v.GetString("SCHEDULER_SPEC"),
			Timezone: v.GetString("SCHEDULER_TIMEZONE"),
			Office:   v.GetString("SCHEDULER_OFFICE"),
			Window:   strings.ToLower(v.GetString("SCHEDULER_WINDOW")),
		},
	}

	if v.IsSet("offices") {
		if err := v.UnmarshalKey("offices", &cfg.Database.Offices); err != nil {
			return nil, fmt.Errorf("failed to parse offices: %w", err)
		}
	} else {
		cfg.Database.Offices = defaultOffices()
	}
	applyOfficeDefaults(v, cfg.Database.Offices)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("READ_TIMEOUT", 15*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_CONNECT_TIMEOUT", 10*time.Second)

	v.SetDefault("REDIS_ENDPOINT", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DYNAMODB_REGION", "ap-south-1")
	v.SetDefault("DYNAMODB_TABLE_NAME", "PWDBudgetOTP")

	v.SetDefault("JWT_ACCESS_EXPIRY", 12*time.Hour)

	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", 2*time.Minute)
	v.SetDefault("OTP_MAX_ATTEMPTS", 0)
	v.SetDefault("OTP_STORE", StoreMemory)
	v.SetDefault("OTP_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("OTP_BCRYPT_COST", 10)

	v.SetDefault("SMS_BASE_URL", "https://login.wishbysms.com/api/sendhttp.php")
	v.SetDefault("SMS_COUNTRY_CODE", "91")
	v.SetDefault("SMS_ROUTE", "4")
	v.SetDefault("SMS_TIMEOUT", 15*time.Second)

	v.SetDefault("NOTIFICATION_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("NOTIFICATION_MAX_CONCURRENT", 16)

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_SPEC", "0 10 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("SCHEDULER_OFFICE", "P_W_Division_Akola")
	v.SetDefault("SCHEDULER_WINDOW", "month")
}

func defaultOffices() []OfficeConfig {
	offices := make([]OfficeConfig, 0, len(DefaultOffices))
	for _, key := range DefaultOffices {
		offices = append(offices, OfficeConfig{Key: key, Database: strings.ToLower(key)})
	}
	return offices
}

// applyOfficeDefaults fills connection fields an office leaves empty from the
// shared DB_* settings.
func applyOfficeDefaults(v *viper.Viper, offices []OfficeConfig) {
	for i := range offices {
		o := &offices[i]
		if o.Host == "" {
			o.Host = v.GetString("DB_HOST")
		}
		if o.Port == 0 {
			o.Port = v.GetInt("DB_PORT")
		}
		if o.User == "" {
			o.User = v.GetString("DB_USER")
		}
		if o.Password == "" {
			o.Password = v.GetString("DB_PASSWORD")
		}
		if o.SSLMode == "" {
			o.SSLMode = v.GetString("DB_SSLMODE")
		}
		if o.MaxConns == 0 {
			o.MaxConns = v.GetInt("DB_MAX_CONNS")
		}
		if o.Database == "" {
			o.Database = strings.ToLower(o.Key)
		}
	}
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}

	if len(c.Database.Offices) == 0 {
		return fmt.Errorf("at least one office must be configured")
	}
	seen := make(map[string]bool, len(c.Database.Offices))
	for _, o := range c.Database.Offices {
		if o.Key == "" {
			return fmt.Errorf("office key must not be empty")
		}
		if seen[o.Key] {
			return fmt.Errorf("duplicate office key %q", o.Key)
		}
		seen[o.Key] = true
	}

	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}
	if c.OTP.Expiry <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	switch c.OTP.Store {
	case StoreMemory, StoreRedis, StoreDynamoDB:
	default:
		return fmt.Errorf("OTP_STORE must be one of memory, redis, dynamodb (got %q)", c.OTP.Store)
	}

	if _, err := time.LoadLocation(c.Notification.Timezone); err != nil {
		return fmt.Errorf("invalid NOTIFICATION_TIMEZONE %q: %w", c.Notification.Timezone, err)
	}

	if c.Scheduler.Enabled {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", c.Scheduler.Timezone, err)
		}
		if !seen[c.Scheduler.Office] {
			return fmt.Errorf("SCHEDULER_OFFICE %q is not a configured office", c.Scheduler.Office)
		}
		if !validWindows[c.Scheduler.Window] {
			return fmt.Errorf("SCHEDULER_WINDOW must be one of today, week, half-month, month (got %q)", c.Scheduler.Window)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
