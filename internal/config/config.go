package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for the batch dispatcher.
const (
	DefaultWindowSize    = 5
	DefaultPacingDelayMs = 1000
	DefaultMaxRecipients = 1000
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Gmail     GmailConfig     `yaml:"gmail"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	SES       SESConfig       `yaml:"ses"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the listen host. SERVER_HOST wins over the file.
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

type RedisConfig struct {
	URL  string `yaml:"url"`
	Addr string `yaml:"addr"`
}

// AuthConfig holds Google sign-in and session cookie settings.
type AuthConfig struct {
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	BaseURL            string `yaml:"base_url"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
	SecureCookie       bool   `yaml:"secure_cookie"`
}

// SessionTTL is the cookie lifetime as a duration.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.CookieMaxAge) * time.Second
}

// GmailConfig configures the mailbox send API. APIBaseURL and TokenURL are
// overridable for tests.
type GmailConfig struct {
	APIBaseURL  string `yaml:"api_base_url"`
	TokenURL    string `yaml:"token_url"`
	MaxRetries  int    `yaml:"max_retries"`
	RedirectURL string `yaml:"redirect_url"`
}

// SMTPConfig is the platform mail server used for owner notifications.
type SMTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the dial and greeting timeout.
func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig enables AWS SES v2 as the platform transport.
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email"`
}

// DispatchConfig tunes the batch dispatcher.
type DispatchConfig struct {
	WindowSize       int `yaml:"window_size"`
	PacingDelayMs    int `yaml:"pacing_delay_ms"`
	MaxRecipients    int `yaml:"max_recipients"`
	LockTTLMinutes   int `yaml:"lock_ttl_minutes"`
	PersistTimeoutMs int `yaml:"persist_timeout_ms"`
}

// PacingDelay is the pause between consecutive windows.
func (c DispatchConfig) PacingDelay() time.Duration {
	return time.Duration(c.PacingDelayMs) * time.Millisecond
}

// LockTTL bounds how long a send can hold its SMTP setting lock.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

type RateLimitConfig struct {
	PublicPerMinute int `yaml:"public_per_minute"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is
	// honored. Empty means clients are keyed by their TCP peer.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "pm_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 7 * 24 * 3600
	}
	if cfg.Gmail.APIBaseURL == "" {
		cfg.Gmail.APIBaseURL = "https://gmail.googleapis.com"
	}
	if cfg.Gmail.MaxRetries == 0 {
		cfg.Gmail.MaxRetries = 2
	}
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TimeoutSeconds == 0 {
		cfg.SMTP.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Dispatch.WindowSize == 0 {
		cfg.Dispatch.WindowSize = DefaultWindowSize
	}
	if cfg.Dispatch.PacingDelayMs == 0 {
		cfg.Dispatch.PacingDelayMs = DefaultPacingDelayMs
	}
	if cfg.Dispatch.MaxRecipients == 0 {
		cfg.Dispatch.MaxRecipients = DefaultMaxRecipients
	}
	if cfg.Dispatch.LockTTLMinutes == 0 {
		cfg.Dispatch.LockTTLMinutes = 30
	}
	if cfg.Dispatch.PersistTimeoutMs == 0 {
		cfg.Dispatch.PersistTimeoutMs = 15000
	}
	if cfg.RateLimit.PublicPerMinute == 0 {
		cfg.RateLimit.PublicPerMinute = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is loaded first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setInt(&cfg.Server.Port, "PORT")

	setString(&cfg.Auth.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Auth.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Auth.SessionSecret, "SESSION_SECRET")
	setString(&cfg.Auth.BaseURL, "PUBLIC_BASE_URL")

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.User, "SMTP_USER")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.FromEmail, "SMTP_FROM_EMAIL")

	setString(&cfg.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.SES.Region, "AWS_SES_REGION")
	if v := os.Getenv("SES_ENABLED"); v != "" {
		cfg.SES.Enabled, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.RateLimit.TrustedProxies = splitList(v)
	}

	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
