// Package config loads process configuration with Viper.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, an optional .env file, and AUTH_* environment variables. Nested
// keys map to env names by replacing dots with underscores:
//
//	AUTH_TOKENS_SIGNING_KEY=...      tokens.signing_key
//	AUTH_STORE_DRIVER=redis          store.driver
//	AUTH_COOKIES_SAME_SITE=Strict    cookies.same_site
//
// The loaded *Config satisfies auth.Config and is never mutated after Load.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	MailLog  = "log"
	MailSMTP = "smtp"
)

type Config struct {
	Server           ServerConfig   `mapstructure:"server"`
	Tokens           TokensConfig   `mapstructure:"tokens"`
	Hasher           HasherConfig   `mapstructure:"hasher"`
	Store            StoreConfig    `mapstructure:"store"`
	Database         DatabaseConfig `mapstructure:"database"`
	Mail             MailConfig     `mapstructure:"mail"`
	Cookies          CookieConfig   `mapstructure:"cookies"`
	Log              LogConfig      `mapstructure:"log"`
	OperationTimeout time.Duration  `mapstructure:"operation_timeout"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TokensConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   []string      `mapstructure:"audience"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	ConfirmTTL time.Duration `mapstructure:"confirm_ttl"`
	ResetTTL   time.Duration `mapstructure:"reset_ttl"`
}

type HasherConfig struct {
	Cost int `mapstructure:"cost"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	Shards        int           `mapstructure:"shards"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type MailConfig struct {
	Driver       string `mapstructure:"driver"`
	From         string `mapstructure:"from"`
	BaseURL      string `mapstructure:"base_url"`
	ConfirmPath  string `mapstructure:"confirm_path"`
	ResetPath    string `mapstructure:"reset_path"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

type CookieConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Secure      bool   `mapstructure:"secure"`
	SameSite    string `mapstructure:"same_site"`
	Domain      string `mapstructure:"domain"`
	AccessName  string `mapstructure:"access_name"`
	RefreshName string `mapstructure:"refresh_name"`
	CSRF        bool   `mapstructure:"csrf"`
	CSRFKey     string `mapstructure:"csrf_key"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var _ auth.Config = (*Config)(nil)

// Option customizes Load
type Option func(*loader)

type loader struct {
	file      string
	envFile   string
	envPrefix string
}

// WithFile reads a YAML config file. A missing file is an error.
func WithFile(path string) Option {
	return func(l *loader) {
		l.file = path
	}
}

// WithEnvFile reads a dotenv file. A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithEnvPrefix overrides the AUTH env prefix
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// Load builds and validates the configuration
func Load(opts ...Option) (*Config, error) {
	l := &loader{
		file:      os.Getenv("AUTH_CONFIG"),
		envFile:   ".env",
		envPrefix: "AUTH",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read env file")
		}
	}

	v := viper.New()
	SetDefaults(v)

	if l.file != "" {
		v.SetConfigFile(l.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file")
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults registers every key with its default so env overrides
// are picked up by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("tokens.signing_key", "")
	v.SetDefault("tokens.issuer", "go-auth-lifecycle")
	v.SetDefault("tokens.audience", []string{})
	v.SetDefault("tokens.access_ttl", 15*time.Minute)
	v.SetDefault("tokens.refresh_ttl", 30*24*time.Hour)
	v.SetDefault("tokens.confirm_ttl", 15*time.Minute)
	v.SetDefault("tokens.reset_ttl", 15*time.Minute)

	v.SetDefault("hasher.cost", 12)

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.shards", 16)
	v.SetDefault("store.reap_interval", time.Minute)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "auth:")

	v.SetDefault("database.dsn", "file:auth.db?cache=shared")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("mail.driver", MailLog)
	v.SetDefault("mail.from", "no-reply@example.com")
	v.SetDefault("mail.base_url", "http://localhost:8080")
	v.SetDefault("mail.confirm_path", "/auth/confirm")
	v.SetDefault("mail.reset_path", "/auth/password/reset/confirm")
	v.SetDefault("mail.smtp_host", "localhost")
	v.SetDefault("mail.smtp_port", 25)
	v.SetDefault("mail.smtp_username", "")
	v.SetDefault("mail.smtp_password", "")

	v.SetDefault("cookies.enabled", true)
	v.SetDefault("cookies.secure", true)
	v.SetDefault("cookies.same_site", "Lax")
	v.SetDefault("cookies.domain", "")
	v.SetDefault("cookies.access_name", "auth_token")
	v.SetDefault("cookies.refresh_name", "refresh_token")
	v.SetDefault("cookies.csrf", true)
	v.SetDefault("cookies.csrf_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("operation_timeout", auth.DefaultOperationTimeout)
}

func (c *Config) GetSigningKey() string {
	return c.Tokens.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.Tokens.Issuer
}

func (c *Config) GetAudience() []string {
	return append([]string(nil), c.Tokens.Audience...)
}

func (c *Config) GetTokenTTL(kind auth.TokenKind) time.Duration {
	switch kind {
	case auth.TokenAccess:
		return c.Tokens.AccessTTL
	case auth.TokenRefresh:
		return c.Tokens.RefreshTTL
	case auth.TokenEmailConfirm:
		return c.Tokens.ConfirmTTL
	case auth.TokenPasswordReset:
		return c.Tokens.ResetTTL
	}
	return 0
}

func (c *Config) GetHashCost() int {
	return c.Hasher.Cost
}

func (c *Config) GetOperationTimeout() time.Duration {
	return c.OperationTimeout
}
