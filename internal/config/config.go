package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type DB struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN builds the postgres URL pgxpool expects.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

type SMTP struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	DB       DB     `mapstructure:"db"`
	JWT      struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"jwt"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	// CommissionPercent is the fallback when platform_settings has no value.
	CommissionPercent string        `mapstructure:"commission_percent"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	SettlementLockTTL time.Duration `mapstructure:"settlement_lock_ttl"`

	SMTP   SMTP `mapstructure:"smtp"`
	Alerts struct {
		AdminEmail  string `mapstructure:"admin_email"`
		Concurrency int    `mapstructure:"concurrency"`
	} `mapstructure:"alerts"`
}

// Commission returns CommissionPercent parsed. Validate has already
// rejected values that do not parse.
func (c *Config) Commission() decimal.Decimal {
	d, _ := decimal.NewFromString(c.CommissionPercent)
	return d
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	pct, err := decimal.NewFromString(c.CommissionPercent)
	if err != nil {
		return fmt.Errorf("COMMISSION_PERCENT: %w", err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("COMMISSION_PERCENT must be between 0 and 100, got %s", pct)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	return nil
}

var keys = map[string]any{
	"port":                "8080",
	"log_level":           "info",
	"db.host":             "localhost",
	"db.port":             "5432",
	"db.user":             "postgres",
	"db.password":         "",
	"db.name":             "crafthub",
	"jwt.secret":          "",
	"redis.addr":          "localhost:6379",
	"redis.password":      "",
	"commission_percent":  "10",
	"lock_timeout":        "5s",
	"settlement_lock_ttl": "30s",
	"smtp.host":           "",
	"smtp.port":           587,
	"smtp.user":           "",
	"smtp.password":       "",
	"smtp.from":           "",
	"alerts.admin_email":  "",
	"alerts.concurrency":  5,
}

// Load reads .env if present, then an optional config.yaml from paths, then
// the environment. Environment variables use upper case with "_" for nesting
// (DB_HOST, SMTP_PORT, ALERTS_ADMIN_EMAIL).
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, def := range keys {
		v.SetDefault(k, def)
	}

	if len(paths) > 0 {
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
