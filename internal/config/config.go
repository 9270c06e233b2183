// Package config loads service configuration from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr string         `yaml:"-"`
	Database DatabaseConfig `yaml:"-"`
	Auth     AuthConfig     `yaml:"-"`

	Projection ProjectionConfig `yaml:"projection"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// DatabaseConfig holds connection and pool settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds the token secret and the operator credential.
type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	AdminUser         string
	AdminPasswordHash string
	AdminPassword     string
}

// ProjectionConfig tunes the capitalization simulator.
type ProjectionConfig struct {
	AnnualRate  float64 `yaml:"annual_rate"`
	TradingDays int     `yaml:"trading_days"`
	MaxDays     int     `yaml:"max_days"`
	DefaultDays int     `yaml:"default_days"`
}

// LedgerConfig holds billing constants.
type LedgerConfig struct {
	PSPFee string `yaml:"psp_fee"`
}

// AlertsConfig holds dashboard alert thresholds.
type AlertsConfig struct {
	PendingThreshold        float64 `yaml:"pending_threshold"`
	CapitalizationThreshold float64 `yaml:"capitalization_threshold"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL:  8 * time.Hour,
			AdminUser: "admin",
		},
		Projection: ProjectionConfig{
			AnnualRate:  0.1325,
			TradingDays: 252,
			MaxDays:     3650,
			DefaultDays: 30,
		},
		Ledger: LedgerConfig{PSPFee: "0.90"},
		Alerts: AlertsConfig{
			PendingThreshold:        1000,
			CapitalizationThreshold: 5000,
		},
	}
}

// LoadEnv loads .env files into the process environment when present.
func LoadEnv(logger *log.Logger) {
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.Printf("config: load %s error: %v", file, err)
			}
			continue
		}
		if logger != nil {
			logger.Printf("config: loaded %s", file)
		}
	}
}

// Load builds the configuration from env vars and LEDGER_CONFIG.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Database.URL = DatabaseURLFromEnv()
	cfg.Database.MaxOpenConns = getenvIntDefault("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getenvIntDefault("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getenvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", ""))
	cfg.Auth.TokenTTL = getenvDuration("AUTH_TOKEN_TTL", cfg.Auth.TokenTTL)
	cfg.Auth.AdminUser = getenvDefault("ADMIN_USER", cfg.Auth.AdminUser)
	cfg.Auth.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")
	cfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	cfg.Projection.AnnualRate = getenvFloatDefault("PROJECTION_ANNUAL_RATE", cfg.Projection.AnnualRate)
	cfg.Ledger.PSPFee = getenvDefault("PSP_FEE", cfg.Ledger.PSPFee)

	return cfg, cfg.Validate()
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	if c.Projection.AnnualRate < 0 {
		return errors.New("config: projection annual rate must not be negative")
	}
	if c.Projection.TradingDays <= 0 {
		return errors.New("config: projection trading days must be positive")
	}
	if c.Projection.MaxDays <= 0 {
		return errors.New("config: projection max days must be positive")
	}
	if fee, err := decimal.NewFromString(c.Ledger.PSPFee); err != nil || !fee.IsPositive() {
		return fmt.Errorf("config: invalid psp fee %q", c.Ledger.PSPFee)
	}
	return nil
}

// RequireServer checks settings the HTTP server cannot start without.
func (c Config) RequireServer() error {
	if c.Database.URL == "" {
		return errors.New("config: DATABASE_URL, PG_DSN or DB_HOST/DB_NAME is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.Auth.AdminPasswordHash == "" && c.Auth.AdminPassword == "" {
		return errors.New("config: ADMIN_PASSWORD_HASH or ADMIN_PASSWORD is required")
	}
	return nil
}

// DatabaseURLFromEnv returns DATABASE_URL/PG_DSN or a DSN built from DB_* parts.
func DatabaseURLFromEnv() string {
	if dsn := getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}
	host := os.Getenv("DB_HOST")
	name := os.Getenv("DB_NAME")
	if host == "" || name == "" {
		return ""
	}
	port := getenvDefault("DB_PORT", "5432")
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: "sslmode=" + url.QueryEscape(getenvDefault("DB_SSLMODE", "require")),
	}
	if user := os.Getenv("DB_USER"); user != "" {
		if pass := os.Getenv("DB_PASS"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

func getenvDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
