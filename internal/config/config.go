package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	ServerPort    string `yaml:"server_port"`
	StorageDriver string `yaml:"storage_driver"`
	LogLevel      string `yaml:"log_level"`

	DBHost            string `yaml:"db_host"`
	DBPort            string `yaml:"db_port"`
	DBUser            string `yaml:"db_user"`
	DBPassword        string `yaml:"db_password"`
	DBName            string `yaml:"db_name"`
	DBSSLMode         string `yaml:"db_sslmode"`
	DatabaseURL       string `yaml:"database_url"`
	DBMaxOpenConns    int    `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int    `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime string `yaml:"db_conn_max_lifetime"`
	AutoMigrate       bool   `yaml:"auto_migrate"`

	Wallet        WalletConfig       `yaml:"wallet"`
	Notifications NotificationConfig `yaml:"notifications"`
	Auth          AuthConfig         `yaml:"auth"`
}

type WalletConfig struct {
	MinimumWithdrawal int64  `yaml:"minimum_withdrawal"`
	CoinValue         string `yaml:"coin_value"`
	PayoutCurrency    string `yaml:"payout_currency"`
}

type NotificationConfig struct {
	Limit      int `yaml:"limit"`
	BufferSize int `yaml:"buffer_size"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		ServerPort:        "8080",
		StorageDriver:     StorageDriverPostgres,
		LogLevel:          "info",
		DBHost:            "localhost",
		DBPort:            "5432",
		DBUser:            "postgres",
		DBPassword:        "password",
		DBName:            "studenthub",
		DBSSLMode:         "disable",
		DBMaxOpenConns:    25,
		DBMaxIdleConns:    25,
		DBConnMaxLifetime: "5m",
		Wallet: WalletConfig{
			MinimumWithdrawal: 100,
			CoinValue:         "1",
			PayoutCurrency:    "INR",
		},
		Notifications: NotificationConfig{
			Limit:      50,
			BufferSize: 256,
		},
		Auth: AuthConfig{
			JWTIssuer: "studenthub",
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an optional
// YAML file (CONFIG_FILE, default config.yaml) and environment variables, in that
// order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := Default()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.StorageDriver = getEnv("STORAGE_DRIVER", c.StorageDriver)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)
	c.Wallet.CoinValue = getEnv("COIN_VALUE", c.Wallet.CoinValue)
	c.Wallet.PayoutCurrency = getEnv("PAYOUT_CURRENCY", c.Wallet.PayoutCurrency)

	var err error
	if c.Notifications.Limit, err = getEnvInt("NOTIFICATION_LIMIT", c.Notifications.Limit); err != nil {
		return err
	}
	if c.Notifications.BufferSize, err = getEnvInt("NOTIFICATION_BUFFER_SIZE", c.Notifications.BufferSize); err != nil {
		return err
	}

	if v := os.Getenv("MINIMUM_WITHDRAWAL"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MINIMUM_WITHDRAWAL %q: %w", v, err)
		}
		c.Wallet.MinimumWithdrawal = n
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTO_MIGRATE %q: %w", v, err)
		}
		c.AutoMigrate = b
	}
	return nil
}

// Validate checks the values services rely on.
func (c *Config) Validate() error {
	if c.Wallet.MinimumWithdrawal <= 0 {
		return fmt.Errorf("wallet.minimum_withdrawal must be positive, got %d", c.Wallet.MinimumWithdrawal)
	}
	if c.Notifications.Limit <= 0 {
		return fmt.Errorf("notifications.limit must be positive, got %d", c.Notifications.Limit)
	}
	if c.Notifications.BufferSize <= 0 {
		return fmt.Errorf("notifications.buffer_size must be positive, got %d", c.Notifications.BufferSize)
	}
	if strings.TrimSpace(c.Wallet.PayoutCurrency) == "" {
		return fmt.Errorf("wallet.payout_currency is required")
	}
	if _, err := c.CoinValue(); err != nil {
		return err
	}
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	return nil
}

// CoinValue is the payout value of a single coin.
func (c *Config) CoinValue() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(c.Wallet.CoinValue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid wallet.coin_value %q: %w", c.Wallet.CoinValue, err)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("wallet.coin_value must be positive, got %s", v)
	}
	return v, nil
}

// SlogLevel converts LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetDBConnectionString returns DatabaseURL when set, otherwise a key/value DSN.
func (c *Config) GetDBConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
