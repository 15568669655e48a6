package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/venuewallet/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultDirectoryFile = "config/merchants.yaml"
	defaultCatalogFile   = "config/rewards.yaml"
	defaultCurrency      = "EUR"
	defaultLockTimeout   = 3 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Rotating log file, logs go to stderr only if empty
	LogFile string

	// Address on which the wallet service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Shared secret of the venue identity provider, identity tokens are verified with it
	SecretKey string

	// Environment
	Environment string

	// Merchant directory and reward catalog files
	DirectoryFile string
	CatalogFile   string

	// Endpoint notifications are posted to, notifications are only logged if empty
	NotifyWebhookURL string

	// Currency of new accounts
	Currency string

	// How long an operation waits for a busy account before giving up
	LockTimeout time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		DirectoryFile: defaultDirectoryFile,
		CatalogFile:   defaultCatalogFile,
		Currency:      defaultCurrency,
		LockTimeout:   defaultLockTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"LOG_FILE":           setString(&c.LogFile),
		"ENVIRONMENT":        setString(&c.Environment),
		"DIRECTORY_FILE":     setString(&c.DirectoryFile),
		"CATALOG_FILE":       setString(&c.CatalogFile),
		"NOTIFY_WEBHOOK_URL": setString(&c.NotifyWebhookURL),
		"CURRENCY":           setString(&c.Currency),
		"LOCK_TIMEOUT":       setDuration(&c.LockTimeout),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("venuewallet", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Identity provider secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Rotating log file")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVar(&c.DirectoryFile, "directory", c.DirectoryFile, "Merchant directory file")
	fs.StringVar(&c.CatalogFile, "catalog", c.CatalogFile, "Reward catalog file")
	fs.StringVarP(&c.NotifyWebhookURL, "notify-url", "n", c.NotifyWebhookURL, "Notification webhook URL")
	fs.StringVarP(&c.Currency, "currency", "c", c.Currency, "Currency of new accounts")
	fs.DurationVar(&c.LockTimeout, "lock-timeout", c.LockTimeout, "Wait for a busy account before failing")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database connection string is required")
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.LockTimeout <= 0:
		return errors.New("lock timeout must be positive")
	}
	return nil
}
