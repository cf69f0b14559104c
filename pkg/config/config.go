// Package config loads the report settings from the environment and an
// optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/logging"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
	"github.com/Sternrassler/consortium-doi-report/pkg/snapshot"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when no other dotenv file is named.
const DefaultEnvFile = ".env"

// Default values
const (
	defaultOutputDir   = "."
	defaultHTTPTimeout = 60 * time.Second
)

// ConfigurationError reports a missing or malformed setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Config holds the settings of one report run.
type Config struct {
	ConsortiumID string
	Year         int
	Granularity  period.Granularity
	Instance     client.Instance
	PrintRequest bool

	// Basic auth credentials. Both empty means anonymous access.
	Username string
	Password string

	// APIURL overrides the instance base URL.
	APIURL string

	OutputDir   string
	LogLevel    logging.LogLevel
	LogPretty   bool
	HTTPTimeout time.Duration

	// Optional sinks. Empty disables them.
	RedisURL       string
	SnapshotTTL    time.Duration
	PushgatewayURL string
}

// Load reads envFile if it exists and parses the process environment.
// Variables already set in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, &ConfigurationError{Field: "env file", Reason: fmt.Sprintf("%s: %v", envFile, err)}
		}
	} else if envFile != DefaultEnvFile {
		return nil, &ConfigurationError{Field: "env file", Reason: fmt.Sprintf("%s not found", envFile)}
	}

	return Parse(os.Getenv)
}

// Parse builds and validates a Config from getenv.
func Parse(getenv func(string) string) (*Config, error) {
	env := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	cfg := &Config{
		ConsortiumID:   strings.ToLower(env("CONSORTIUM_ID")),
		Granularity:    period.ParseGranularity(env("PERIOD")),
		Username:       strings.ToLower(env("ACCOUNT_ID")),
		Password:       getenv("ACCOUNT_PASS"),
		APIURL:         env("API_URL"),
		OutputDir:      env("OUTPUT_DIR"),
		LogLevel:       logging.LogLevel(strings.ToLower(env("LOG_LEVEL"))),
		RedisURL:       env("REDIS_URL"),
		PushgatewayURL: env("PUSHGATEWAY_URL"),
		HTTPTimeout:    defaultHTTPTimeout,
		SnapshotTTL:    snapshot.DefaultTTL,
	}

	if cfg.ConsortiumID == "" {
		return nil, &ConfigurationError{Field: "CONSORTIUM_ID", Reason: "is required"}
	}

	year := env("YEAR")
	if year == "" {
		return nil, &ConfigurationError{Field: "YEAR", Reason: "is required"}
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil, &ConfigurationError{Field: "YEAR", Reason: fmt.Sprintf("must be an integer (got %q)", year)}
	}
	cfg.Year = y

	if env("PERIOD") == "" {
		return nil, &ConfigurationError{Field: "PERIOD", Reason: "is required"}
	}

	testInstance, err := requiredBool(env, "TEST_INSTANCE")
	if err != nil {
		return nil, err
	}
	cfg.Instance = client.InstanceProduction
	if testInstance {
		cfg.Instance = client.InstanceTest
	}

	if cfg.PrintRequest, err = requiredBool(env, "PRINT_REQUEST"); err != nil {
		return nil, err
	}

	if cfg.LogPretty, err = optionalBool(env, "LOG_PRETTY"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = optionalDuration(env, "HTTP_TIMEOUT", defaultHTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.SnapshotTTL, err = optionalDuration(env, "SNAPSHOT_TTL", snapshot.DefaultTTL); err != nil {
		return nil, err
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = logging.LevelInfo
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules and values that parsing cannot.
func (c *Config) Validate() error {
	if c.ConsortiumID == "" {
		return &ConfigurationError{Field: "CONSORTIUM_ID", Reason: "is required"}
	}
	if c.Year < 1 || c.Year > 9999 {
		return &ConfigurationError{Field: "YEAR", Reason: fmt.Sprintf("must be between 1 and 9999 (got %d)", c.Year)}
	}
	if (c.Username == "") != (c.Password == "") {
		return &ConfigurationError{Field: "ACCOUNT_ID/ACCOUNT_PASS", Reason: "must be set together"}
	}

	switch c.LogLevel {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return &ConfigurationError{Field: "LOG_LEVEL", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}

	for field, raw := range map[string]string{"API_URL": c.APIURL, "PUSHGATEWAY_URL": c.PushgatewayURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be an http(s) URL (got %q)", raw)}
		}
	}

	if c.RedisURL != "" {
		u, err := url.Parse(c.RedisURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return &ConfigurationError{Field: "REDIS_URL", Reason: fmt.Sprintf("must be a redis:// URL (got %q)", c.RedisURL)}
		}
	}

	info, err := os.Stat(c.OutputDir)
	if err != nil || !info.IsDir() {
		return &ConfigurationError{Field: "OUTPUT_DIR", Reason: fmt.Sprintf("%s is not a directory", c.OutputDir)}
	}

	return nil
}

// ClientConfig returns the API client settings.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Instance)
	cfg.BaseURL = c.APIURL
	cfg.Username = c.Username
	cfg.Password = c.Password
	cfg.Timeout = c.HTTPTimeout
	cfg.LogRequests = c.PrintRequest
	return cfg
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func requiredBool(env func(string) string, key string) (bool, error) {
	if env(key) == "" {
		return false, &ConfigurationError{Field: key, Reason: "is required"}
	}
	return optionalBool(env, key)
}

func optionalBool(env func(string) string, key string) (bool, error) {
	value := env(key)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return false, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be true or false (got %q)", value)}
	}
	return b, nil
}

// optionalDuration accepts values like "30s", "1m" or a plain number of seconds.
func optionalDuration(env func(string) string, key string, defaultValue time.Duration) (time.Duration, error) {
	value := env(key)
	if value == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d, nil
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be a positive duration (got %q)", value)}
}
