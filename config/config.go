/*
config.go - Server configuration

PURPOSE:
  Resolves the server configuration from four layers, each overriding the
  previous one:

    1. Built-in defaults
    2. Optional YAML file (-config flag or RCMS_CONFIG)
    3. Environment, after loading an optional .env file
    4. Command-line flags (-port, -db, -log-level, -lookahead)

  Validate reports every problem at once.

ENVIRONMENT:
  RCMS_CONFIG             YAML file path
  RCMS_PORT               HTTP port
  RCMS_DB_PATH            SQLite path (":memory:" allowed)
  RCMS_LOG_LEVEL          debug|info|warn|error
  RCMS_LOG_FORMAT         json|console
  RCMS_LOOKAHEAD_MONTHS   future months a payment may prepay
  RCMS_AUDIT_ENABLED      run the periodic ledger audit
  RCMS_AUDIT_INTERVAL     audit period (Go duration)
  RCMS_AUDIT_WORKERS      tenants replayed concurrently
  RCMS_AMQP_URL           broker URL; empty disables events
  RCMS_AMQP_EXCHANGE      exchange name
  RCMS_CORS_ORIGINS       comma separated allowed origins
  RCMS_SHUTDOWN_TIMEOUT   graceful shutdown budget

SEE ALSO:
  - cmd/server/main.go: consumer
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds storage configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LedgerConfig holds allocation settings
type LedgerConfig struct {
	LookaheadMonths int `yaml:"lookahead_months"`
}

// AuditConfig holds ledger audit scheduler configuration
type AuditConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Workers  int           `yaml:"workers"`
}

// AMQPConfig holds event publishing configuration
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Config represents the complete server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Audit    AuditConfig    `yaml:"audit"`
	AMQP     AMQPConfig     `yaml:"amqp"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "rcms.db"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Ledger:   LedgerConfig{LookaheadMonths: 12},
		Audit:    AuditConfig{Enabled: true, Interval: time.Hour, Workers: 4},
		AMQP:     AMQPConfig{Exchange: "rcms"},
	}
}

// Load resolves the configuration for the given command-line arguments
// (without the program name).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("rcms", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	port := fs.Int("port", 0, "HTTP server port")
	dbPath := fs.String("db", "", "SQLite database path (\":memory:\" for in-memory)")
	logLevel := fs.String("log-level", "", "log level")
	lookahead := fs.Int("lookahead", 0, "future months a payment may prepay")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	// .env never overrides variables already present in the environment.
	_ = godotenv.Load()

	path := *configPath
	if path == "" {
		path = os.Getenv("RCMS_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	problems := cfg.applyEnv()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "db":
			cfg.Database.Path = *dbPath
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "lookahead":
			cfg.Ledger.LookaheadMonths = *lookahead
		}
	})

	if err := cfg.validate(problems); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv overlays RCMS_* variables and returns the ones that did not parse.
func (c *Config) applyEnv() []string {
	var problems []string

	if v, ok := lookup("RCMS_PORT"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			problems = append(problems, fmt.Sprintf("invalid RCMS_PORT '%s': must be a number", v))
		} else {
			c.Server.Port = n
		}
	}
	if v, ok := lookup("RCMS_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("RCMS_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("RCMS_LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	if v, ok := lookup("RCMS_LOOKAHEAD_MONTHS"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			problems = append(problems, fmt.Sprintf("invalid RCMS_LOOKAHEAD_MONTHS '%s': must be a number", v))
		} else {
			c.Ledger.LookaheadMonths = n
		}
	}
	if v, ok := lookup("RCMS_AUDIT_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err != nil {
			problems = append(problems, fmt.Sprintf("invalid RCMS_AUDIT_ENABLED '%s': must be a boolean", v))
		} else {
			c.Audit.Enabled = b
		}
	}
	if v, ok := lookup("RCMS_AUDIT_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err != nil {
			problems = append(problems, fmt.Sprintf("invalid RCMS_AUDIT_INTERVAL '%s': %v", v, err))
		} else {
			c.Audit.Interval = d
		}
	}
	if v, ok := lookup("RCMS_AUDIT_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			problems = append(problems, fmt.Sprintf("invalid RCMS_AUDIT_WORKERS '%s': must be a number", v))
		} else {
			c.Audit.Workers = n
		}
	}
	if v, ok := lookup("RCMS_AMQP_URL"); ok {
		c.AMQP.URL = v
	}
	if v, ok := lookup("RCMS_AMQP_EXCHANGE"); ok {
		c.AMQP.Exchange = v
	}
	if v, ok := lookup("RCMS_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("RCMS_SHUTDOWN_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err != nil {
			problems = append(problems, fmt.Sprintf("invalid RCMS_SHUTDOWN_TIMEOUT '%s': %v", v, err))
		} else {
			c.Server.ShutdownTimeout = d
		}
	}
	return problems
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	return c.validate(nil)
}

func (c *Config) validate(problems []string) error {
	errs := append([]string(nil), problems...)

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown timeout must be positive")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, "database path cannot be empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be json or console", c.Logging.Format))
	}

	if c.Ledger.LookaheadMonths < 0 || c.Ledger.LookaheadMonths > 120 {
		errs = append(errs, fmt.Sprintf("invalid lookahead %d: must be between 0 and 120 months", c.Ledger.LookaheadMonths))
	}

	if c.Audit.Enabled {
		if c.Audit.Interval < time.Second {
			errs = append(errs, fmt.Sprintf("invalid audit interval %s: must be at least 1s", c.Audit.Interval))
		}
		if c.Audit.Workers < 1 {
			errs = append(errs, fmt.Sprintf("invalid audit workers %d: must be at least 1", c.Audit.Workers))
		}
	}

	if c.AMQP.URL != "" {
		if parsed, err := url.Parse(c.AMQP.URL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQP.Exchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
