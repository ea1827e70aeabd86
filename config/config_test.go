package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kakungulu256/rcms/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "rcms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "rcms.db", cfg.Database.Path)
	assert.Equal(t, 12, cfg.Ledger.LookaheadMonths)
	assert.Equal(t, time.Hour, cfg.Audit.Interval)
	assert.Empty(t, cfg.AMQP.URL)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_LayerPrecedence(t *testing.T) {
	// GIVEN: A YAML file, environment variables and flags that overlap
	// WHEN: Loading
	// THEN: Flags beat environment, environment beats the file, the file beats defaults

	path := writeFile(t, `
server:
  port: 9000
  shutdown_timeout: 10s
database:
  path: /tmp/file.db
logging:
  level: debug
  format: console
ledger:
  lookahead_months: 6
audit:
  interval: 5m
`)
	t.Setenv("RCMS_DB_PATH", "/tmp/env.db")
	t.Setenv("RCMS_LOOKAHEAD_MONTHS", "3")
	t.Setenv("RCMS_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load([]string{"-config", path, "-lookahead", "0"})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 0, cfg.Ledger.LookaheadMonths)
	assert.Equal(t, 5*time.Minute, cfg.Audit.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	path := writeFile(t, "server:\n  port: 7000\n")
	t.Setenv("RCMS_CONFIG", path)

	cfg, err := config.Load([]string{"-db", ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	t.Setenv("RCMS_PORT", "eighty")
	t.Setenv("RCMS_LOG_FORMAT", "xml")
	t.Setenv("RCMS_AMQP_URL", "http://broker")

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "RCMS_PORT")
	assert.Contains(t, err.Error(), "log format")
	assert.Contains(t, err.Error(), "AMQP URL scheme")
}

func TestLoad_BadFile(t *testing.T) {
	_, err := config.Load([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = config.Load([]string{"-config", writeFile(t, "server: [")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cfg.Ledger.LookaheadMonths = -1
	cfg.Audit.Workers = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookahead")
	assert.Contains(t, err.Error(), "audit workers")

	cfg = config.Default()
	cfg.Audit.Enabled = false
	cfg.Audit.Workers = 0
	assert.NoError(t, cfg.Validate())
}
