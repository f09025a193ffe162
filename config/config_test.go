package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costshare/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "costshare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COSTSHARE_CONFIG", "")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	// GIVEN a file that sets some keys
	path := writeFile(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: pgx
  dsn: postgres://localhost/costshare
log:
  format: console
`)

	// WHEN it is loaded
	cfg, err := config.Load(path)

	// THEN set keys win and the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/costshare", cfg.Database.DSN)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	t.Setenv("COSTSHARE_PORT", "7070")
	t.Setenv("COSTSHARE_DB_DSN", ":memory:")
	t.Setenv("COSTSHARE_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("COSTSHARE_METRICS_ENABLED", "false")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad yaml", yaml: "server: [oops"},
		{name: "bad port env", env: map[string]string{"COSTSHARE_PORT": "eighty"}},
		{name: "unknown driver", yaml: "database:\n  driver: mysql\n"},
		{name: "empty dsn", yaml: "database:\n  dsn: \"\"\n"},
		{name: "bad log format", yaml: "log:\n  format: xml\n"},
		{name: "port out of range", yaml: "server:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, tt.yaml)
			}
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
