package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8, cfg.Fetch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Addons.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Addons.ScanTimeout)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfig_Paths(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDB     string
		wantAddons string
	}{
		{
			name:       "derived from data dir",
			cfg:        Config{DataDir: "/data"},
			wantDB:     filepath.Join("/data", "data.db"),
			wantAddons: filepath.Join("/data", "addons"),
		},
		{
			name:       "explicit paths win",
			cfg:        Config{DataDir: "/data", DBPath: "/x/catalog.db", AddonsDir: "/y/addons"},
			wantDB:     "/x/catalog.db",
			wantAddons: "/y/addons",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDB, tt.cfg.GetDBPath())
			assert.Equal(t, tt.wantAddons, tt.cfg.GetAddonsDir())
		})
	}
}

func TestConfig_GetFetchWorkers(t *testing.T) {
	assert.Equal(t, 8, (&Config{}).GetFetchWorkers())
	assert.Equal(t, 3, (&Config{Fetch: FetchConfig{Workers: 3}}).GetFetchWorkers())
}

func TestConfig_LoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
data_dir: /srv/gami
db_path: /custom/path.db
fetch:
  workers: 4
  timeout: 10s
addons:
  call_timeout: 2s
logging:
  format: json
  level: debug
tracing:
  endpoint: collector:4317
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644)) // #nosec G306

	cfg := DefaultConfig()
	require.NoError(t, cfg.loadFromFile(configPath))

	assert.Equal(t, "/srv/gami", cfg.DataDir)
	assert.Equal(t, "/custom/path.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Addons.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Addons.ScanTimeout, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
}

func TestConfig_LoadFromFile_Errors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.loadFromFile("/nonexistent/path.yaml"))

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0o644)) // #nosec G306
	assert.Error(t, cfg.loadFromFile(configPath))
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("GAMI_DB", "/env/db.db")
	t.Setenv("GAMI_ADDONS_DIR", "/env/addons")
	t.Setenv("GAMI_FETCH_WORKERS", "2")
	t.Setenv("GAMI_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnvOverrides())

	assert.Equal(t, "/env/db.db", cfg.DBPath)
	assert.Equal(t, "/env/addons", cfg.AddonsDir)
	assert.Equal(t, 2, cfg.Fetch.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
}

func TestConfig_ApplyEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("GAMI_FETCH_WORKERS", "many")

	cfg := DefaultConfig()
	assert.Error(t, cfg.applyEnvOverrides())
}

func TestLoad_WithEnvConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("db_path: from_file.db"), 0o644)) // #nosec G306

	t.Setenv("GAMI_CONFIG", configPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_file.db", cfg.DBPath)
}
