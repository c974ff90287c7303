package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/stagehand.db", cfg.Database.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "/public", cfg.Storage.URLPrefix)
	assert.Equal(t, []string{"hero", "mission", "programs", "contact"}, cfg.Site.Sections)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STAGEHAND_DB_DRIVER", "postgres")
	t.Setenv("STAGEHAND_DB_DSN", "postgres://localhost/stagehand")
	t.Setenv("STAGEHAND_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagehand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
site:
  name: Friends of the Park
server:
  addr: ":8080"
admin:
  password: secret
`), 0o644))
	t.Setenv("STAGEHAND_SESSION_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Friends of the Park", cfg.Site.Name)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Admin.SessionSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	require.NoError(t, cfg.RequireServer())
}

func TestRequireServer(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.RequireServer())
	cfg.Admin.Password = "x"
	require.Error(t, cfg.RequireServer())
	cfg.Admin.SessionSecret = "y"
	require.NoError(t, cfg.RequireServer())
}

func TestUsageListsVariables(t *testing.T) {
	assert.Contains(t, Usage(), "STAGEHAND_ADMIN_PASSWORD")
}
