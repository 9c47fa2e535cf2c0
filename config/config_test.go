package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := Load(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Driver = "mysql"
	cfg.User = "alice"
	cfg.Passwd = "secret"
	cfg.RootDir = "/var/lib/orpheusplus"
	cfg.S3.Region = "eu-west-1"
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: db.internal\nuser: bob\nlog_level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Driver)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, "bob", cfg.Identity().Name)
	assert.Equal(t, log.DebugLevel, cfg.Level())
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"driver":    "driver: sqlite\n",
		"level":     "log_level: loud\n",
		"user":      "user: \"a b\"\n",
		"yaml":      "port: [\n",
		"no user":   "user: \"\"\n",
		"no schema": "database: \"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "", cfg.DSN())

	cfg.RootDir = "/data"
	assert.Equal(t, "/data/orpheusplus.duckdb", cfg.DSN())

	cfg.Driver = "mysql"
	cfg.User = "alice"
	cfg.Passwd = "pw"
	cfg.Host = "db"
	cfg.Port = 3307
	cfg.Database = "company"
	assert.Equal(t, "alice:pw@tcp(db:3307)/company?parseTime=true", cfg.DSN())

	cfg.DataSource = "custom"
	assert.Equal(t, "custom", cfg.DSN())
}

func TestPath(t *testing.T) {
	t.Setenv(EnvPath, "")
	assert.Equal(t, "config.yaml", Path())
	t.Setenv(EnvPath, "/etc/orpheusplus.yaml")
	assert.Equal(t, "/etc/orpheusplus.yaml", Path())
}
