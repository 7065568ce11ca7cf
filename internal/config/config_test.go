package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()
	t.Setenv("SPATE_DATA_DIR", dataDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, filepath.Join(dataDir, "torrents.json"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(dataDir, "spate.db"), cfg.Store.SQLitePath)
	assert.Equal(t, 42069, cfg.Engine.ListenPort)
	assert.True(t, cfg.Engine.Private)
	assert.True(t, cfg.Engine.Seed)
	assert.Equal(t, "Spate "+Version, cfg.Engine.Creator)
	assert.Equal(t, time.Second, cfg.Snapshot.Interval)
	assert.Equal(t, 720, cfg.Auth.TokenTTLMinutes)
	assert.False(t, cfg.Store.ResetOnCorrupt)
}

func TestLoadFromEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("# local\nSPATE_ENGINE_LISTENPORT=\"6881\"\nSPATE_STORE_DRIVER=sqlite\n"), 0o644))
	t.Setenv("SPATE_DATA_DIR", dir)
	t.Setenv("SPATE_STORE_PATH", "/tmp/custom.json")
	t.Setenv("SPATE_SNAPSHOT_INTERVAL", "250ms")
	t.Setenv("SPATE_ENGINE_PRIVATE", "false")
	t.Setenv("SPATE_STORE_DRIVER", "json")
	t.Cleanup(func() { os.Unsetenv("SPATE_ENGINE_LISTENPORT") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6881, cfg.Engine.ListenPort)
	assert.Equal(t, "json", cfg.Store.Driver, "environment wins over .env")
	assert.Equal(t, "/tmp/custom.json", cfg.Store.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Snapshot.Interval)
	assert.False(t, cfg.Engine.Private)
}

func TestLoadRejectsBadStore(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPATE_DATA_DIR", t.TempDir())

	t.Setenv("SPATE_STORE_DRIVER", "redis")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SPATE_STORE_DRIVER", "s3")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("SPATE_STORE_BUCKET", "spate-state")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "spate/torrents.json", cfg.Store.Key)
}
