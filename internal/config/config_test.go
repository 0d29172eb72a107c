package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeRelease, cfg.Mode)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, KVSQLite, cfg.KVDriver)
	assert.Equal(t, 30, cfg.BlockSize)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "DEBUG")
	t.Setenv("KV_DRIVER", "redis")
	t.Setenv("BLOCK_SIZE", "25")
	t.Setenv("CORS_ORIGINS", " http://a , ,http://b")

	cfg := FromEnv()
	assert.Equal(t, ModeDebug, cfg.Mode)
	assert.Equal(t, KVRedis, cfg.KVDriver)
	assert.Equal(t, 25, cfg.BlockSize)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORSOrigins)
}

func TestFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quizd.yaml"),
		[]byte("HTTP_ADDR: \":9000\"\nHISTORY_LIMIT: 10\n"), 0o644))
	t.Setenv("HISTORY_LIMIT", "20")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 20, cfg.HistoryLimit)
}

func TestInvalid(t *testing.T) {
	t.Setenv("KV_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("KV_DRIVER", "memory")
	t.Setenv("BLOCK_SIZE", "0")
	_, err = Load()
	assert.Error(t, err)
}
