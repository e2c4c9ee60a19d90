package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 9090,
		"database_url": "postgres://localhost/engine",
		"inline_worker": true
	}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://localhost/engine", cfg.DatabaseURL)
	assert.True(t, cfg.InlineWorker)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile("")
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestFromEnv_FileWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("WORKER_URL", "http://env-worker:9000")
	t.Setenv("SWEEP_INTERVAL", "30m")

	cfg := Config{DatabaseURL: "postgres://file/db"}
	cfg.FromEnv()

	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, "http://env-worker:9000", cfg.WorkerURL)
	assert.Equal(t, 30*time.Minute, cfg.SweepInterval)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, DatabaseURL: "postgres://localhost/engine", InlineWorker: true, SweepInterval: time.Hour}
	assert.NoError(t, valid.Validate())

	noDB := Config{Port: 8080, InlineWorker: true}
	assert.Error(t, noDB.Validate())

	noWorker := Config{Port: 8080, DatabaseURL: "postgres://localhost/engine"}
	assert.Error(t, noWorker.Validate())

	badPort := Config{Port: -1, DatabaseURL: "postgres://localhost/engine", InlineWorker: true}
	assert.Error(t, badPort.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://localhost/engine"}
	merged := cfg.MergeWithDefaults(Defaults())
	assert.Equal(t, 8080, merged.Port)
	assert.Equal(t, time.Hour, merged.SweepInterval)
	assert.Equal(t, "postgres://localhost/engine", merged.DatabaseURL)
}
