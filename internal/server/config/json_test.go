package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"broker_url":           "redis://broker:6379/2",
		"storage_backend":      "memory",
		"database_dsn":         "users.db",
		"pepper":               "pepper",
		"cascade_queue":        "delete-posts-by-user-id",
		"cascade_timeout":      "2s",
		"consumer_concurrency": 4,
		"argon2_memory":        1024,
		"argon2_time":          2,
		"argon2_threads":       1,
		"log_level":            "debug",
		"log_format":           "json",
		"metrics_addr":         ":9100",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, parseJson(cfg, []string{"-config", pathFlag}))

		assert.Equal(t, "redis://broker:6379/2", cfg.BrokerURL)
		assert.Equal(t, BackendMemory, cfg.StorageBackend)
		assert.Equal(t, "users.db", cfg.DatabaseDSN)
		assert.Equal(t, "pepper", cfg.Pepper)
		assert.Equal(t, "delete-posts-by-user-id", cfg.CascadeQueue)
		assert.Equal(t, 2*time.Second, cfg.CascadeTimeout)
		assert.Equal(t, 4, cfg.ConsumerConcurrency)
		assert.Equal(t, uint32(1024), cfg.Argon2Memory)
		assert.Equal(t, uint32(2), cfg.Argon2Time)
		assert.Equal(t, uint8(1), cfg.Argon2Threads)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, ":9100", cfg.MetricsAddr)
	})

	t.Run("absent keys keep earlier values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"log_level": "warn"})

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-c", partial}))

		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, "redis://localhost:6379/0", cfg.BrokerURL)
		assert.Equal(t, 10*time.Second, cfg.CascadeTimeout)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		cfg := &Config{BrokerURL: "redis://defaults:1234", Pepper: "key"}
		require.NoError(t, parseJson(cfg, nil))

		assert.Equal(t, "redis://defaults:1234", cfg.BrokerURL)
		assert.Equal(t, "key", cfg.Pepper)
	})

	t.Run("invalid JSON → error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		require.Error(t, parseJson(&Config{}, []string{"-config", bad}))
	})

	t.Run("missing file → error", func(t *testing.T) {
		require.Error(t, parseJson(&Config{}, []string{"-c", filepath.Join(dir, "nope.json")}))
	})
}
