package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACTIVITYSYNC_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, MediumMemory, cfg.StorageMedium)
	require.Equal(t, 50*1024, cfg.HeavyThresholdBytes)
	require.Equal(t, 7*24*time.Hour, cfg.GCMaxAge)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activitysync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_address: ":7000"
storage_medium: sqlite
sqlite_path: /var/lib/activitysync/store.db
gc_max_age: 48h
consumer_topics:
  - content.a
  - content.b
`), 0o600))

	t.Setenv("ACTIVITYSYNC_CONFIG", path)
	t.Setenv("HTTP_ADDRESS", ":9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("ASYNC_QUEUE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress)
	require.Equal(t, MediumSQLite, cfg.StorageMedium)
	require.Equal(t, "/var/lib/activitysync/store.db", cfg.SQLitePath)
	require.Equal(t, 48*time.Hour, cfg.GCMaxAge)
	require.Equal(t, []string{"content.a", "content.b"}, cfg.ConsumerTopics)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 64, cfg.AsyncQueueSize)
	require.Equal(t, 3, cfg.ConsumerMaxAttempts)
}

func TestLoadRejectsUnknownMedium(t *testing.T) {
	t.Setenv("ACTIVITYSYNC_CONFIG", "")
	t.Setenv("STORAGE_MEDIUM", "floppy")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadReportsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_address: [unterminated"), 0o600))
	t.Setenv("ACTIVITYSYNC_CONFIG", path)
	_, err := Load()
	require.Error(t, err)
}
