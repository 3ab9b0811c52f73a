package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/persistence"
	"example.com/activitysync/internal/persistence/memory"
	"example.com/activitysync/internal/persistence/sqlite"
)

func TestOpenStorageMemory(t *testing.T) {
	cfg := config.Config{StorageMedium: config.MediumMemory, StorageCapacityBytes: 1024}
	storage, err := OpenStorage(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer storage.Close()

	m, ok := storage.Medium.(*memory.Medium)
	require.True(t, ok)
	require.EqualValues(t, 1024, m.Capacity())
	require.Nil(t, storage.Feed)
}

func TestOpenStorageSQLiteBacksOrchestrator(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		StorageMedium:        config.MediumSQLite,
		SQLitePath:           filepath.Join(t.TempDir(), "store.db"),
		StorageCapacityBytes: 1 << 20,
		HeavyThresholdBytes:  1024,
		AsyncQueueSize:       4,
	}
	storage, err := OpenStorage(ctx, cfg, nil)
	require.NoError(t, err)
	defer storage.Close()
	_, ok := storage.Medium.(*sqlite.Medium)
	require.True(t, ok)

	o := storage.Orchestrator(cfg, nil)
	defer o.Close()

	record := o.Synchronizer().Synchronize(map[string]any{"id": "s1", "title": "Leitura guiada"})
	require.True(t, o.Save(ctx, record, domain.OriginLocal, persistence.SaveOptions{}))
	loaded := o.Load(ctx, "s1")
	require.NotNil(t, loaded)
	require.Equal(t, "Leitura guiada", loaded.Title)
}

func TestOpenStorageRejectsUnknownMedium(t *testing.T) {
	_, err := OpenStorage(context.Background(), config.Config{StorageMedium: "floppy"}, nil)
	require.Error(t, err)
}
