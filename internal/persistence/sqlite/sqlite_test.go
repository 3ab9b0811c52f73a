package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/persistence"
)

func openTemp(t *testing.T, capacity int64) *Medium {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "activities.db"), capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMediumCRUD(t *testing.T) {
	ctx := context.Background()
	m := openTemp(t, 0)

	require.NoError(t, m.Set(ctx, "b", []byte(`{"v":2}`)))
	require.NoError(t, m.Set(ctx, "a", []byte(`{"v":1}`)))
	require.NoError(t, m.Set(ctx, "a", []byte(`{"v":3}`)))

	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":3}`, string(v))

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, m.Remove(ctx, "a"))
	_, err = m.Get(ctx, "a")
	require.ErrorIs(t, err, persistence.ErrKeyNotFound)
}

func TestMediumQuota(t *testing.T) {
	ctx := context.Background()
	m := openTemp(t, 16)

	require.NoError(t, m.Set(ctx, "k", []byte("0123456789")))
	require.ErrorIs(t, m.Set(ctx, "other", []byte("0123456789")), persistence.ErrQuotaExceeded)
	require.NoError(t, m.Set(ctx, "k", []byte("012345678901234")))
	require.Equal(t, int64(16), m.Capacity())
}

func TestMediumBacksOrchestrator(t *testing.T) {
	ctx := context.Background()
	o := persistence.NewOrchestrator(openTemp(t, 0))
	defer o.Close()

	rec := domain.ActivityRecord{ID: "s1", Title: "Sistema solar", Description: "Planetas e suas órbitas ao redor do Sol."}
	require.True(t, o.Save(ctx, rec, domain.OriginLocal, persistence.SaveOptions{}))
	loaded := o.Load(ctx, "s1")
	require.NotNil(t, loaded)
	require.Equal(t, "Sistema solar", loaded.Title)

	require.True(t, o.Remove(ctx, "s1"))
	require.Nil(t, o.Load(ctx, "s1"))
}
