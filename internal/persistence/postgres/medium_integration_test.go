//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/persistence"
)

func TestMediumIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	a := NewMedium(pool, "device-a", 0)
	b := NewMedium(pool, "device-b", 0)
	require.NoError(t, a.EnsureSchema(ctx))

	require.NoError(t, a.Set(ctx, "k", []byte("one")))
	require.NoError(t, a.Set(ctx, "k", []byte("two")))

	v, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), v)

	_, err = b.Get(ctx, "k")
	require.ErrorIs(t, err, persistence.ErrKeyNotFound)

	keys, err := a.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, keys)

	require.NoError(t, a.Remove(ctx, "k"))
	_, err = a.Get(ctx, "k")
	require.ErrorIs(t, err, persistence.ErrKeyNotFound)
}

func TestMediumQuotaAndOrchestrator(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	small := NewMedium(pool, "tiny", 8)
	require.NoError(t, small.EnsureSchema(ctx))
	require.ErrorIs(t, small.Set(ctx, "key", []byte("too large")), persistence.ErrQuotaExceeded)

	o := persistence.NewOrchestrator(NewMedium(pool, "main", 0))
	defer o.Close()
	rec := domain.ActivityRecord{ID: "p1", Title: "Revolução Industrial", Description: "Causas e consequências da Revolução Industrial."}
	require.True(t, o.Save(ctx, rec, domain.OriginLocal, persistence.SaveOptions{}))
	require.True(t, o.SaveConstructed(ctx, "p1", "plano-aula", map[string]any{"steps": []any{"intro"}}, persistence.SaveOptions{}))
	o.Flush()

	require.NotNil(t, o.Load(ctx, "p1"))
	require.NotNil(t, o.LoadConstructed(ctx, "p1", ""))
	require.True(t, o.Remove(ctx, "p1"))
	require.Nil(t, o.LoadConstructed(ctx, "p1", ""))
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("activitysync"),
		postgrescontainer.WithUsername("activitysync"),
		postgrescontainer.WithPassword("activitysync"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
