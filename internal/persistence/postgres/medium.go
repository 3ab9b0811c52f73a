// Package postgres implements the storage medium on a shared Postgres table.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitysync/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

// Medium stores one namespace's keys in activity_kv.
type Medium struct {
	pool      *pgxpool.Pool
	namespace string
	capacity  int64
}

// NewMedium constructs a Medium. A positive capacity bounds the namespace's bytes.
func NewMedium(pool *pgxpool.Pool, namespace string, capacity int64) *Medium {
	if namespace == "" {
		namespace = "default"
	}
	return &Medium{pool: pool, namespace: namespace, capacity: capacity}
}

// EnsureSchema creates the table when missing.
func (m *Medium) EnsureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, schemaSQL)
	return err
}

func (m *Medium) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM activity_kv WHERE namespace=$1 AND key=$2`

	var value []byte
	if err := m.pool.QueryRow(ctx, query, m.namespace, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, persistence.ErrKeyNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set upserts key. With a capacity, writers of the namespace are serialized by
// an advisory lock so the usage check and the write see the same state.
func (m *Medium) Set(ctx context.Context, key string, value []byte) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if m.capacity > 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, m.namespace); err != nil {
			return fmt.Errorf("lock namespace: %w", err)
		}
		var used, existing int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0) FROM activity_kv WHERE namespace=$1`,
			m.namespace).Scan(&used); err != nil {
			return fmt.Errorf("usage: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0) FROM activity_kv WHERE namespace=$1 AND key=$2`,
			m.namespace, key).Scan(&existing); err != nil {
			return fmt.Errorf("usage of %s: %w", key, err)
		}
		if used-existing+int64(len(key)+len(value)) > m.capacity {
			return persistence.ErrQuotaExceeded
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO activity_kv (namespace, key, value, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		m.namespace, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return tx.Commit(ctx)
}

func (m *Medium) Remove(ctx context.Context, key string) error {
	_, err := m.pool.Exec(ctx, `DELETE FROM activity_kv WHERE namespace=$1 AND key=$2`, m.namespace, key)
	return err
}

func (m *Medium) Keys(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx, `SELECT key FROM activity_kv WHERE namespace=$1 ORDER BY key`, m.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Capacity returns the namespace byte budget, or zero when unbounded.
func (m *Medium) Capacity() int64 { return m.capacity }
