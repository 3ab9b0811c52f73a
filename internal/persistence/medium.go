// Package persistence stores synchronized activity records redundantly on a
// key-value medium and validates them on the way back out.
package persistence

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned by a Medium that has no room for a write.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrKeyNotFound is returned by Medium.Get for an absent key.
	ErrKeyNotFound = errors.New("key not found")
)

// Medium is a flat, transaction-free key-value store.
type Medium interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Sized is implemented by mediums with a fixed capacity in bytes.
type Sized interface {
	Capacity() int64
}
