// Package redis implements the storage medium on Redis and publishes every
// change so other processes sharing the namespace can react.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/persistence"
)

const scanBatch = 256

// Options configures a Medium.
type Options struct {
	Addr      string
	Namespace string
	Channel   string
}

// Medium stores values under Namespace-prefixed keys.
type Medium struct {
	rdb       goredis.UniversalClient
	namespace string
	channel   string
	source    string
	log       *logger.Logger
}

// changeMessage is the payload published on every write or removal.
type changeMessage struct {
	Key    string    `json:"key"`
	Op     string    `json:"op"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options, log *logger.Logger) (*Medium, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, opts, log), nil
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient, opts Options, log *logger.Logger) *Medium {
	ns := strings.TrimSpace(opts.Namespace)
	if ns == "" {
		ns = "activitysync"
	}
	ch := strings.TrimSpace(opts.Channel)
	if ch == "" {
		ch = ns + ":changes"
	}
	return &Medium{
		rdb:       rdb,
		namespace: ns,
		channel:   ch,
		source:    uuid.NewString(),
		log:       logger.OrNop(log).With("service", "RedisMedium"),
	}
}

func (m *Medium) key(k string) string { return m.namespace + ":" + k }

func (m *Medium) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := m.rdb.Get(ctx, m.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (m *Medium) Set(ctx context.Context, key string, value []byte) error {
	if err := m.rdb.Set(ctx, m.key(key), value, 0).Err(); err != nil {
		return translate(key, err)
	}
	m.publish(ctx, key, "set")
	return nil
}

func (m *Medium) Remove(ctx context.Context, key string) error {
	if err := m.rdb.Del(ctx, m.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	m.publish(ctx, key, "remove")
	return nil
}

// Keys scans the namespace.
func (m *Medium) Keys(ctx context.Context) ([]string, error) {
	prefix := m.namespace + ":"
	keys := make([]string, 0)
	iter := m.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Close closes the client.
func (m *Medium) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// Feed returns a change feed on this medium's channel that skips its own writes.
func (m *Medium) Feed() *Feed {
	return NewFeed(m.rdb, m.channel, m.source, m.log)
}

func (m *Medium) publish(ctx context.Context, key, op string) {
	raw, err := json.Marshal(changeMessage{Key: key, Op: op, Source: m.source, At: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := m.rdb.Publish(ctx, m.channel, raw).Err(); err != nil {
		m.log.Warn("redis change publish failed", "key", key, "error", err)
	}
}

// translate maps Redis out-of-memory replies to ErrQuotaExceeded.
func translate(key string, err error) error {
	if strings.HasPrefix(err.Error(), "OOM ") {
		return fmt.Errorf("redis set %s: %w", key, persistence.ErrQuotaExceeded)
	}
	return fmt.Errorf("redis set %s: %w", key, err)
}
