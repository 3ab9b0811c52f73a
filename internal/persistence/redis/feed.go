package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/observability"
)

// Feed forwards changes published by other Medium instances.
type Feed struct {
	rdb     goredis.UniversalClient
	channel string
	self    string
	log     *logger.Logger

	mu  sync.Mutex
	sub *goredis.PubSub
}

var _ events.ChangeFeed = (*Feed)(nil)

// NewFeed subscribes to channel; messages whose source equals self are dropped.
func NewFeed(rdb goredis.UniversalClient, channel, self string, log *logger.Logger) *Feed {
	return &Feed{rdb: rdb, channel: channel, self: self, log: logger.OrNop(log)}
}

// Start subscribes and forwards changes to fn until ctx ends or Close is called.
func (f *Feed) Start(ctx context.Context, fn func(events.Change)) error {
	if f == nil || f.rdb == nil {
		return fmt.Errorf("redis change feed not initialized")
	}
	if fn == nil {
		return fmt.Errorf("change callback required")
	}

	sub := f.rdb.Subscribe(ctx, f.channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				change, ok := f.decode(m.Payload)
				if !ok {
					continue
				}
				observability.RecordExternalChange(change.Op)
				fn(change)
			}
		}
	}()
	return nil
}

func (f *Feed) decode(payload string) (events.Change, bool) {
	var msg changeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		f.log.Warn("bad redis change payload", "error", err)
		return events.Change{}, false
	}
	if msg.Source == f.self || msg.Key == "" {
		return events.Change{}, false
	}
	return events.Change{Key: msg.Key, Op: msg.Op, Source: msg.Source, At: msg.At}, true
}

// Close ends the subscription.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil {
		return nil
	}
	err := f.sub.Close()
	f.sub = nil
	return err
}
