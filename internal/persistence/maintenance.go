package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/observability"
)

// GCResult lists the constructed entries removed by CollectGarbage.
type GCResult struct {
	Removed []string `json:"removed"`
}

// Stats summarises the store's footprint on the medium.
type Stats struct {
	Keys          int     `json:"keys"`
	Records       int     `json:"records"`
	Constructed   int     `json:"constructed"`
	BytesUsed     int64   `json:"bytesUsed"`
	CapacityBytes int64   `json:"capacityBytes"`
	PercentUsed   float64 `json:"percentUsed"`
}

// write sets key, running one emergency cleanup and one retry when the medium
// reports it is full. Cleanup spares key and every key in protect.
func (o *Orchestrator) write(ctx context.Context, key string, value []byte, protect ...string) error {
	err := o.medium.Set(ctx, key, value)
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	o.log.Warn("persistence: quota exceeded, running emergency cleanup", "key", key, "bytes", len(value))
	keep := make(map[string]struct{}, len(protect)+1)
	keep[key] = struct{}{}
	for _, k := range protect {
		keep[k] = struct{}{}
	}
	freed := o.emergencyCleanup(ctx, keep, o.evictionTarget+len(key)+len(value))
	if freed == 0 {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := o.medium.Set(ctx, key, value); err != nil {
		return fmt.Errorf("write %s after cleanup: %w", key, err)
	}
	return nil
}

// emergencyCleanup evicts the largest constructed and generated values until
// target bytes are freed. Callers hold o.mu.
func (o *Orchestrator) emergencyCleanup(ctx context.Context, keep map[string]struct{}, target int) int {
	keys, err := o.medium.Keys(ctx)
	if err != nil {
		o.log.Error("persistence: cleanup could not list keys", "error", err)
		return 0
	}
	type candidate struct {
		key  string
		size int
	}
	var candidates []candidate
	for _, key := range keys {
		if _, kept := keep[key]; kept || !evictable(key) {
			continue
		}
		data, err := o.medium.Get(ctx, key)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{key: key, size: len(key) + len(data)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })

	freed, evicted := 0, 0
	for _, c := range candidates {
		if freed >= target {
			break
		}
		if err := o.medium.Remove(ctx, c.key); err != nil {
			o.log.Error("persistence: eviction failed", "key", c.key, "error", err)
			continue
		}
		freed += c.size
		evicted++
	}
	observability.RecordEvictions(evicted)
	o.log.Info("persistence: emergency cleanup finished", "evicted", evicted, "freed_bytes", freed)
	return freed
}

// Search scans every primary copy, skipping ones that fail validation, and
// returns matches ordered by UpdatedAt descending then ID.
func (o *Orchestrator) Search(ctx context.Context, filters domain.SearchFilters) []domain.StoredRecord {
	keys, err := o.medium.Keys(ctx)
	if err != nil {
		o.log.Error("persistence: search could not list keys", "error", err)
		return nil
	}
	out := make([]domain.StoredRecord, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, primaryPrefix) {
			continue
		}
		data, err := o.medium.Get(ctx, key)
		if err != nil {
			continue
		}
		stored, reason := o.decodeStored(data)
		if reason != "" {
			o.log.Debug("persistence: search skipped invalid copy", "key", key, "reason", reason)
			continue
		}
		if !matches(*stored, filters) {
			continue
		}
		stored.Record = o.sync.Synchronize(stored.Record.ToRaw())
		out = append(out, *stored)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Metadata.UpdatedAt, out[j].Metadata.UpdatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out
}

func matches(stored domain.StoredRecord, f domain.SearchFilters) bool {
	if f.Type != "" && stored.Record.Type != f.Type {
		return false
	}
	if f.Origin != "" && stored.Metadata.Origin != f.Origin {
		return false
	}
	if !f.From.IsZero() && stored.Metadata.UpdatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && stored.Metadata.UpdatedAt.After(f.To) {
		return false
	}
	return f.Match == nil || f.Match(stored)
}

// ClearAll removes every key the store owns. Background writes accepted
// before the call are dropped.
func (o *Orchestrator) ClearAll(ctx context.Context) bool {
	o.mu.Lock()
	o.clearedAt = o.seq.Load()
	clear(o.removedAt)
	removed, err := o.clearLocked(ctx)
	o.mu.Unlock()

	if err != nil {
		o.log.Error("persistence: clear failed", "error", err)
		return false
	}
	o.log.Info("persistence: store cleared", "keys", removed)
	o.bus.Emit(events.ActivitiesCleared, events.Event{Timestamp: o.now().UTC()})
	return true
}

func (o *Orchestrator) clearLocked(ctx context.Context) (int, error) {
	keys, err := o.medium.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	removed := 0
	var errs []error
	for _, key := range keys {
		if !owned(key) {
			continue
		}
		if err := o.medium.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// CollectGarbage drops constructed entries whose index timestamp is older than
// maxAge. Primary records are kept.
func (o *Orchestrator) CollectGarbage(ctx context.Context, maxAge time.Duration) GCResult {
	var result GCResult
	if maxAge <= 0 {
		return result
	}
	cutoff := o.now().UTC().Add(-maxAge)

	o.mu.Lock()
	index, err := o.readIndex(ctx)
	if err != nil {
		o.mu.Unlock()
		o.log.Error("persistence: gc could not read index", "error", err)
		return result
	}
	for id, entry := range index {
		if !entry.UpdatedAt.Before(cutoff) {
			continue
		}
		err := o.removeLocked(ctx, id, func(key string) bool {
			if key == ActivityKey(id) || key == GeneratedKey(id) {
				return true
			}
			_, ok := constructedType(key, id)
			return ok
		})
		if err != nil {
			o.log.Warn("persistence: gc removal incomplete", "activity_id", id, "error", err)
			continue
		}
		result.Removed = append(result.Removed, id)
	}
	o.mu.Unlock()

	sort.Strings(result.Removed)
	observability.RecordCollected(len(result.Removed))
	if len(result.Removed) > 0 {
		o.log.Info("persistence: garbage collected", "removed", len(result.Removed), "max_age", maxAge.String())
	}
	return result
}

// Stats counts owned keys and the bytes they occupy.
func (o *Orchestrator) Stats(ctx context.Context) Stats {
	var stats Stats
	if sized, ok := o.medium.(Sized); ok {
		stats.CapacityBytes = sized.Capacity()
	}
	keys, err := o.medium.Keys(ctx)
	if err != nil {
		o.log.Error("persistence: stats could not list keys", "error", err)
		return stats
	}
	for _, key := range keys {
		if !owned(key) {
			continue
		}
		data, err := o.medium.Get(ctx, key)
		if err != nil {
			continue
		}
		stats.Keys++
		stats.BytesUsed += int64(len(key) + len(data))
		if strings.HasPrefix(key, primaryPrefix) {
			stats.Records++
		}
		if key == IndexKey {
			var index map[string]json.RawMessage
			if json.Unmarshal(data, &index) == nil {
				stats.Constructed = len(index)
			}
		}
	}
	if stats.CapacityBytes > 0 {
		stats.PercentUsed = float64(stats.BytesUsed) / float64(stats.CapacityBytes) * 100
	}
	observability.SetStorageUsage(stats.BytesUsed)
	return stats
}
