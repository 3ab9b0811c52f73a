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
)

// BuildMetaKey is the payload key build provenance is embedded under.
const BuildMetaKey = "_build"

type constructedJob struct {
	id           string
	activityType string
	content      map[string]any
	generatedAt  time.Time
	// seq orders queued jobs against Remove and ClearAll; zero for synchronous writes.
	seq uint64
}

type constructedEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

// SaveConstructed stores generated content for id under every constructed key
// and the global index. Heavy payloads are handed to the background writer and
// the call reports only that the write was accepted.
func (o *Orchestrator) SaveConstructed(ctx context.Context, id, activityType string, payload map[string]any, opts SaveOptions) bool {
	if err := checkID(id); err != nil {
		o.log.Warn("persistence: constructed save rejected", "activity_id", id, "type", activityType, "error", err)
		return false
	}
	activityType = NormalizeType(activityType)
	now := o.now().UTC()
	content := domain.CloneMap(payload)
	if content == nil {
		content = map[string]any{}
	}
	build := map[string]any{
		"activityId":   id,
		"activityType": activityType,
		"generatedAt":  now.Format(time.RFC3339Nano),
	}
	if opts.PipelineVersion != "" {
		build["pipelineVersion"] = opts.PipelineVersion
	}
	if opts.SessionID != "" {
		build["sessionId"] = opts.SessionID
	}
	if opts.Model != "" {
		build["model"] = opts.Model
	}
	if opts.DurationMS > 0 {
		build["durationMs"] = opts.DurationMS
	}
	content[BuildMetaKey] = build

	job := constructedJob{id: id, activityType: activityType, content: content, generatedAt: now}
	if o.isHeavy(activityType, content) {
		queued := job
		queued.seq = o.seq.Add(1)
		if o.writer.Enqueue(queued) {
			o.log.Debug("persistence: constructed write queued", "activity_id", id, "type", activityType)
			return true
		}
		o.log.Warn("persistence: background writer unavailable, writing synchronously", "activity_id", id)
	}
	return o.writeConstructed(ctx, job)
}

func (o *Orchestrator) isHeavy(activityType string, content map[string]any) bool {
	if _, ok := heavyTypes[activityType]; ok {
		return true
	}
	data, err := json.Marshal(content)
	return err == nil && len(data) > o.heavyThreshold
}

// writeConstructed writes the redundancy set and the index entry. Each key is
// attempted independently and every failure is logged.
func (o *Orchestrator) writeConstructed(ctx context.Context, job constructedJob) bool {
	o.mu.Lock()
	if o.supersededLocked(job) {
		o.mu.Unlock()
		o.log.Debug("persistence: dropped queued write for removed activity", "activity_id", job.id, "type", job.activityType)
		return true
	}
	ok := o.writeConstructedLocked(ctx, job)
	o.mu.Unlock()

	if !ok {
		return false
	}
	o.bus.Emit(events.ActivityContentGenerated, events.Event{
		ActivityID: job.id,
		Type:       job.activityType,
		Origin:     domain.OriginConstructed,
		Timestamp:  job.generatedAt,
	})
	o.legacy.Emit(events.LegacyActivityCompleted, events.LegacyEvent{
		ActivityID:   job.id,
		ActivityType: job.activityType,
		Content:      domain.CloneMap(job.content),
		Timestamp:    job.generatedAt,
	})
	return true
}

// supersededLocked reports whether a queued job was overtaken by a Remove or
// ClearAll, and forgets tombstones that no job still in the queue can match.
func (o *Orchestrator) supersededLocked(job constructedJob) bool {
	if job.seq == 0 {
		return false
	}
	dropped := job.seq <= o.clearedAt || job.seq <= o.removedAt[job.id]
	for id, at := range o.removedAt {
		if at <= job.seq {
			delete(o.removedAt, id)
		}
	}
	return dropped
}

// tombstoneLocked makes queued writes for id that were accepted before now
// drop instead of landing after a removal.
func (o *Orchestrator) tombstoneLocked(id string) {
	if o.writer.Pending() == 0 {
		return
	}
	o.removedAt[id] = o.seq.Load()
}

// writeConstructedLocked writes the redundancy set and the index. Emergency
// cleanup never evicts a sibling of the set being written, and every key is
// read back so a missing sibling fails the call.
func (o *Orchestrator) writeConstructedLocked(ctx context.Context, job constructedJob) bool {
	ok := true
	keys := redundancySet(job.activityType, job.id)
	values := map[string]any{
		ConstructedKey(job.activityType, job.id): constructedEnvelope{Success: true, Data: job.content},
		ActivityKey(job.id):                      job.content,
		GeneratedKey(job.id):                     job.content,
	}
	for _, key := range keys {
		if err := o.writeJSON(ctx, key, values[key], keys...); err != nil {
			o.log.Error("persistence: constructed key write failed", "activity_id", job.id, "key", key, "error", err)
			ok = false
		}
	}
	if err := o.updateIndex(ctx, func(index map[string]domain.ConstructedEntry) bool {
		index[job.id] = domain.ConstructedEntry{Type: job.activityType, Data: job.content, UpdatedAt: job.generatedAt}
		return true
	}, keys...); err != nil {
		o.log.Error("persistence: index update failed", "activity_id", job.id, "error", err)
		ok = false
	}
	if !ok {
		return false
	}
	for _, key := range keys {
		if _, err := o.medium.Get(ctx, key); err != nil {
			o.log.Error("persistence: constructed key missing after write", "activity_id", job.id, "key", key, "error", err)
			ok = false
		}
	}
	return ok
}

// LoadConstructed returns the constructed content of id, probing the
// type-qualified key, the unqualified keys, any other type-qualified key and
// finally the index. activityType may be empty.
func (o *Orchestrator) LoadConstructed(ctx context.Context, id, activityType string) map[string]any {
	if checkID(id) != nil {
		return nil
	}
	var lookups []string
	if strings.TrimSpace(activityType) != "" {
		lookups = append(lookups, ConstructedKey(NormalizeType(activityType), id))
	}
	lookups = append(lookups, ActivityKey(id), GeneratedKey(id))
	for _, key := range lookups {
		if content := o.readConstructed(ctx, key); content != nil {
			return content
		}
	}

	keys, err := o.medium.Keys(ctx)
	if err != nil {
		o.log.Warn("persistence: list keys failed", "error", err)
	} else {
		sort.Strings(keys)
		for _, key := range keys {
			if _, ok := constructedType(key, id); !ok {
				continue
			}
			if content := o.readConstructed(ctx, key); content != nil {
				return content
			}
		}
	}

	index, err := o.readIndex(ctx)
	if err != nil {
		o.log.Warn("persistence: read index failed", "error", err)
		return nil
	}
	if entry, ok := index[id]; ok && entry.Data != nil {
		return entry.Data
	}
	return nil
}

func (o *Orchestrator) readConstructed(ctx context.Context, key string) map[string]any {
	data, err := o.medium.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			o.log.Warn("persistence: constructed read failed", "key", key, "error", err)
		}
		return nil
	}
	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil || value == nil {
		o.log.Warn("persistence: constructed value unparseable", "key", key)
		return nil
	}
	if strings.HasPrefix(key, constructedPrefix) {
		if inner, ok := value["data"].(map[string]any); ok {
			return inner
		}
	}
	return value
}

// ListConstructed returns the global index.
func (o *Orchestrator) ListConstructed(ctx context.Context) map[string]domain.ConstructedEntry {
	index, err := o.readIndex(ctx)
	if err != nil {
		o.log.Warn("persistence: read index failed", "error", err)
		return map[string]domain.ConstructedEntry{}
	}
	return index
}

func (o *Orchestrator) readIndex(ctx context.Context) (map[string]domain.ConstructedEntry, error) {
	index := map[string]domain.ConstructedEntry{}
	data, err := o.medium.Get(ctx, IndexKey)
	if errors.Is(err, ErrKeyNotFound) {
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return index, nil
}

// updateIndex applies fn to the index and writes it back when fn reports a change.
// protect names keys emergency cleanup must spare. Callers hold o.mu.
func (o *Orchestrator) updateIndex(ctx context.Context, fn func(map[string]domain.ConstructedEntry) bool, protect ...string) error {
	index, err := o.readIndex(ctx)
	if err != nil {
		o.log.Warn("persistence: resetting unreadable index", "error", err)
		index = map[string]domain.ConstructedEntry{}
	}
	if !fn(index) {
		return nil
	}
	return o.writeJSON(ctx, IndexKey, index, protect...)
}
