package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/integrity"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/observability"
	"example.com/activitysync/internal/synchronizer"
)

const (
	defaultHeavyThreshold = 50 * 1024
	defaultQueueSize      = 64
	defaultEvictionTarget = 1024 * 1024
)

var heavyTypes = map[string]struct{}{
	"quiz-interativo":    {},
	"flash-cards":        {},
	"lista-exercicios":   {},
	"plano-aula":         {},
	"sequencia-didatica": {},
}

// SaveOptions carries generation provenance recorded in the metadata envelope.
type SaveOptions struct {
	PipelineVersion string
	SessionID       string
	Model           string
	DurationMS      int64
}

// Orchestrator owns every read and write of activity data on a Medium. Public
// methods never panic and report failure as false or nil after logging.
type Orchestrator struct {
	medium    Medium
	log       *logger.Logger
	sync      *synchronizer.Synchronizer
	validator *integrity.Validator
	bus       *events.Bus[events.Event]
	legacy    *events.Bus[events.LegacyEvent]
	now       func() time.Time

	heavyThreshold int
	queueSize      int
	evictionTarget int

	// mu serializes multi-key write sequences and the index read-modify-write.
	mu     sync.Mutex
	writer *asyncWriter

	// seq numbers queued constructed writes. removedAt and clearedAt hold the
	// last seq accepted before a Remove or ClearAll; guarded by mu.
	seq       atomic.Uint64
	removedAt map[string]uint64
	clearedAt uint64
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = logger.OrNop(l) }
}

// WithSynchronizer overrides the synchronizer used by Load and Update.
func WithSynchronizer(s *synchronizer.Synchronizer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sync = s
		}
	}
}

// WithBuses sets the event buses notifications are emitted on.
func WithBuses(bus *events.Bus[events.Event], legacy *events.Bus[events.LegacyEvent]) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
		if legacy != nil {
			o.legacy = legacy
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHeavyThreshold sets the serialized size above which constructed payloads
// are written in the background.
func WithHeavyThreshold(bytes int) Option {
	return func(o *Orchestrator) {
		if bytes > 0 {
			o.heavyThreshold = bytes
		}
	}
}

// WithQueueSize bounds the background writer queue.
func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithEvictionTarget sets how many bytes emergency cleanup tries to free.
func WithEvictionTarget(bytes int) Option {
	return func(o *Orchestrator) {
		if bytes > 0 {
			o.evictionTarget = bytes
		}
	}
}

// NewOrchestrator wires an Orchestrator over medium and starts its background writer.
func NewOrchestrator(medium Medium, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		medium:         medium,
		log:            logger.NewNop(),
		now:            time.Now,
		heavyThreshold: defaultHeavyThreshold,
		queueSize:      defaultQueueSize,
		evictionTarget: defaultEvictionTarget,
		removedAt:      map[string]uint64{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sync == nil {
		o.sync = synchronizer.New(nil, o.log)
	}
	if o.bus == nil {
		o.bus = events.NewBus[events.Event](o.log)
	}
	if o.legacy == nil {
		o.legacy = events.NewBus[events.LegacyEvent](o.log)
	}
	o.validator = integrity.NewValidator(o.log)
	o.writer = newAsyncWriter(o.queueSize, o.writeConstructed, o.log)
	go o.writer.Start(context.Background())
	return o
}

// Events returns the bus activity notifications are emitted on.
func (o *Orchestrator) Events() *events.Bus[events.Event] { return o.bus }

// Legacy returns the bus carrying construction:activity_completed.
func (o *Orchestrator) Legacy() *events.Bus[events.LegacyEvent] { return o.legacy }

// Synchronizer returns the synchronizer records are normalized with.
func (o *Orchestrator) Synchronizer() *synchronizer.Synchronizer { return o.sync }

// Flush blocks until every queued background write has completed.
func (o *Orchestrator) Flush() {
	o.writer.Flush()
}

// Close drains the background writer and stops it. Later heavy writes run synchronously.
func (o *Orchestrator) Close() {
	o.writer.Close()
}

// Save synchronizes record and persists it under its primary and metadata keys.
func (o *Orchestrator) Save(ctx context.Context, record domain.ActivityRecord, origin domain.Origin, opts SaveOptions) bool {
	o.mu.Lock()
	stored, err := o.saveLocked(ctx, record, origin, opts)
	o.mu.Unlock()

	observability.RecordSave(string(origin), err == nil, o.now())
	if err != nil {
		o.log.Error("persistence: save failed", "activity_id", record.ID, "origin", string(origin), "error", err)
		return false
	}
	o.emit(events.ActivitySaved, stored)
	return true
}

func (o *Orchestrator) saveLocked(ctx context.Context, record domain.ActivityRecord, origin domain.Origin, opts SaveOptions) (domain.StoredRecord, error) {
	if err := checkID(record.ID); err != nil {
		return domain.StoredRecord{}, err
	}
	if origin == "" {
		origin = domain.OriginLocal
	}
	now := o.now().UTC()
	createdAt := now
	if existing, err := o.readMetadata(ctx, record.ID); err == nil && !existing.CreatedAt.IsZero() {
		createdAt = existing.CreatedAt
	}

	record = o.sync.Synchronize(record.ToRaw())
	stored := domain.StoredRecord{
		Record: record,
		Metadata: domain.StorageMetadata{
			Version:         integrity.CurrentVersion,
			CreatedAt:       createdAt,
			UpdatedAt:       now,
			Origin:          origin,
			Checksum:        integrity.Checksum(record),
			PipelineVersion: opts.PipelineVersion,
			SessionID:       opts.SessionID,
			Model:           opts.Model,
			DurationMS:      opts.DurationMS,
		},
		ValidationStatus: domain.StatusValid,
	}
	if err := o.writeJSON(ctx, PrimaryKey(record.ID), stored); err != nil {
		return stored, err
	}
	if err := o.writeJSON(ctx, MetadataKey(record.ID), stored.Metadata); err != nil {
		return stored, err
	}
	return stored, nil
}

// Update merges partial into the stored record and saves it as a local edit.
func (o *Orchestrator) Update(ctx context.Context, id string, partial map[string]any) bool {
	o.mu.Lock()
	stored, purged, err := o.loadLocked(ctx, id)
	if err == nil {
		merged := o.sync.Merge(stored.Record, partial)
		merged.ID = id
		var saved domain.StoredRecord
		saved, err = o.saveLocked(ctx, merged, domain.OriginLocal, SaveOptions{})
		stored = &saved
	}
	o.mu.Unlock()

	o.notifyPurge(purged)
	if err != nil {
		o.log.Warn("persistence: update failed", "activity_id", id, "error", err)
		return false
	}
	observability.RecordSave(string(domain.OriginLocal), true, o.now())
	o.emit(events.ActivityUpdated, *stored)
	return true
}

// Load returns the re-synchronized record for id, or nil when it is absent or
// its stored copy fails validation. Invalid copies are purged.
func (o *Orchestrator) Load(ctx context.Context, id string) *domain.ActivityRecord {
	stored := o.LoadStored(ctx, id)
	if stored == nil {
		return nil
	}
	return &stored.Record
}

// LoadStored is Load with the metadata envelope.
func (o *Orchestrator) LoadStored(ctx context.Context, id string) *domain.StoredRecord {
	o.mu.Lock()
	stored, purged, err := o.loadLocked(ctx, id)
	o.mu.Unlock()

	o.notifyPurge(purged)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.log.Warn("persistence: load failed", "activity_id", id, "error", err)
		}
		return nil
	}
	return stored
}

// loadLocked reads and validates the primary copy. purged is the id of a copy
// removed for failing validation, so callers can notify once unlocked.
func (o *Orchestrator) loadLocked(ctx context.Context, id string) (*domain.StoredRecord, string, error) {
	if id == "" {
		return nil, "", domain.ErrMissingID
	}
	data, err := o.medium.Get(ctx, PrimaryKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", PrimaryKey(id), err)
	}

	stored, reason := o.decodeStored(data)
	if reason != "" {
		o.purgeLocked(ctx, id, reason)
		return nil, id, fmt.Errorf("%w: %s", domain.ErrIntegrity, reason)
	}
	if stored.Record.ID != id {
		o.purgeLocked(ctx, id, "id_mismatch")
		return nil, id, fmt.Errorf("%w: stored id %q", domain.ErrIntegrity, stored.Record.ID)
	}
	stored.Record = o.sync.Synchronize(stored.Record.ToRaw())
	return stored, "", nil
}

// decodeStored parses and validates a primary value; a non-empty reason means
// the copy must be purged.
func (o *Orchestrator) decodeStored(data []byte) (*domain.StoredRecord, string) {
	var stored domain.StoredRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, "unparseable"
	}
	result := o.validator.IsValid(stored)
	if !result.Valid {
		return nil, result.Reason
	}
	stored.ValidationStatus = domain.StatusValid
	if result.NeedsMigration {
		stored.ValidationStatus = domain.StatusNeedsMigration
	}
	return &stored, ""
}

func (o *Orchestrator) purgeLocked(ctx context.Context, id, reason string) {
	observability.RecordPurge(reason)
	o.log.Warn("persistence: purging invalid stored copy", "activity_id", id, "reason", reason)
	for _, key := range []string{PrimaryKey(id), MetadataKey(id)} {
		if err := o.medium.Remove(ctx, key); err != nil {
			o.log.Error("persistence: purge failed", "key", key, "error", err)
		}
	}
}

func (o *Orchestrator) notifyPurge(id string) {
	if id == "" {
		return
	}
	o.bus.Emit(events.ActivityRemoved, events.Event{ActivityID: id, Timestamp: o.now().UTC()})
}

// Exists reports whether id has a metadata envelope.
func (o *Orchestrator) Exists(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	_, err := o.medium.Get(ctx, MetadataKey(id))
	if err != nil && !errors.Is(err, ErrKeyNotFound) {
		o.log.Warn("persistence: exists check failed", "activity_id", id, "error", err)
	}
	return err == nil
}

// Remove deletes every key of id under any convention and its index entry.
// Background writes for id accepted before the call are dropped.
func (o *Orchestrator) Remove(ctx context.Context, id string) bool {
	if err := checkID(id); err != nil {
		o.log.Warn("persistence: remove rejected", "activity_id", id, "error", err)
		return false
	}
	o.mu.Lock()
	o.tombstoneLocked(id)
	err := o.removeLocked(ctx, id, func(key string) bool { return belongsTo(key, id) })
	o.mu.Unlock()

	if err != nil {
		o.log.Error("persistence: remove failed", "activity_id", id, "error", err)
		return false
	}
	o.bus.Emit(events.ActivityRemoved, events.Event{ActivityID: id, Timestamp: o.now().UTC()})
	return true
}

func (o *Orchestrator) removeLocked(ctx context.Context, id string, match func(string) bool) error {
	keys, err := o.medium.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	var errs []error
	for _, key := range keys {
		if !match(key) {
			continue
		}
		if err := o.medium.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	if err := o.updateIndex(ctx, func(index map[string]domain.ConstructedEntry) bool {
		if _, ok := index[id]; !ok {
			return false
		}
		delete(index, id)
		return true
	}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) readMetadata(ctx context.Context, id string) (domain.StorageMetadata, error) {
	var meta domain.StorageMetadata
	data, err := o.medium.Get(ctx, MetadataKey(id))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func (o *Orchestrator) writeJSON(ctx context.Context, key string, v any, protect ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return o.write(ctx, key, data, protect...)
}

func (o *Orchestrator) emit(name events.Name, stored domain.StoredRecord) {
	record := stored.Record.Clone()
	o.bus.Emit(name, events.Event{
		ActivityID: record.ID,
		Type:       record.Type,
		Origin:     stored.Metadata.Origin,
		Record:     &record,
		Timestamp:  stored.Metadata.UpdatedAt,
	})
}
