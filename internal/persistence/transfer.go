package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/integrity"
	"example.com/activitysync/internal/observability"
)

// Snapshot is the whole-store export format.
type Snapshot struct {
	Version     string                             `json:"version"`
	ExportedAt  time.Time                          `json:"exportedAt"`
	Records     []domain.StoredRecord              `json:"records"`
	Constructed map[string]domain.ConstructedEntry `json:"constructed"`
}

// ImportError explains why one snapshot entry was not imported.
type ImportError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ImportResult summarises ImportAll.
type ImportResult struct {
	Records     int           `json:"records"`
	Constructed int           `json:"constructed"`
	Errors      []ImportError `json:"errors,omitempty"`
}

// ExportAll serializes every valid record and the constructed index.
func (o *Orchestrator) ExportAll(ctx context.Context) ([]byte, bool) {
	snapshot := Snapshot{
		Version:     integrity.CurrentVersion,
		ExportedAt:  o.now().UTC(),
		Records:     o.Search(ctx, domain.SearchFilters{}),
		Constructed: o.ListConstructed(ctx),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		o.log.Error("persistence: export encode failed", "error", err)
		return nil, false
	}
	o.log.Info("persistence: exported", "records", len(snapshot.Records), "constructed", len(snapshot.Constructed))
	return data, true
}

// ImportAll loads a snapshot entry by entry. Records that fail validation are
// reported and skipped; the rest are saved with origin imported.
func (o *Orchestrator) ImportAll(ctx context.Context, data []byte) ImportResult {
	var result ImportResult
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		result.Errors = append(result.Errors, ImportError{Reason: "snapshot unparseable: " + err.Error()})
		return result
	}

	for _, stored := range snapshot.Records {
		id := strings.TrimSpace(stored.Record.ID)
		if id == "" {
			result.Errors = append(result.Errors, ImportError{Reason: "record without id"})
			continue
		}
		if check := o.validator.IsValid(stored); !check.Valid {
			result.Errors = append(result.Errors, ImportError{ID: id, Reason: check.Reason})
			continue
		}
		record := o.sync.Synchronize(stored.Record.ToRaw())
		opts := SaveOptions{
			PipelineVersion: stored.Metadata.PipelineVersion,
			SessionID:       stored.Metadata.SessionID,
			Model:           stored.Metadata.Model,
			DurationMS:      stored.Metadata.DurationMS,
		}
		o.mu.Lock()
		saved, err := o.saveLocked(ctx, record, domain.OriginImported, opts)
		o.mu.Unlock()
		observability.RecordSave(string(domain.OriginImported), err == nil, o.now())
		if err != nil {
			result.Errors = append(result.Errors, ImportError{ID: id, Reason: err.Error()})
			continue
		}
		o.emit(events.ActivitySaved, saved)
		result.Records++
	}

	ids := make([]string, 0, len(snapshot.Constructed))
	for id := range snapshot.Constructed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := snapshot.Constructed[id]
		if id == "" || entry.Data == nil {
			result.Errors = append(result.Errors, ImportError{ID: id, Reason: "constructed entry without content"})
			continue
		}
		if err := checkID(id); err != nil {
			result.Errors = append(result.Errors, ImportError{ID: id, Reason: err.Error()})
			continue
		}
		at := entry.UpdatedAt
		if at.IsZero() {
			at = o.now().UTC()
		}
		job := constructedJob{id: id, activityType: NormalizeType(entry.Type), content: domain.CloneMap(entry.Data), generatedAt: at}
		if !o.writeConstructed(ctx, job) {
			result.Errors = append(result.Errors, ImportError{ID: id, Reason: "constructed write failed"})
			continue
		}
		result.Constructed++
	}

	o.log.Info("persistence: import finished",
		"records", result.Records,
		"constructed", result.Constructed,
		"errors", len(result.Errors),
	)
	return result
}
