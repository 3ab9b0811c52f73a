package persistence

import (
	"context"
	"strings"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/observability"
)

// UniqueCodeField is the payload field share links carry an activity's code in.
const UniqueCodeField = "codigoUnico"

// FindByCode looks an activity up by the code a share link carries. An exact id
// wins over a matching unique code, which wins over an id containing code. Ties
// go to the most recently updated record.
func (o *Orchestrator) FindByCode(ctx context.Context, code string) *domain.ActivityRecord {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	var byCode, bySubstring *domain.ActivityRecord
	for _, stored := range o.Search(ctx, domain.SearchFilters{}) {
		record := stored.Record
		switch {
		case record.ID == code:
			return &record
		case byCode == nil && uniqueCode(record) == code:
			byCode = &record
		case bySubstring == nil && strings.Contains(record.ID, code):
			bySubstring = &record
		}
	}
	if byCode != nil {
		return byCode
	}
	if bySubstring == nil {
		o.log.Debug("persistence: no activity for code", "code", code)
	}
	return bySubstring
}

func uniqueCode(record domain.ActivityRecord) string {
	for _, fields := range []map[string]any{record.Payload, record.CustomFields} {
		if v, ok := fields[UniqueCodeField].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ResyncShared reloads a shared activity by id, or by code when the id is not
// stored, re-synchronizes it and saves it back with the shared origin. It
// returns the saved record or nil.
func (o *Orchestrator) ResyncShared(ctx context.Context, id, code string) *domain.ActivityRecord {
	var found *domain.ActivityRecord
	if checkID(id) == nil {
		found = o.Load(ctx, id)
	}
	if found == nil {
		found = o.FindByCode(ctx, code)
	}
	if found == nil {
		o.log.Debug("persistence: shared activity not found", "activity_id", id, "code", code)
		return nil
	}

	record := o.sync.Synchronize(found.ToRaw())
	o.mu.Lock()
	stored, err := o.saveLocked(ctx, record, domain.OriginShared, SaveOptions{})
	o.mu.Unlock()

	observability.RecordSave(string(domain.OriginShared), err == nil, o.now())
	if err != nil {
		o.log.Error("persistence: shared resync failed", "activity_id", record.ID, "error", err)
		return nil
	}
	o.emit(events.ActivitySaved, stored)
	saved := stored.Record.Clone()
	return &saved
}
