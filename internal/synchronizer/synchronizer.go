// Package synchronizer turns raw producer objects into canonical activity records.
package synchronizer

import (
	"fmt"
	"strconv"
	"strings"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/resolver"
)

// Validation is the outcome of Validate.
type Validation struct {
	Valid  bool
	Errors []string
}

// Synchronizer builds ActivityRecords. It holds no state beyond its resolver.
type Synchronizer struct {
	resolver *resolver.Resolver
	log      *logger.Logger
}

// New constructs a Synchronizer. A nil resolver uses the built-in alias tables.
func New(r *resolver.Resolver, log *logger.Logger) *Synchronizer {
	log = logger.OrNop(log)
	if r == nil {
		r = resolver.New(resolver.WithLogger(log))
	}
	return &Synchronizer{resolver: r, log: log}
}

// Synchronize resolves every category of raw and consolidates its payload. The
// result depends only on raw, and synchronizing a synchronized record's raw form
// returns the same record.
func (s *Synchronizer) Synchronize(raw any) (record domain.ActivityRecord) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("synchronizer: synchronize failed", "panic", fmt.Sprint(rec))
			record = s.fromFields(IDOf(raw), s.resolver.ResolveAll(nil))
			record.Payload = map[string]any{}
			record.CustomFields = map[string]any{}
		}
	}()

	view := resolver.NewView(raw)
	record = s.fromFields(IDOf(view.Top), s.resolver.ResolveAll(view.Top))
	record.Payload = consolidate(view)
	record.CustomFields = domain.CloneMap(view.Custom)
	return record
}

func (s *Synchronizer) fromFields(id string, f resolver.Fields) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:            id,
		Title:         f.Title,
		Description:   f.Description,
		Type:          f.Type,
		Subject:       f.Discipline,
		SchoolYear:    f.SchoolYear,
		Theme:         f.Theme,
		Objectives:    f.Objectives,
		Level:         f.Level,
		EstimatedTime: f.EstimatedTime,
	}
}

// consolidate unions the content containers in order, then adds every
// top-level key no category claims.
func consolidate(view resolver.View) map[string]any {
	payload := domain.CloneMap(view.Payload)
	for k, v := range view.Top {
		if reserved(k) {
			continue
		}
		payload[k] = domain.CloneValue(v)
	}
	return payload
}

func reserved(key string) bool {
	if key == "id" || key == "customFields" || resolver.IsAlias(key) {
		return true
	}
	for _, c := range resolver.ContainerKeys {
		if key == c {
			return true
		}
	}
	return false
}

// IDOf extracts the id of a raw record. String ids are trimmed and numeric ids
// are formatted; anything else yields "".
func IDOf(raw any) string {
	top, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	switch v := top["id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// Validate reports whether record is fit to persist.
func (s *Synchronizer) Validate(record domain.ActivityRecord) Validation {
	var errs []string
	if strings.TrimSpace(record.ID) == "" {
		errs = append(errs, "id is required")
	}
	desc := strings.TrimSpace(record.Description)
	switch {
	case desc == resolver.DescriptionSentinel:
		errs = append(errs, "description was not resolved")
	case len([]rune(desc)) < 10:
		errs = append(errs, "description must be at least 10 characters")
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// Merge applies partial over existing and re-synchronizes. Scalars are
// right-biased; payload and customFields are unioned recursively; partial
// containers fold into the payload.
func (s *Synchronizer) Merge(existing domain.ActivityRecord, partial map[string]any) domain.ActivityRecord {
	base := existing.ToRaw()
	payload, _ := base["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	custom, _ := base["customFields"].(map[string]any)
	if custom == nil {
		custom = map[string]any{}
	}

	for k, v := range partial {
		switch {
		case k == "id":
			continue
		case k == "customFields":
			if m, ok := v.(map[string]any); ok {
				union(custom, m)
			}
		case isContainer(k):
			if m, ok := v.(map[string]any); ok {
				union(payload, m)
			}
		default:
			if c, ok := resolver.CategoryOf(k); ok {
				for _, alias := range resolver.TopAliases(c) {
					delete(base, alias)
				}
			}
			base[k] = domain.CloneValue(v)
		}
	}
	base["payload"] = payload
	base["customFields"] = custom
	return s.Synchronize(base)
}

func isContainer(key string) bool {
	for _, c := range resolver.ContainerKeys {
		if key == c {
			return true
		}
	}
	return false
}

func union(dst, src map[string]any) {
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				union(existing, nested)
				continue
			}
			dst[k] = domain.CloneMap(nested)
			continue
		}
		dst[k] = domain.CloneValue(v)
	}
}
