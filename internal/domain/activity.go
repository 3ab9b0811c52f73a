// Package domain defines the canonical activity record and its storage envelope.
package domain

// ActivityRecord is the canonical, resolved representation of one educational activity.
type ActivityRecord struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload"`
	CustomFields  map[string]any `json:"customFields"`
	Subject       string         `json:"subject"`
	SchoolYear    string         `json:"schoolYear"`
	Theme         string         `json:"theme"`
	Objectives    string         `json:"objectives"`
	Level         string         `json:"level"`
	EstimatedTime int            `json:"estimatedTime"`
}

// ToRaw returns the record in the loosely-typed shape producers hand to the synchronizer.
func (r ActivityRecord) ToRaw() map[string]any {
	return map[string]any{
		"id":            r.ID,
		"title":         r.Title,
		"description":   r.Description,
		"type":          r.Type,
		"payload":       CloneMap(r.Payload),
		"customFields":  CloneMap(r.CustomFields),
		"subject":       r.Subject,
		"schoolYear":    r.SchoolYear,
		"theme":         r.Theme,
		"objectives":    r.Objectives,
		"level":         r.Level,
		"estimatedTime": r.EstimatedTime,
	}
}

// Clone returns a deep copy so callers never share payload maps.
func (r ActivityRecord) Clone() ActivityRecord {
	out := r
	out.Payload = CloneMap(r.Payload)
	out.CustomFields = CloneMap(r.CustomFields)
	return out
}

// CloneMap deep-copies nested maps and slices. A nil input yields nil.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices inside v.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = CloneValue(elem)
		}
		return out
	default:
		return v
	}
}
