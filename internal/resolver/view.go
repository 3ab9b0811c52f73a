package resolver

import (
	"encoding/json"
	"strconv"
	"strings"

	"example.com/activitysync/internal/domain"
)

// ContainerKeys are the nested objects producers use for category-specific content,
// consolidated in this order (later containers win per key).
var ContainerKeys = []string{"dados", "data", "content", "payload"}

// View is the classified shape of one raw producer object: its top-level keys, the
// union of its content containers and its user-entered custom fields.
type View struct {
	Top     map[string]any
	Payload map[string]any
	Custom  map[string]any
}

// NewView classifies raw. Anything that is not an object yields an empty view.
func NewView(raw any) View {
	top := asObject(raw)
	v := View{
		Top:     top,
		Payload: map[string]any{},
		Custom:  map[string]any{},
	}
	for _, key := range ContainerKeys {
		for k, val := range asObject(top[key]) {
			v.Payload[k] = val
		}
	}
	for k, val := range asObject(top["customFields"]) {
		v.Custom[k] = val
	}
	return v
}

func asObject(raw any) map[string]any {
	switch t := raw.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any{}
		}
		return t
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = v
		}
		return out
	case domain.ActivityRecord:
		return t.ToRaw()
	case *domain.ActivityRecord:
		if t == nil {
			return map[string]any{}
		}
		return t.ToRaw()
	case json.RawMessage:
		return decodeObject(t)
	case []byte:
		return decodeObject(t)
	default:
		return map[string]any{}
	}
}

func decodeObject(data []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// scalarString renders strings and numbers as trimmed text; other shapes are absent.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// leadingInt mimics lenient integer parsing of producer input such as "45 min" or 45.0.
func leadingInt(v any) (string, bool) {
	s, ok := scalarString(v)
	if !ok {
		return "", false
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return "", false
	}
	return strconv.Itoa(n), true
}
