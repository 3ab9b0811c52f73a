package persistence

import (
	"strings"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/resolver"
)

const (
	primaryPrefix     = "stored_activity_"
	metadataPrefix    = "activity_metadata_"
	constructedPrefix = "constructed_"
	activityPrefix    = "activity_"
	generatedPrefix   = "generated_content_"

	// IndexKey holds the id -> ConstructedEntry map of every constructed activity.
	IndexKey = "constructedActivities"
)

// PrimaryKey is the key of the full stored record.
func PrimaryKey(id string) string { return primaryPrefix + id }

// MetadataKey is the key of the metadata envelope.
func MetadataKey(id string) string { return metadataPrefix + id }

// ConstructedKey is the type-qualified constructed-content key.
func ConstructedKey(activityType, id string) string {
	return constructedPrefix + activityType + "_" + id
}

// ActivityKey is the unqualified constructed-content key.
func ActivityKey(id string) string { return activityPrefix + id }

// GeneratedKey holds the raw generated content.
func GeneratedKey(id string) string { return generatedPrefix + id }

// reservedIDPrefix would make ActivityKey(reservedIDPrefix+x) equal MetadataKey(x).
const reservedIDPrefix = "metadata_"

// checkID rejects ids that cannot be keyed without colliding with another activity.
func checkID(id string) error {
	if id == "" {
		return domain.ErrMissingID
	}
	if strings.HasPrefix(id, reservedIDPrefix) {
		return domain.ErrReservedID
	}
	return nil
}

// NormalizeType maps an activity type onto the slug used in constructed keys.
// '_' separates the type from the id there, so it becomes '-'.
func NormalizeType(activityType string) string {
	slug := strings.ReplaceAll(strings.TrimSpace(activityType), "_", "-")
	if slug == "" {
		return resolver.GenericType
	}
	return slug
}

// redundancySet lists every key a constructed write touches, the index aside.
func redundancySet(activityType, id string) []string {
	return []string{ConstructedKey(activityType, id), ActivityKey(id), GeneratedKey(id)}
}

// owned reports whether key follows one of the store's conventions.
func owned(key string) bool {
	if key == IndexKey {
		return true
	}
	for _, p := range []string{primaryPrefix, metadataPrefix, constructedPrefix, activityPrefix, generatedPrefix} {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// belongsTo reports whether key is one of id's keys under any convention.
func belongsTo(key, id string) bool {
	switch key {
	case PrimaryKey(id), MetadataKey(id), ActivityKey(id), GeneratedKey(id):
		return true
	}
	activityType, ok := constructedType(key, id)
	return ok && activityType != ""
}

// constructedType extracts T from constructed_T_id. Stored type slugs pass
// through NormalizeType and never contain '_'.
func constructedType(key, id string) (string, bool) {
	if !strings.HasPrefix(key, constructedPrefix) || !strings.HasSuffix(key, "_"+id) {
		return "", false
	}
	middle := key[len(constructedPrefix) : len(key)-len(id)-1]
	if middle == "" || strings.Contains(middle, "_") {
		return "", false
	}
	return middle, true
}

// evictable reports whether emergency cleanup may drop key. Records and their
// metadata are never evicted.
func evictable(key string) bool {
	switch {
	case strings.HasPrefix(key, metadataPrefix), strings.HasPrefix(key, primaryPrefix), key == IndexKey:
		return false
	}
	return strings.HasPrefix(key, constructedPrefix) ||
		strings.HasPrefix(key, activityPrefix) ||
		strings.HasPrefix(key, generatedPrefix)
}
