package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no copy of an activity exists under any key convention.
	ErrNotFound = errors.New("activity not found")
	// ErrIntegrity marks a stored copy whose checksum, version or shape is invalid.
	ErrIntegrity = errors.New("stored activity failed integrity validation")
	// ErrMissingID is returned when a record without identity reaches the store.
	ErrMissingID = errors.New("activity id is required")
	// ErrReservedID is returned for ids whose keys would alias another activity's keys.
	ErrReservedID = errors.New("activity id uses a reserved prefix")
)

// Origin records how a record entered the store.
type Origin string

const (
	OriginLocal       Origin = "local"
	OriginShared      Origin = "shared"
	OriginConstructed Origin = "constructed"
	OriginGenerated   Origin = "generated"
	OriginImported    Origin = "imported"
)

// ParseOrigin converts a string into a known Origin.
func ParseOrigin(value string) (Origin, error) {
	switch o := Origin(strings.ToLower(strings.TrimSpace(value))); o {
	case OriginLocal, OriginShared, OriginConstructed, OriginGenerated, OriginImported:
		return o, nil
	default:
		return "", fmt.Errorf("unknown origin %q", value)
	}
}

// ValidationStatus is the outcome of the last integrity check on a stored copy.
type ValidationStatus string

const (
	StatusValid          ValidationStatus = "valid"
	StatusNeedsMigration ValidationStatus = "needs-migration"
)

// StorageMetadata is the envelope written next to every stored record.
type StorageMetadata struct {
	Version         string    `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Origin          Origin    `json:"origin"`
	Checksum        string    `json:"checksum"`
	PipelineVersion string    `json:"pipelineVersion,omitempty"`
	SessionID       string    `json:"sessionId,omitempty"`
	Model           string    `json:"model,omitempty"`
	DurationMS      int64     `json:"durationMs,omitempty"`
}

// StoredRecord is the value held under the primary record key.
type StoredRecord struct {
	Record           ActivityRecord   `json:"record"`
	Metadata         StorageMetadata  `json:"metadata"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
}

// SearchFilters narrows a full scan of stored records. Zero values disable a filter.
type SearchFilters struct {
	Type   string
	Origin Origin
	From   time.Time
	To     time.Time
	Limit  int
	// Match, when set, must also accept the record.
	Match func(StoredRecord) bool
}

// ConstructedEntry is one value of the global constructed-activity index.
type ConstructedEntry struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Cursor models the search pagination token.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}
