package integrity

import (
	"strings"

	"golang.org/x/mod/semver"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/logger"
)

// CurrentVersion is the schema version written into new metadata.
const CurrentVersion = "1.0.0"

// Rejection reasons, also used as metric labels.
const (
	ReasonMissingID          = "missing_id"
	ReasonMissingChecksum    = "missing_checksum"
	ReasonChecksumMismatch   = "checksum_mismatch"
	ReasonInvalidVersion     = "invalid_version"
	ReasonIncompatibleSchema = "incompatible_version"
)

// Result describes the outcome of validating one stored copy.
type Result struct {
	Valid          bool
	NeedsMigration bool
	Reason         string
}

// Validator checks stored copies against the current schema version.
type Validator struct {
	log     *logger.Logger
	current string
}

// NewValidator constructs a Validator for CurrentVersion.
func NewValidator(log *logger.Logger) *Validator {
	return &Validator{log: logger.OrNop(log), current: CurrentVersion}
}

// IsValid rejects copies with no identity, a missing or mismatched checksum, or a
// schema version from another major line.
func (v *Validator) IsValid(stored domain.StoredRecord) Result {
	if strings.TrimSpace(stored.Record.ID) == "" {
		return Result{Reason: ReasonMissingID}
	}
	if stored.Metadata.Checksum == "" {
		return Result{Reason: ReasonMissingChecksum}
	}

	version := canonical(stored.Metadata.Version)
	if !semver.IsValid(version) {
		return Result{Reason: ReasonInvalidVersion}
	}
	current := canonical(v.current)
	if semver.Major(version) != semver.Major(current) {
		return Result{Reason: ReasonIncompatibleSchema}
	}

	if Checksum(stored.Record) != stored.Metadata.Checksum {
		return Result{Reason: ReasonChecksumMismatch}
	}

	if semver.Compare(version, current) != 0 {
		v.log.Info("integrity: stored copy needs migration",
			"activity_id", stored.Record.ID,
			"version", stored.Metadata.Version,
			"current", v.current,
		)
		return Result{Valid: true, NeedsMigration: true}
	}
	return Result{Valid: true}
}

func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return version
}
