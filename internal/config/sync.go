package config

import (
	"fmt"
	"strings"
)

// SyncSettings is the three-flag permission policy for external sync.
// The zero value denies everything.
type SyncSettings struct {
	// CanUpsertInternalItems allows creating and updating items whose source of truth is local.
	CanUpsertInternalItems bool `json:"canUpsertInternalItems" yaml:"canUpsertInternalItems"`
	// CanUpdateExternalItems allows pushing full-content updates to items owned by the platform.
	CanUpdateExternalItems bool `json:"canUpdateExternalItems" yaml:"canUpdateExternalItems"`
	// CanUpdateStatus allows updating the status field regardless of origin.
	CanUpdateStatus bool `json:"canUpdateStatus" yaml:"canUpdateStatus"`
}

// DefaultSyncSettings returns the fail-closed policy.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{}
}

// Permission flag keys as they appear under sync.settings.
const (
	KeyCanUpsertInternalItems = "canUpsertInternalItems"
	KeyCanUpdateExternalItems = "canUpdateExternalItems"
	KeyCanUpdateStatus        = "canUpdateStatus"
	KeySyncDirection          = "syncDirection"
)

// Legacy sync direction values (sync.settings.syncDirection).
const (
	DirectionBidirectional = "bidirectional"
	DirectionExport        = "export"
	DirectionImport        = "import"
	DirectionToExternal    = "to-external"
	DirectionFromExternal  = "from-external"
	DirectionNone          = "none"
)

// MigrateSyncDirection translates the legacy single-enum syncDirection into the three
// permission flags. Matching is exact and case-sensitive; anything unrecognised denies all.
func MigrateSyncDirection(direction string) SyncSettings {
	switch direction {
	case DirectionBidirectional:
		return SyncSettings{CanUpsertInternalItems: true, CanUpdateExternalItems: true, CanUpdateStatus: true}
	case DirectionExport, DirectionToExternal:
		return SyncSettings{CanUpsertInternalItems: true}
	case DirectionImport, DirectionFromExternal:
		return SyncSettings{CanUpdateStatus: true}
	default:
		return DefaultSyncSettings()
	}
}

// ValidateSyncSettings checks a raw sync.settings object for the three boolean flags.
func ValidateSyncSettings(raw map[string]interface{}) error {
	if raw == nil {
		return fmt.Errorf("sync settings are missing")
	}
	var problems []string
	for _, key := range []string{KeyCanUpsertInternalItems, KeyCanUpdateExternalItems, KeyCanUpdateStatus} {
		v, ok := lookupFold(raw, key)
		if !ok {
			problems = append(problems, key+" is missing")
			continue
		}
		if _, isBool := v.(bool); !isBool {
			problems = append(problems, fmt.Sprintf("%s must be a boolean (got %T)", key, v))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid sync settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConflictResolution specifies how to handle status conflicts during sync.
type ConflictResolution string

const (
	// ConflictResolutionTimestamp keeps the most recently modified side (last write wins).
	ConflictResolutionTimestamp ConflictResolution = "timestamp"
	// ConflictResolutionLocal always keeps the local status.
	ConflictResolutionLocal ConflictResolution = "local"
	// ConflictResolutionExternal always keeps the platform's status.
	ConflictResolutionExternal ConflictResolution = "external"
)

// ParseConflictResolution normalizes a configured strategy. Returns false for unknown values.
func ParseConflictResolution(value string) (ConflictResolution, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "timestamp", "last-write-wins", "newest":
		return ConflictResolutionTimestamp, true
	case "local", "local-wins", "ours":
		return ConflictResolutionLocal, true
	case "external", "external-wins", "theirs":
		return ConflictResolutionExternal, true
	}
	return ConflictResolutionTimestamp, false
}

// lookupFold finds key in m ignoring case; viper lowercases keys on read.
func lookupFold(m map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
