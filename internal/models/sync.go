package models

import (
	"fmt"
	"time"
)

// EntityType names one entity collection.
type EntityType string

// Entity types known to the sync layer.
const (
	EntityWorlds       EntityType = "worlds"
	EntityCharacters   EntityType = "characters"
	EntityLocations    EntityType = "locations"
	EntityFactions     EntityType = "factions"
	EntityItems        EntityType = "items"
	EntityLoreNotes    EntityType = "loreNotes"
	EntityMagicSystems EntityType = "magicSystems"
	EntityMythologies  EntityType = "mythologies"
	EntityTimelines    EntityType = "timelines"
	EntitySettings     EntityType = "settings"
)

// SyncedEntityTypes lists the collections visited by a full sync pass, in order.
var SyncedEntityTypes = []EntityType{
	EntityWorlds,
	EntityCharacters,
	EntityLocations,
	EntityFactions,
	EntityItems,
	EntityLoreNotes,
	EntityMagicSystems,
	EntityMythologies,
	EntityTimelines,
}

// WorldScoped reports whether entities of this type are partitioned by world id.
func (t EntityType) WorldScoped() bool {
	switch t {
	case EntityWorlds, EntitySettings:
		return false
	}
	return true
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	if t == EntitySettings {
		return true
	}
	for _, known := range SyncedEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// OperationType is the kind of a queued local mutation.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Valid reports whether o is a known operation type.
func (o OperationType) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// PendingOperation is one local mutation waiting to reach the remote store.
type PendingOperation struct {
	Timestamp  time.Time     `json:"timestamp"`
	Data       Entity        `json:"data"`
	ID         string        `json:"id"` // "<entityType>_<id>_<unixMillis>"
	Type       OperationType `json:"type"`
	EntityType EntityType    `json:"entityType"`
}

// NewPendingOperation builds a queued operation keyed by entity type, id and time.
func NewPendingOperation(opType OperationType, entityType EntityType, data Entity, now time.Time) *PendingOperation {
	return &PendingOperation{
		ID:         fmt.Sprintf("%s_%s_%d", entityType, data.ID(), now.UnixMilli()),
		Type:       opType,
		EntityType: entityType,
		Data:       data.Clone(),
		Timestamp:  now,
	}
}

// SyncStatus is the process-wide sync state published to listeners.
type SyncStatus struct {
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
	PendingChanges int        `json:"pendingChanges"`
	ConflictsCount int        `json:"conflictsCount"`
	IsOnline       bool       `json:"isOnline"`
	IsSyncing      bool       `json:"isSyncing"`
	SyncEnabled    bool       `json:"syncEnabled"`
}

// SyncSettings are the persisted user preferences for synchronization.
type SyncSettings struct {
	ConflictResolution ConflictPolicy `json:"conflictResolution"`
	SyncInterval       int            `json:"syncInterval"`      // minutes
	MaxOfflineChanges  int            `json:"maxOfflineChanges"` // 0 = unlimited
	Enabled            bool           `json:"enabled"`
	AutoSync           bool           `json:"autoSync"`
	CompressSync       bool           `json:"compressSync"`
}

// DefaultSyncSettings returns the settings used before the user changes anything.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Enabled:            false,
		AutoSync:           true,
		SyncInterval:       5,
		ConflictResolution: PolicyAutoMerge,
		MaxOfflineChanges:  1000,
		CompressSync:       false,
	}
}

// Validate checks the settings for values the sync manager cannot use.
func (s SyncSettings) Validate() error {
	if s.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %d", s.SyncInterval)
	}
	if s.MaxOfflineChanges < 0 {
		return fmt.Errorf("max offline changes cannot be negative, got %d", s.MaxOfflineChanges)
	}
	if !s.ConflictResolution.Valid() {
		return fmt.Errorf("unknown conflict resolution policy: %q", s.ConflictResolution)
	}
	return nil
}
