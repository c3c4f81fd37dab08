package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known entity field names.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldWorldID   = "worldId"

	// SyncField is the namespace holding SyncMetadata in a serialized Document.
	SyncField = "_sync"
)

// Entity is a single domain record (character, location, world...).
// It always carries an "id" and the createdAt/updatedAt timestamps.
type Entity map[string]any

// ID returns the entity identifier or an empty string.
func (e Entity) ID() string {
	id, _ := e[FieldID].(string)
	return id
}

// WorldID returns the world partition the entity belongs to, if any.
func (e Entity) WorldID() string {
	id, _ := e[FieldWorldID].(string)
	return id
}

// UpdatedAt returns the entity's own modification time.
// Falls back to createdAt, and to the zero time when neither parses.
func (e Entity) UpdatedAt() time.Time {
	for _, field := range []string{FieldUpdatedAt, FieldCreatedAt} {
		if ts, ok := ParseTimestamp(e[field]); ok {
			return ts
		}
	}
	return time.Time{}
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = CloneValue(v)
	}
	return out
}

// Normalize returns a copy of the entity with every value converted to its
// JSON representation (numbers become float64, slices become []any, ...).
// Values loaded from storage are always normalized; values built in code
// need this before they can be compared field by field.
func (e Entity) Normalize() (Entity, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var out Entity
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return out, nil
}

// CloneValue deep-copies maps and slices produced by encoding/json.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case Entity:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}

// timestampLayouts are the string formats accepted as timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp reports whether v is a time.Time or a string in one of the
// supported timestamp layouts. Numbers are never treated as timestamps.
func ParseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// SyncMetadata is attached to every entity handled by the sync layer.
type SyncMetadata struct {
	LastModified     time.Time `json:"lastModified"`               // LastModified время записи, назначается сервером
	ModifiedBy       string    `json:"modifiedBy"`                 // ModifiedBy user id, "local" или "anonymous"
	DeviceID         string    `json:"deviceId"`                   // DeviceID устройство/сессия, сделавшая запись
	ChangeVector     string    `json:"changeVector"`               // ChangeVector уникальный отпечаток конкретной записи
	Version          int64     `json:"version"`                    // Version растёт ровно на 1 при каждом удалённом обновлении
	ConflictResolved bool      `json:"conflictResolved,omitempty"` // ConflictResolved выставляется после разрешения конфликта
}

// Document is an entity wrapped with its sync metadata.
// On the wire it is a flat JSON object with the metadata under "_sync".
type Document struct {
	Entity Entity
	Sync   SyncMetadata
}

// ID returns the wrapped entity identifier.
func (d *Document) ID() string {
	return d.Entity.ID()
}

// Clone creates a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		Entity: d.Entity.Clone(),
		Sync:   d.Sync,
	}
}

// MarshalJSON flattens the entity and stores the metadata under "_sync".
func (d Document) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Entity)+1)
	for k, v := range d.Entity {
		if k == SyncField {
			continue
		}
		flat[k] = v
	}
	flat[SyncField] = d.Sync
	return json.Marshal(flat)
}

// UnmarshalJSON splits "_sync" out of a flat JSON object.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Sync = SyncMetadata{}
	if syncRaw, ok := raw[SyncField]; ok {
		if err := json.Unmarshal(syncRaw, &d.Sync); err != nil {
			return fmt.Errorf("failed to unmarshal sync metadata: %w", err)
		}
		delete(raw, SyncField)
	}

	d.Entity = make(Entity, len(raw))
	for k, v := range raw {
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("failed to unmarshal field %q: %w", k, err)
		}
		d.Entity[k] = value
	}
	return nil
}
