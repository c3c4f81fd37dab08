package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_MarshalJSON_FlattensSync(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := Document{
		Entity: Entity{"id": "c-1", "name": "Aria"},
		Sync: SyncMetadata{
			LastModified: now,
			ModifiedBy:   "user-1",
			Version:      3,
			DeviceID:     "device-a",
			ChangeVector: "device-a_1_abc",
		},
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "c-1", flat["id"])
	assert.Equal(t, "Aria", flat["name"])

	syncMeta, ok := flat["_sync"].(map[string]any)
	require.True(t, ok, "_sync должен быть вложенным объектом")
	assert.Equal(t, float64(3), syncMeta["version"])
	assert.Equal(t, "device-a", syncMeta["deviceId"])
}

func TestDocument_UnmarshalJSON_SplitsSync(t *testing.T) {
	raw := `{"id":"l-1","title":"Harbor","tags":["sea"],"_sync":{"version":2,"changeVector":"cv","deviceId":"d","modifiedBy":"u","lastModified":"2024-05-01T12:00:00Z"}}`

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, "l-1", doc.ID())
	assert.Equal(t, "Harbor", doc.Entity["title"])
	assert.Equal(t, []any{"sea"}, doc.Entity["tags"])
	assert.NotContains(t, doc.Entity, SyncField)
	assert.Equal(t, int64(2), doc.Sync.Version)
	assert.Equal(t, "cv", doc.Sync.ChangeVector)
}

func TestEntity_Clone_IsDeep(t *testing.T) {
	original := Entity{
		"id":         "x",
		"tags":       []any{"a", "b"},
		"properties": map[string]any{"hp": float64(10)},
	}

	clone := original.Clone()
	clone["tags"].([]any)[0] = "changed"
	clone["properties"].(map[string]any)["hp"] = float64(1)

	assert.Equal(t, "a", original["tags"].([]any)[0])
	assert.Equal(t, float64(10), original["properties"].(map[string]any)["hp"])
}

func TestEntity_Normalize(t *testing.T) {
	e := Entity{"id": "1", "level": 3, "tags": []string{"x"}}

	normalized, err := e.Normalize()
	require.NoError(t, err)
	assert.Equal(t, float64(3), normalized["level"])
	assert.Equal(t, []any{"x"}, normalized["tags"])
}

func TestEntity_UpdatedAt(t *testing.T) {
	tests := []struct {
		want   time.Time
		entity Entity
		name   string
	}{
		{
			name:   "updatedAt wins",
			entity: Entity{"createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-02-01T00:00:00Z"},
			want:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "falls back to createdAt",
			entity: Entity{"createdAt": "2024-01-01"},
			want:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "no timestamps",
			entity: Entity{"id": "1"},
			want:   time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(tt.entity.UpdatedAt()))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		value any
		name  string
		ok    bool
	}{
		{name: "rfc3339", value: "2024-05-01T10:00:00Z", ok: true},
		{name: "rfc3339 nano", value: "2024-05-01T10:00:00.123456Z", ok: true},
		{name: "date only", value: "2024-05-01", ok: true},
		{name: "time value", value: time.Now(), ok: true},
		{name: "plain text", value: "brave", ok: false},
		{name: "number", value: float64(1714557600), ok: false},
		{name: "nil", value: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseTimestamp(tt.value)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
