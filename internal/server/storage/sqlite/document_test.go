package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/server/storage"
)

func setDoc(collection string, entity models.Entity, version int64) models.Write {
	return models.Write{
		Op:              models.WriteSet,
		Collection:      collection,
		ID:              entity.ID(),
		Document:        &models.Document{Entity: entity, Sync: models.SyncMetadata{Version: version, DeviceID: "dev"}},
		ServerTimestamp: true,
	}
}

func TestCommit_SetAndGet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	commitTime, err := s.Commit(ctx, "u1", []models.Write{
		setDoc("characters", models.Entity{"id": "c1", "name": "Aria", "level": 3}, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, s.now().UTC(), commitTime)

	doc, err := s.GetDocument(ctx, "u1", "characters", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Aria", doc.Entity["name"])
	assert.Equal(t, float64(3), doc.Entity["level"])
	assert.Equal(t, int64(1), doc.Sync.Version)
	assert.Equal(t, commitTime, doc.Sync.LastModified.UTC())

	// коллекции разных пользователей не пересекаются
	_, err = s.GetDocument(ctx, "u2", "characters", "c1")
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)
}

func TestCommit_PreconditionsAreAtomic(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.Commit(ctx, "u1", []models.Write{setDoc("items", models.Entity{"id": "i1"}, 1)})
	require.NoError(t, err)

	stale := setDoc("items", models.Entity{"id": "i1", "name": "stale"}, 2)
	stale.Precondition = &models.Precondition{Exists: true, Version: 5}
	fresh := setDoc("items", models.Entity{"id": "i2"}, 1)

	_, err = s.Commit(ctx, "u1", []models.Write{fresh, stale})
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

	_, err = s.GetDocument(ctx, "u1", "items", "i2")
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound, "nothing is written when a precondition fails")

	ok := setDoc("items", models.Entity{"id": "i1", "name": "fresh"}, 2)
	ok.Precondition = &models.Precondition{Exists: true, Version: 1}
	_, err = s.Commit(ctx, "u1", []models.Write{ok})
	require.NoError(t, err)

	absent := setDoc("items", models.Entity{"id": "i1"}, 1)
	absent.Precondition = &models.Precondition{Exists: false}
	_, err = s.Commit(ctx, "u1", []models.Write{absent})
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
}

func TestCommit_DeleteLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.Commit(ctx, "u1", []models.Write{setDoc("worlds", models.Entity{"id": "w1"}, 1)})
	require.NoError(t, err)

	_, err = s.Commit(ctx, "u1", []models.Write{{Op: models.WriteDelete, Collection: "worlds", ID: "w1"}})
	require.NoError(t, err)

	// удаление отсутствующего документа не ошибка
	_, err = s.Commit(ctx, "u1", []models.Write{{Op: models.WriteDelete, Collection: "worlds", ID: "missing"}})
	require.NoError(t, err)

	_, err = s.GetDocument(ctx, "u1", "worlds", "w1")
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)

	// удалённый документ не существует для предусловий
	recreate := setDoc("worlds", models.Entity{"id": "w1"}, 1)
	recreate.Precondition = &models.Precondition{Exists: false}
	_, err = s.Commit(ctx, "u1", []models.Write{recreate})
	assert.NoError(t, err)
}

func TestQueryDocuments(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.Commit(ctx, "u1", []models.Write{
		setDoc("characters", models.Entity{"id": "a", "worldId": "w1", "level": 5, "alive": true}, 1),
		setDoc("characters", models.Entity{"id": "b", "worldId": "w1", "level": 2, "alive": false}, 1),
		setDoc("characters", models.Entity{"id": "c", "worldId": "w2", "level": 9, "alive": true}, 1),
	})
	require.NoError(t, err)

	ids := func(docs []*models.Document) []string {
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.ID())
		}
		return out
	}

	tests := []struct {
		name  string
		query models.Query
		want  []string
	}{
		{
			name:  "all by id",
			query: models.Query{Collection: "characters"},
			want:  []string{"a", "b", "c"},
		},
		{
			name: "equality",
			query: models.Query{Collection: "characters", Filters: []models.Filter{
				{Field: "worldId", Op: models.OpEqual, Value: "w1"},
			}},
			want: []string{"a", "b"},
		},
		{
			name: "range and bool",
			query: models.Query{Collection: "characters", Filters: []models.Filter{
				{Field: "level", Op: models.OpGreaterOrEqual, Value: float64(3)},
				{Field: "alive", Op: models.OpEqual, Value: true},
			}},
			want: []string{"a", "c"},
		},
		{
			name:  "ordered descending",
			query: models.Query{Collection: "characters", OrderBy: &models.OrderBy{Field: "level", Descending: true}},
			want:  []string{"c", "a", "b"},
		},
		{
			name: "missing field is null",
			query: models.Query{Collection: "characters", Filters: []models.Filter{
				{Field: "title", Op: models.OpEqual, Value: nil},
			}},
			want: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.QueryDocuments(ctx, "u1", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestQueryDocuments_Invalid(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, q := range []models.Query{
		{Collection: "c", Filters: []models.Filter{{Field: "x') OR 1=1 --", Op: models.OpEqual, Value: "a"}}},
		{Collection: "c", Filters: []models.Filter{{Field: "x", Op: "like", Value: "a"}}},
		{Collection: "c", Filters: []models.Filter{{Field: "x", Op: models.OpLess, Value: nil}}},
		{Collection: "c", Filters: []models.Filter{{Field: "x", Op: models.OpEqual, Value: []any{1}}}},
		{Collection: "c", OrderBy: &models.OrderBy{Field: "a.b"}},
	} {
		_, err := s.QueryDocuments(ctx, "u1", q)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	}
}

func TestChanges(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.Commit(ctx, "u1", []models.Write{
		setDoc("locations", models.Entity{"id": "l1"}, 1),
		setDoc("locations", models.Entity{"id": "l2"}, 1),
	})
	require.NoError(t, err)
	_, err = s.Commit(ctx, "u1", []models.Write{{Op: models.WriteDelete, Collection: "locations", ID: "l1"}})
	require.NoError(t, err)

	set, err := s.Changes(ctx, "u1", "locations", 0, 0)
	require.NoError(t, err)
	require.Len(t, set.Changes, 2)
	assert.Equal(t, "l2", set.Changes[0].ID)
	assert.NotNil(t, set.Changes[0].Document)
	assert.Equal(t, "l1", set.Changes[1].ID)
	assert.True(t, set.Changes[1].Deleted)
	assert.Nil(t, set.Changes[1].Document)
	assert.Equal(t, set.Changes[1].Seq, set.Cursor)
	assert.Less(t, set.Changes[0].Seq, set.Changes[1].Seq)

	page, err := s.Changes(ctx, "u1", "locations", 0, 1)
	require.NoError(t, err)
	require.Len(t, page.Changes, 1)

	empty, err := s.Changes(ctx, "u1", "locations", set.Cursor, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Changes)
	assert.Equal(t, set.Cursor, empty.Cursor)
}
