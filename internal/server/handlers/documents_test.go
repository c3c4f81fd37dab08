package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/pkg/api"
)

func setWrite(collection string, entity models.Entity, version int64) models.Write {
	return models.Write{
		Op:         models.WriteSet,
		Collection: collection,
		ID:         entity.ID(),
		Document: &models.Document{
			Entity: entity,
			Sync:   models.SyncMetadata{Version: version, DeviceID: "device-a"},
		},
		ServerTimestamp: true,
	}
}

// authedRequest строит запрос от имени userID с заполненными path-параметрами
func authedRequest(method, target string, body any, userID string, pathValues map[string]string) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	if userID != "" {
		req = req.WithContext(asUser(req.Context(), userID))
	}
	return req
}

func commit(t *testing.T, h *DocumentHandler, userID string, writes ...models.Write) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.Commit(w, authedRequest(http.MethodPost, "/api/v1/commit", api.CommitRequest{Writes: writes}, userID, nil))
	return w
}

func TestDocumentHandler_CommitAndGet(t *testing.T) {
	notifier := NewNotifier()
	h := NewDocumentHandler(setupTestLogger(), setupTestStore(t), notifier)

	signal, unsubscribe := notifier.Subscribe("u1")
	defer unsubscribe()

	w := commit(t, h, "u1", setWrite("characters", models.Entity{"id": "c1", "name": "Aria"}, 1))
	require.Equal(t, http.StatusOK, w.Code)

	var commitResp api.CommitResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&commitResp))
	assert.False(t, commitResp.CommitTime.IsZero())

	select {
	case <-signal:
	default:
		t.Fatal("commit did not notify watchers")
	}

	w = httptest.NewRecorder()
	h.GetDocument(w, authedRequest(http.MethodGet, "/", nil, "u1",
		map[string]string{"collection": "characters", "id": "c1"}))
	require.Equal(t, http.StatusOK, w.Code)

	var doc models.Document
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	assert.Equal(t, "Aria", doc.Entity["name"])
	assert.Equal(t, int64(1), doc.Sync.Version)

	// чужой пользователь документа не видит
	w = httptest.NewRecorder()
	h.GetDocument(w, authedRequest(http.MethodGet, "/", nil, "u2",
		map[string]string{"collection": "characters", "id": "c1"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_CommitPreconditionFailed(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), setupTestStore(t), NewNotifier())

	require.Equal(t, http.StatusOK, commit(t, h, "u1", setWrite("items", models.Entity{"id": "i1"}, 1)).Code)

	stale := setWrite("items", models.Entity{"id": "i1", "name": "stale"}, 2)
	stale.Precondition = &models.Precondition{Exists: true, Version: 7}

	w := commit(t, h, "u1", stale)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDocumentHandler_CommitValidation(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), setupTestStore(t), nil)

	tests := []struct {
		name   string
		writes []models.Write
	}{
		{name: "empty", writes: nil},
		{name: "unknown collection", writes: []models.Write{setWrite("spells", models.Entity{"id": "s1"}, 1)}},
		{name: "bad id", writes: []models.Write{setWrite("items", models.Entity{"id": "a/b"}, 1)}},
		{name: "set without document", writes: []models.Write{{Op: models.WriteSet, Collection: "items", ID: "i1"}}},
		{name: "unknown op", writes: []models.Write{{Op: "patch", Collection: "items", ID: "i1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, commit(t, h, "u1", tt.writes...).Code)
		})
	}
}

func TestDocumentHandler_Unauthorized(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), setupTestStore(t), nil)

	w := commit(t, h, "", setWrite("items", models.Entity{"id": "i1"}, 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentHandler_Query(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), setupTestStore(t), nil)

	require.Equal(t, http.StatusOK, commit(t, h, "u1",
		setWrite("characters", models.Entity{"id": "c1", "worldId": "w1", "name": "Bran"}, 1),
		setWrite("characters", models.Entity{"id": "c2", "worldId": "w1", "name": "Aria"}, 1),
		setWrite("characters", models.Entity{"id": "c3", "worldId": "w2", "name": "Cole"}, 1),
	).Code)

	w := httptest.NewRecorder()
	h.Query(w, authedRequest(http.MethodPost, "/", api.QueryRequest{
		Filters: []models.Filter{{Field: "worldId", Op: models.OpEqual, Value: "w1"}},
		OrderBy: &models.OrderBy{Field: "name"},
	}, "u1", map[string]string{"collection": "characters"}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.QueryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Documents, 2)
	assert.Equal(t, "c2", resp.Documents[0].Entity.ID())
	assert.Equal(t, "c1", resp.Documents[1].Entity.ID())

	w = httptest.NewRecorder()
	h.Query(w, authedRequest(http.MethodPost, "/", api.QueryRequest{
		Filters: []models.Filter{{Field: "name') OR 1=1 --", Op: models.OpEqual, Value: "x"}},
	}, "u1", map[string]string{"collection": "characters"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Changes(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), setupTestStore(t), nil)

	require.Equal(t, http.StatusOK, commit(t, h, "u1",
		setWrite("worlds", models.Entity{"id": "w1"}, 1),
		setWrite("worlds", models.Entity{"id": "w2"}, 1),
	).Code)
	require.Equal(t, http.StatusOK, commit(t, h, "u1", models.Write{
		Op: models.WriteDelete, Collection: "worlds", ID: "w1",
	}).Code)

	get := func(since string) *models.ChangeSet {
		w := httptest.NewRecorder()
		h.Changes(w, authedRequest(http.MethodGet, "/changes?since="+since, nil, "u1",
			map[string]string{"collection": "worlds"}))
		require.Equal(t, http.StatusOK, w.Code)

		var set models.ChangeSet
		require.NoError(t, json.NewDecoder(w.Body).Decode(&set))
		return &set
	}

	all := get("0")
	require.Len(t, all.Changes, 2)
	assert.Equal(t, "w2", all.Changes[0].ID)
	assert.Equal(t, "w1", all.Changes[1].ID)
	assert.True(t, all.Changes[1].Deleted)
	assert.Equal(t, int64(3), all.Cursor)

	assert.Empty(t, get("3").Changes)

	w := httptest.NewRecorder()
	h.Changes(w, authedRequest(http.MethodGet, "/changes?since=-1", nil, "u1",
		map[string]string{"collection": "worlds"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()

	first, unsubFirst := n.Subscribe("u1")
	second, unsubSecond := n.Subscribe("u1")
	assert.Equal(t, 2, n.subscribers("u1"))

	// сигналы схлопываются и не блокируют коммит
	n.Publish("u1")
	n.Publish("u1")
	n.Publish("u2")

	assert.Len(t, first, 1)
	assert.Len(t, second, 1)

	unsubFirst()
	unsubSecond()
	assert.Zero(t, n.subscribers("u1"))
}
