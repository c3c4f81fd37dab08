package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/worldkeeper/internal/changevector"
	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/client/remote/remotetest"
	"github.com/iudanet/worldkeeper/internal/client/storage"
	"github.com/iudanet/worldkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/worldkeeper/internal/models"
)

// switchChecker: переключаемое состояние сети
type switchChecker struct {
	online atomic.Bool
}

func (c *switchChecker) IsOnline(context.Context) bool { return c.online.Load() }

// flakyRemote fails selected calls before handing them to the wrapped store.
type flakyRemote struct {
	RemoteStore

	mu              gosync.Mutex
	createFailures  int
	collectionError map[string]error
}

func (f *flakyRemote) CreateDocument(ctx context.Context, collection string, entity models.Entity) (*models.Document, error) {
	f.mu.Lock()
	if f.createFailures > 0 {
		f.createFailures--
		f.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.RemoteStore.CreateDocument(ctx, collection, entity)
}

func (f *flakyRemote) GetCollection(ctx context.Context, collection string, opts ...remote.QueryOption) ([]*models.Document, error) {
	f.mu.Lock()
	err := f.collectionError[collection]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.RemoteStore.GetCollection(ctx, collection, opts...)
}

type fixture struct {
	backend     *remotetest.MemoryBackend
	adapter     *remote.Adapter
	remote      *flakyRemote
	store       *boltdb.Storage
	collections *storage.Collections
	checker     *switchChecker
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	checker := &switchChecker{}
	checker.online.Store(online)

	backend := remotetest.NewMemoryBackend()
	adapter := remote.NewAdapter(backend, checker, testLogger(),
		remote.WithRetry(time.Millisecond, remote.DefaultMaxRetries),
		remote.WithChangeVectors(changevector.New("device-b", nil)))

	return &fixture{
		backend:     backend,
		adapter:     adapter,
		remote:      &flakyRemote{RemoteStore: adapter, collectionError: map[string]error{}},
		store:       store,
		collections: storage.NewCollections(store),
		checker:     checker,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fixture) manager(t *testing.T, mutate func(*models.SyncSettings)) *Manager {
	t.Helper()
	ctx := context.Background()

	settings := models.DefaultSyncSettings()
	settings.Enabled = true
	if mutate != nil {
		mutate(&settings)
	}
	require.NoError(t, f.store.SaveSettings(ctx, settings))

	m, err := NewManager(ctx, Config{
		Remote:      f.remote,
		Collections: f.collections,
		Metadata:    f.store,
		Checker:     f.checker,
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// remoteDoc кладёт документ на сервер от имени другого устройства
func (f *fixture) remoteDoc(collection string, entity models.Entity, version int64) {
	f.backend.Put(collection, &models.Document{
		Entity: entity,
		Sync: models.SyncMetadata{
			Version:      version,
			DeviceID:     "device-a",
			ChangeVector: "device-a:1:1:abcdef01",
			LastModified: time.Now().UTC(),
		},
	})
}

func character(id, notes string) models.Entity {
	return models.Entity{
		"id":        id,
		"worldId":   "w1",
		"name":      "Aria",
		"notes":     notes,
		"updatedAt": "2024-01-01T10:00:00Z",
	}
}

func TestNewManager_Requirements(t *testing.T) {
	_, err := NewManager(context.Background(), Config{})
	assert.Error(t, err)
}

func TestQueue_OfflineCreateThenUpdate_DrainsInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityCharacters, models.Entity{"id": "c1", "worldId": "w1", "name": "A"}))
	require.NoError(t, m.QueueOperation(ctx, models.OperationUpdate, models.EntityCharacters, models.Entity{"id": "c1", "worldId": "w1", "name": "B"}))

	assert.Equal(t, 2, m.Status().PendingChanges)
	assert.Nil(t, f.backend.Doc("characters", "c1"))

	ops := m.PendingOperations()
	require.Len(t, ops, 2)
	assert.NotEqual(t, ops[0].ID, ops[1].ID)

	f.checker.online.Store(true)
	m.SetOnline(ctx, true)

	doc := f.backend.Doc("characters", "c1")
	require.NotNil(t, doc)
	assert.Equal(t, "B", doc.Entity["name"])
	assert.Equal(t, int64(2), doc.Sync.Version)
	assert.Equal(t, 0, m.Status().PendingChanges)

	persisted, err := f.store.GetPendingOperations(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestQueue_PersistedAcrossRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w1", "name": "Eld"}))

	restarted, err := NewManager(ctx, Config{
		Remote:      f.remote,
		Collections: f.collections,
		Metadata:    f.store,
		Checker:     f.checker,
		Logger:      testLogger(),
	})
	require.NoError(t, err)

	ops := restarted.PendingOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, "w1", ops[0].Data.ID())
	assert.Equal(t, 1, restarted.Status().PendingChanges)
}

func TestQueue_AtLeastOnceDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityCharacters, models.Entity{"id": "c1", "worldId": "w1", "name": "A"}))
	require.NoError(t, m.QueueOperation(ctx, models.OperationUpdate, models.EntityCharacters, models.Entity{"id": "c1", "worldId": "w1", "name": "B"}))
	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityCharacters, models.Entity{"id": "c2", "worldId": "w1", "name": "C"}))

	f.checker.online.Store(true)
	f.remote.createFailures = 1

	// первый create падает, update того же документа ждёт его
	result, err := m.ProcessPendingOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Processed: 1, Failed: 2, Remaining: 2}, result)
	assert.Nil(t, f.backend.Doc("characters", "c1"))
	assert.NotNil(t, f.backend.Doc("characters", "c2"))

	result, err = m.ProcessPendingOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Processed: 2, Remaining: 0}, result)

	doc := f.backend.Doc("characters", "c1")
	require.NotNil(t, doc)
	assert.Equal(t, "B", doc.Entity["name"])
}

func TestQueue_DrainStopsWhenOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w1"}))

	result, err := m.ProcessPendingOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Remaining)
	assert.False(t, m.Status().IsOnline)
}

func TestQueue_UpdateOfUnknownDocumentCreatesIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	require.NoError(t, m.QueueOperation(ctx, models.OperationUpdate, models.EntityItems, models.Entity{"id": "i1", "worldId": "w1", "name": "Sword"}))

	f.checker.online.Store(true)
	_, err := m.ProcessPendingOperations(ctx)
	require.NoError(t, err)

	doc := f.backend.Doc("items", "i1")
	require.NotNil(t, doc)
	assert.Equal(t, int64(1), doc.Sync.Version)
}

func TestQueue_Full(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, func(s *models.SyncSettings) { s.MaxOfflineChanges = 2 })

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w1"}))
	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w2"}))

	err := m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w3"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, m.Status().PendingChanges)
}

func TestQueue_InvalidOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	assert.ErrorIs(t, m.QueueOperation(ctx, "upsert", models.EntityWorlds, models.Entity{"id": "w1"}), ErrInvalidOperation)
	assert.ErrorIs(t, m.QueueOperation(ctx, models.OperationCreate, "spells", models.Entity{"id": "w1"}), ErrInvalidOperation)
	assert.ErrorIs(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"name": "x"}), ErrInvalidOperation)
}

func TestQueue_OnlineDrainsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, nil)

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w1", "name": "Eld"}))

	assert.NotNil(t, f.backend.Doc("worlds", "w1"))
	assert.Equal(t, 0, m.Status().PendingChanges)
}

func TestStatusListeners(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	var (
		mu       gosync.Mutex
		received []models.SyncStatus
	)
	token := m.AddStatusListener(func(s models.SyncStatus) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, s)
	})

	mu.Lock()
	require.Len(t, received, 1)
	assert.True(t, received[0].SyncEnabled)
	assert.False(t, received[0].IsOnline)
	mu.Unlock()

	require.NoError(t, m.QueueOperation(ctx, models.OperationCreate, models.EntityWorlds, models.Entity{"id": "w1"}))

	mu.Lock()
	last := received[len(received)-1]
	mu.Unlock()
	assert.Equal(t, 1, last.PendingChanges)

	assert.True(t, m.RemoveStatusListener(token))
	assert.False(t, m.RemoveStatusListener(token))

	mu.Lock()
	count := len(received)
	mu.Unlock()
	m.SetOnline(ctx, false)

	mu.Lock()
	assert.Equal(t, count, len(received))
	mu.Unlock()
}

func TestSyncAll_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.Enabled = false })

	f.remoteDoc("worlds", models.Entity{"id": "w1", "name": "Eld"}, 1)

	require.NoError(t, m.SyncAll(ctx))
	assert.Nil(t, m.Status().LastSyncTime)

	local, err := f.collections.LoadAll(ctx, models.EntityWorlds)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestSyncAll_Offline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	assert.ErrorIs(t, m.SyncAll(ctx), remote.ErrOffline)
	assert.Nil(t, m.Status().LastSyncTime)
	assert.False(t, m.Status().IsSyncing)
}

func TestSyncAll_ReconcilesOneSidedDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, nil)

	f.remoteDoc("worlds", models.Entity{"id": "w-remote", "name": "Far"}, 3)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c-local", "brave")))

	require.NoError(t, m.SyncAll(ctx))

	pulled, err := f.collections.Find(ctx, models.EntityWorlds, "w-remote")
	require.NoError(t, err)
	assert.Equal(t, "Far", pulled["name"])
	assert.NotContains(t, pulled, models.SyncField)

	pushed := f.backend.Doc("characters", "c-local")
	require.NotNil(t, pushed)
	assert.Equal(t, "brave", pushed.Entity["notes"])
	assert.Equal(t, "device-b", pushed.Sync.DeviceID)

	status := m.Status()
	require.NotNil(t, status.LastSyncTime)
	assert.False(t, status.IsSyncing)

	saved, err := f.store.GetLastSyncTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.WithinDuration(t, *status.LastSyncTime, *saved, time.Second)
}

func TestSyncAll_IdenticalContentIsNotAConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.ConflictResolution = models.PolicyAsk })

	f.remoteDoc("characters", character("c1", "brave"), 2)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))

	require.NoError(t, m.SyncAll(ctx))
	assert.Empty(t, m.GetConflicts())
	assert.Equal(t, int64(2), f.backend.Doc("characters", "c1").Sync.Version)
}

func TestSyncAll_AutoMergeResolvesConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, nil)

	f.remoteDoc("characters", character("c1", "cunning"), 1)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))

	require.NoError(t, m.SyncAll(ctx))
	assert.Empty(t, m.GetConflicts())

	doc := f.backend.Doc("characters", "c1")
	require.NotNil(t, doc)
	assert.Equal(t, "brave\n\n---\n\ncunning", doc.Entity["notes"])
	assert.Equal(t, int64(2), doc.Sync.Version)

	local, err := f.collections.Find(ctx, models.EntityCharacters, "c1")
	require.NoError(t, err)
	assert.Equal(t, "brave\n\n---\n\ncunning", local["notes"])

	// повторный проход ничего не меняет
	require.NoError(t, m.SyncAll(ctx))
	assert.Empty(t, m.GetConflicts())
	assert.Equal(t, int64(2), f.backend.Doc("characters", "c1").Sync.Version)
}

func TestSyncAll_PolicyWinners(t *testing.T) {
	withMotto := func(e models.Entity) models.Entity {
		e["motto"] = "ever onward"
		return e
	}
	withoutNotes := func(e models.Entity) models.Entity {
		delete(e, "notes")
		return e
	}

	tests := []struct {
		name      string
		policy    models.ConflictPolicy
		local     models.Entity
		remote    models.Entity
		wantNotes any
		wantMotto bool
	}{
		{
			name:      "local wins",
			policy:    models.PolicyLocalWins,
			local:     character("c1", "brave"),
			remote:    withMotto(character("c1", "cunning")),
			wantNotes: "brave",
		},
		{
			name:      "remote wins",
			policy:    models.PolicyRemoteWins,
			local:     character("c1", "brave"),
			remote:    withMotto(character("c1", "cunning")),
			wantNotes: "cunning",
			wantMotto: true,
		},
		{
			name:   "local wins without notes",
			policy: models.PolicyLocalWins,
			local:  withoutNotes(character("c1", "")),
			remote: character("c1", "cunning"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, true)
			m := f.manager(t, func(s *models.SyncSettings) { s.ConflictResolution = tt.policy })

			f.remoteDoc("characters", tt.remote, 1)
			require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, tt.local))

			require.NoError(t, m.SyncAll(ctx))
			assert.Empty(t, m.GetConflicts())

			// победившая сторона записывается целиком в оба хранилища
			remoteEntity := f.backend.Doc("characters", "c1").Entity
			local, err := f.collections.Find(ctx, models.EntityCharacters, "c1")
			require.NoError(t, err)

			for _, e := range []models.Entity{remoteEntity, local} {
				if tt.wantNotes == nil {
					assert.NotContains(t, e, "notes")
				} else {
					assert.Equal(t, tt.wantNotes, e["notes"])
				}
				if tt.wantMotto {
					assert.Equal(t, "ever onward", e["motto"])
				} else {
					assert.NotContains(t, e, "motto")
				}
			}
		})
	}
}

func TestSyncAll_RemoteWorldMoveLeavesSingleCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.ConflictResolution = models.PolicyRemoteWins })

	moved := character("c1", "cunning")
	moved["worldId"] = "w2"
	f.remoteDoc("characters", moved, 2)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))

	// документ, которого локально нет, приходит сразу в свой мир
	f.remoteDoc("characters", models.Entity{"id": "c2", "worldId": "w3", "name": "Kael"}, 1)

	require.NoError(t, m.SyncAll(ctx))
	assert.Empty(t, m.GetConflicts())

	all, err := f.collections.LoadAll(ctx, models.EntityCharacters)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	w1, err := f.collections.Load(ctx, models.EntityCharacters, "w1")
	require.NoError(t, err)
	assert.Empty(t, w1)

	w2, err := f.collections.Load(ctx, models.EntityCharacters, "w2")
	require.NoError(t, err)
	require.Len(t, w2, 1)
	assert.Equal(t, "cunning", w2[0]["notes"])

	// повторный проход ничего не дублирует
	require.NoError(t, m.SyncAll(ctx))
	all, err = f.collections.LoadAll(ctx, models.EntityCharacters)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSyncAll_AskKeepsConflictPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.ConflictResolution = models.PolicyAsk })

	f.remoteDoc("characters", character("c1", "cunning"), 1)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))

	require.NoError(t, m.SyncAll(ctx))

	conflicts := m.GetConflicts()
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.EntityCharacters, c.EntityType)
	assert.Equal(t, "c1", c.Local.ID())
	require.NotNil(t, c.Resolution)
	assert.Equal(t, models.StrategyManual, c.Resolution.Strategy)
	assert.True(t, c.Resolution.Metadata.RequiresManualReview)
	assert.Equal(t, 1, m.Status().ConflictsCount)

	// ничего не записано
	assert.Equal(t, "cunning", f.backend.Doc("characters", "c1").Entity["notes"])

	// повторное обнаружение заменяет, а не дублирует
	require.NoError(t, m.SyncAll(ctx))
	require.Len(t, m.GetConflicts(), 1)

	resolution, err := m.ResolveConflictWithStrategy(ctx, m.GetConflicts()[0].ID, models.StrategyRemoteWins)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyRemoteWins, resolution.Strategy)
	assert.Empty(t, m.GetConflicts())
	assert.Equal(t, 0, m.Status().ConflictsCount)

	local, err := f.collections.Find(ctx, models.EntityCharacters, "c1")
	require.NoError(t, err)
	assert.Equal(t, "cunning", local["notes"])
}

func TestResolveConflict_CustomResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.ConflictResolution = models.PolicyAsk })

	f.remoteDoc("characters", character("c1", "cunning"), 1)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))
	require.NoError(t, m.SyncAll(ctx))

	c := m.GetConflicts()[0]
	custom := &models.ConflictResolution{
		Strategy: models.StrategyManual,
		Document: &models.Document{Entity: character("c1", "brave and cunning")},
	}
	require.NoError(t, m.ResolveConflict(ctx, c.ID, custom))

	assert.Equal(t, "brave and cunning", f.backend.Doc("characters", "c1").Entity["notes"])
	assert.Empty(t, m.GetConflicts())

	assert.ErrorIs(t, m.ResolveConflict(ctx, c.ID, custom), ErrConflictNotFound)
}

func TestResolveConflict_StaleRemoteVersionKeepsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.ConflictResolution = models.PolicyAsk })

	f.remoteDoc("characters", character("c1", "cunning"), 1)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))
	require.NoError(t, m.SyncAll(ctx))
	c := m.GetConflicts()[0]

	// третье устройство успело записать новую версию
	f.remoteDoc("characters", character("c1", "sly"), 2)

	_, err := m.ResolveConflictWithStrategy(ctx, c.ID, models.StrategyLocalWins)
	assert.ErrorIs(t, err, remote.ErrVersionConflict)
	assert.Len(t, m.GetConflicts(), 1)
	assert.Equal(t, "sly", f.backend.Doc("characters", "c1").Entity["notes"])
}

func TestSyncAll_RemoteDeletionRecreatedFromLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, nil)

	f.remoteDoc("locations", models.Entity{"id": "l1", "worldId": "w1", "name": "Harbor"}, 1)
	require.NoError(t, f.collections.Upsert(ctx, models.EntityLocations, models.Entity{"id": "l1", "worldId": "w1", "name": "Harbor"}))
	require.NoError(t, f.adapter.DeleteDocument(ctx, "locations", "l1"))

	require.NoError(t, m.SyncAll(ctx))

	doc := f.backend.Doc("locations", "l1")
	require.NotNil(t, doc)
	assert.Equal(t, "Harbor", doc.Entity["name"])
}

func TestSyncAll_PendingDeleteIsNotPulledBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	f.remoteDoc("factions", models.Entity{"id": "f1", "worldId": "w1", "name": "Guild"}, 1)
	require.NoError(t, m.QueueOperation(ctx, models.OperationDelete, models.EntityFactions, models.Entity{"id": "f1", "worldId": "w1"}))

	f.checker.online.Store(true)
	require.NoError(t, m.SyncAll(ctx))

	assert.Nil(t, f.backend.Doc("factions", "f1"))
	_, err := f.collections.Find(ctx, models.EntityFactions, "f1")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	assert.Equal(t, 0, m.Status().PendingChanges)
}

func TestSyncAll_FailingEntityTypeDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, nil)

	boom := errors.New("index unavailable")
	f.remote.collectionError["characters"] = boom
	f.remoteDoc("items", models.Entity{"id": "i1", "worldId": "w1", "name": "Lamp"}, 1)

	err := m.SyncAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, err = f.collections.Find(ctx, models.EntityItems, "i1")
	assert.NoError(t, err)
	assert.NotNil(t, m.Status().LastSyncTime)
}

func TestMigrateLocalData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.Enabled = false })

	require.NoError(t, f.collections.Upsert(ctx, models.EntityWorlds, models.Entity{"id": "w1", "name": "Eld"}))
	require.NoError(t, f.collections.Upsert(ctx, models.EntityCharacters, character("c1", "brave")))
	require.NoError(t, f.collections.Upsert(ctx, models.EntityTimelines, models.Entity{"id": "t1", "worldId": "w2"}))

	n, err := m.MigrateLocalData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.NotNil(t, f.backend.Doc("worlds", "w1"))
	assert.NotNil(t, f.backend.Doc("characters", "c1"))
	assert.NotNil(t, f.backend.Doc("timelines", "t1"))
	assert.Equal(t, 1, f.backend.Commits())
}

func TestSettings_UpdateAndValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	m := f.manager(t, nil)

	bad := m.Settings()
	bad.SyncInterval = 0
	assert.Error(t, m.UpdateSettings(ctx, bad))

	good := m.Settings()
	good.ConflictResolution = models.PolicyRemoteWins
	require.NoError(t, m.UpdateSettings(ctx, good))

	saved, err := f.store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyRemoteWins, saved.ConflictResolution)

	require.NoError(t, m.DisableSync(ctx))
	assert.False(t, m.Status().SyncEnabled)
}

func TestEnableSync_RunsPass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, func(s *models.SyncSettings) { s.Enabled = false })

	f.remoteDoc("worlds", models.Entity{"id": "w1", "name": "Eld"}, 1)

	require.NoError(t, m.EnableSync(ctx))
	assert.True(t, m.Settings().Enabled)

	_, err := f.collections.Find(ctx, models.EntityWorlds, "w1")
	assert.NoError(t, err)
}

func TestAutoSync_StartStopAndTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	m := f.manager(t, nil)

	require.NoError(t, m.StartAutoSync())
	assert.True(t, m.autoSyncRunning())
	require.NoError(t, m.StartAutoSync())

	// новый интервал перезапускает расписание
	settings := m.Settings()
	settings.SyncInterval = 15
	require.NoError(t, m.UpdateSettings(ctx, settings))
	assert.True(t, m.autoSyncRunning())

	m.StopAutoSync()
	assert.False(t, m.autoSyncRunning())

	f.remoteDoc("worlds", models.Entity{"id": "w1", "name": "Eld"}, 1)
	m.autoSyncTick()
	assert.NotNil(t, m.Status().LastSyncTime)

	// оффлайн тик ничего не делает
	f.checker.online.Store(false)
	m.SetOnline(ctx, false)
	before := *m.Status().LastSyncTime
	m.autoSyncTick()
	assert.Equal(t, before, *m.Status().LastSyncTime)
}
