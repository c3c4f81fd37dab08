// Package sync keeps the local store and the remote store converging.
//
// The Manager owns the offline operation queue, runs sync passes per entity
// kind (fetch, detect conflicts, resolve, reconcile) and publishes a
// SyncStatus to registered listeners.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iudanet/worldkeeper/internal/client/network"
	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/client/storage"
	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/resolver"
)

// localDeviceID marks metadata synthesized for documents that only exist locally.
const localDeviceID = "local"

// RemoteStore is the part of remote.Adapter the manager depends on.
type RemoteStore interface {
	CreateDocument(ctx context.Context, collection string, entity models.Entity) (*models.Document, error)
	UpdateDocument(ctx context.Context, collection string, partial models.Entity, expectedVersion *int64) (*models.Document, error)
	ReplaceDocument(ctx context.Context, collection string, entity models.Entity, expectedVersion *int64) (*models.Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	GetCollection(ctx context.Context, collection string, opts ...remote.QueryOption) ([]*models.Document, error)
	BatchWrite(ctx context.Context, ops []remote.BatchOperation) error
}

// Config holds the collaborators of a Manager.
type Config struct {
	Remote      RemoteStore
	Collections *storage.Collections
	Metadata    storage.MetadataStorage
	Checker     network.Checker
	Resolver    *resolver.Resolver
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager is the Sync Manager.
type Manager struct {
	remote      RemoteStore
	collections *storage.Collections
	metadata    storage.MetadataStorage
	checker     network.Checker
	resolver    *resolver.Resolver
	logger      *slog.Logger
	now         func() time.Time

	listeners map[ListenerToken]StatusListener
	cron      *cron.Cron
	conflicts []models.SyncConflict
	queue     []models.PendingOperation
	settings  models.SyncSettings
	status    models.SyncStatus

	syncing     atomic.Bool
	mu          gosync.Mutex
	listenersMu gosync.Mutex
	drainMu     gosync.Mutex
	cronMu      gosync.Mutex
}

// NewManager loads persisted settings, queue and last sync time and probes connectivity.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Remote == nil || cfg.Collections == nil || cfg.Metadata == nil || cfg.Checker == nil {
		return nil, errors.New("sync manager requires remote, collections, metadata and checker")
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		remote:      cfg.Remote,
		collections: cfg.Collections,
		metadata:    cfg.Metadata,
		checker:     cfg.Checker,
		resolver:    cfg.Resolver,
		logger:      cfg.Logger,
		now:         cfg.Now,
		listeners:   make(map[ListenerToken]StatusListener),
	}

	settings, err := cfg.Metadata.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync settings: %w", err)
	}
	queue, err := cfg.Metadata.GetPendingOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending operations: %w", err)
	}
	lastSync, err := cfg.Metadata.GetLastSyncTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load last sync time: %w", err)
	}

	m.settings = settings
	m.queue = queue
	m.status = models.SyncStatus{
		LastSyncTime: lastSync,
		IsOnline:     cfg.Checker.IsOnline(ctx),
	}

	m.logger.Debug("Sync manager ready",
		"enabled", settings.Enabled,
		"pending", len(queue),
		"online", m.status.IsOnline)

	return m, nil
}

// Settings returns the current sync settings.
func (m *Manager) Settings() models.SyncSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// UpdateSettings validates, persists and applies settings.
// A running auto-sync schedule follows the new interval.
func (m *Manager) UpdateSettings(ctx context.Context, settings models.SyncSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := m.metadata.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save sync settings: %w", err)
	}

	m.updateStatus(func(*models.SyncStatus) {
		m.settings = settings
	})

	if m.autoSyncRunning() {
		m.StopAutoSync()
		if settings.Enabled && settings.AutoSync {
			if err := m.StartAutoSync(); err != nil {
				return err
			}
		}
	}

	m.logger.Info("Sync settings updated",
		"enabled", settings.Enabled,
		"auto_sync", settings.AutoSync,
		"interval_minutes", settings.SyncInterval,
		"policy", settings.ConflictResolution)
	return nil
}

// EnableSync turns sync on and runs a full pass.
func (m *Manager) EnableSync(ctx context.Context) error {
	settings := m.Settings()
	settings.Enabled = true
	if err := m.UpdateSettings(ctx, settings); err != nil {
		return err
	}
	return m.SyncAll(ctx)
}

// DisableSync turns sync off and stops the auto-sync schedule.
func (m *Manager) DisableSync(ctx context.Context) error {
	m.StopAutoSync()
	settings := m.Settings()
	settings.Enabled = false
	return m.UpdateSettings(ctx, settings)
}

// SetOnline records connectivity. Coming back online with queued operations drains the queue.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	var cameOnline bool
	m.updateStatus(func(s *models.SyncStatus) {
		cameOnline = online && !s.IsOnline
		s.IsOnline = online
	})

	if cameOnline && m.Status().PendingChanges > 0 {
		m.logger.Info("Back online, draining queued operations")
		if _, err := m.ProcessPendingOperations(ctx); err != nil {
			m.logger.Warn("Failed to drain queue after reconnect", "error", err)
		}
	}
}

// CheckConnectivity probes the network and records the result.
func (m *Manager) CheckConnectivity(ctx context.Context) bool {
	online := m.checker.IsOnline(ctx)
	m.SetOnline(ctx, online)
	return online
}

// SyncAll runs one sync pass over every synced entity kind and drains the queue.
// It is a no-op when sync is disabled or a pass is already running.
// A failing entity kind is logged and does not stop the others; all
// failures are returned joined.
func (m *Manager) SyncAll(ctx context.Context) error {
	if !m.Settings().Enabled {
		m.logger.Debug("Sync disabled, skipping pass")
		return nil
	}
	if !m.syncing.CompareAndSwap(false, true) {
		m.logger.Debug("Sync pass already running")
		return nil
	}

	m.updateStatus(func(s *models.SyncStatus) { s.IsSyncing = true })
	defer func() {
		m.syncing.Store(false)
		m.updateStatus(func(s *models.SyncStatus) { s.IsSyncing = false })
	}()

	if !m.CheckConnectivity(ctx) {
		return remote.ErrOffline
	}

	m.logger.Info("Starting synchronization")
	start := m.now()

	var errs []error
	for _, entityType := range models.SyncedEntityTypes {
		if err := m.SyncEntityType(ctx, entityType); err != nil {
			m.logger.Error("Failed to sync entity type", "entity_type", entityType, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", entityType, err))
		}
	}

	result, err := m.ProcessPendingOperations(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("drain: %w", err))
	}

	now := m.now().UTC()
	if err := m.metadata.SaveLastSyncTime(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("failed to save last sync time: %w", err))
	}
	m.updateStatus(func(s *models.SyncStatus) { s.LastSyncTime = &now })

	m.logger.Info("Synchronization finished",
		"duration", now.Sub(start),
		"drained", result.Processed,
		"pending", result.Remaining,
		"conflicts", m.Status().ConflictsCount,
		"errors", len(errs))

	return errors.Join(errs...)
}

// SyncEntityType reconciles one entity kind: fetch both sides, detect and
// resolve conflicts, then copy documents that exist on one side only.
func (m *Manager) SyncEntityType(ctx context.Context, entityType models.EntityType) error {
	collection := string(entityType)

	localEntities, err := m.collections.LoadAll(ctx, entityType)
	if err != nil {
		return fmt.Errorf("failed to load local %s: %w", entityType, err)
	}
	remoteDocs, err := m.remote.GetCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to fetch remote %s: %w", entityType, err)
	}

	// документы с ожидающим удалением не трогаем: очередь удалит их сама
	pendingDeletes := m.pendingDeletes(entityType)

	local := make(map[string]*models.Document, len(localEntities))
	for _, e := range localEntities {
		if e.ID() == "" || pendingDeletes[e.ID()] {
			continue
		}
		local[e.ID()] = synthesize(e)
	}
	remoteByID := make(map[string]*models.Document, len(remoteDocs))
	for _, d := range remoteDocs {
		if pendingDeletes[d.ID()] {
			continue
		}
		remoteByID[d.ID()] = d
	}

	conflicts := m.detectConflicts(entityType, local, remoteByID)
	if err := m.handleConflicts(ctx, conflicts); err != nil {
		return err
	}

	return m.syncNonConflicting(ctx, entityType, local, remoteByID)
}

// synthesize wraps a local entity with metadata derived from its own timestamp.
func synthesize(e models.Entity) *models.Document {
	updated := e.UpdatedAt()
	return &models.Document{
		Entity: e.Clone(),
		Sync: models.SyncMetadata{
			LastModified: updated,
			Version:      1,
			DeviceID:     localDeviceID,
			ChangeVector: fmt.Sprintf("%s:%d:0:%s", localDeviceID, updated.UnixMilli(), e.ID()),
		},
	}
}

// syncNonConflicting creates local-only documents remotely and stores
// remote-only documents locally.
func (m *Manager) syncNonConflicting(ctx context.Context, entityType models.EntityType, local, remoteByID map[string]*models.Document) error {
	var errs []error

	for id, doc := range local {
		if _, ok := remoteByID[id]; ok {
			continue
		}
		if _, err := m.remote.CreateDocument(ctx, string(entityType), doc.Entity); err != nil {
			errs = append(errs, fmt.Errorf("failed to push %s: %w", id, err))
			continue
		}
		m.logger.Debug("Pushed local-only document", "entity_type", entityType, "id", id)
	}

	for id, doc := range remoteByID {
		if _, ok := local[id]; ok {
			continue
		}
		if err := m.collections.Put(ctx, entityType, stripSync(doc.Entity)); err != nil {
			errs = append(errs, fmt.Errorf("failed to store %s locally: %w", id, err))
			continue
		}
		m.logger.Debug("Pulled remote-only document", "entity_type", entityType, "id", id)
	}

	return errors.Join(errs...)
}

func stripSync(e models.Entity) models.Entity {
	out := e.Clone()
	delete(out, models.SyncField)
	return out
}
