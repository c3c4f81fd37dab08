package sync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"

	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/models"
)

// sameContent compares two entities ignoring sync metadata.
func sameContent(a, b models.Entity) bool {
	na, errA := stripSync(a).Normalize()
	nb, errB := stripSync(b).Normalize()
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// detectConflicts pairs documents by id. A pair is a conflict when the change
// vectors differ and the content is not identical. New conflicts replace any
// pending conflict for the same document.
func (m *Manager) detectConflicts(entityType models.EntityType, local, remoteByID map[string]*models.Document) []models.SyncConflict {
	ids := make([]string, 0, len(local))
	for id := range local {
		if _, ok := remoteByID[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var detected []models.SyncConflict
	for _, id := range ids {
		l, r := local[id], remoteByID[id]
		if l.Sync.ChangeVector == r.Sync.ChangeVector || sameContent(l.Entity, r.Entity) {
			continue
		}
		detected = append(detected, models.SyncConflict{
			ID:         uuid.NewString(),
			EntityType: entityType,
			Local:      l,
			Remote:     r,
			DetectedAt: m.now().UTC(),
		})
	}
	if len(detected) == 0 {
		return nil
	}

	m.updateStatus(func(*models.SyncStatus) {
		for _, c := range detected {
			m.removeConflictLocked(func(p models.SyncConflict) bool {
				return p.EntityType == c.EntityType && p.Local.ID() == c.Local.ID()
			})
			m.conflicts = append(m.conflicts, c)
		}
	})

	m.logger.Info("Conflicts detected", "entity_type", entityType, "count", len(detected))
	return detected
}

// handleConflicts resolves conflicts with the configured policy. Under "ask"
// each conflict gets a manual placeholder and stays pending.
func (m *Manager) handleConflicts(ctx context.Context, conflicts []models.SyncConflict) error {
	policy := m.Settings().ConflictResolution
	strategy := policy.Strategy()

	var errs []error
	for _, c := range conflicts {
		resolution, err := m.resolver.Resolve(c.EntityType, c.Local, c.Remote, nil, strategy)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve %s: %w", c.Local.ID(), err))
			continue
		}

		if strategy == models.StrategyManual {
			m.setResolution(c.ID, resolution)
			continue
		}

		if err := m.applyResolution(ctx, c, resolution); err != nil {
			m.logger.Warn("Conflict left pending", "conflict_id", c.ID, "id", c.Local.ID(), "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) setResolution(conflictID string, resolution *models.ConflictResolution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conflicts {
		if m.conflicts[i].ID == conflictID {
			m.conflicts[i].Resolution = resolution
			return
		}
	}
}

// applyResolution writes the resolved document to both stores and drops the
// conflict. The remote write is checked against the version captured at
// detection, so a writer racing in between keeps the conflict pending.
func (m *Manager) applyResolution(ctx context.Context, c models.SyncConflict, resolution *models.ConflictResolution) error {
	if resolution == nil || resolution.Document == nil {
		return fmt.Errorf("conflict %s: empty resolution", c.ID)
	}

	collection := string(c.EntityType)
	entity := stripSync(resolution.Document.Entity)
	entity[models.FieldID] = c.Local.ID()

	var expected *int64
	if c.Remote != nil {
		v := c.Remote.Sync.Version
		expected = &v
	}

	// документ заменяется целиком: поля, отброшенные разрешением, не должны выжить
	written, err := m.remote.ReplaceDocument(ctx, collection, entity, expected)
	if errors.Is(err, remote.ErrDocumentNotFound) {
		written, err = m.remote.CreateDocument(ctx, collection, entity)
	}
	if err != nil {
		return fmt.Errorf("failed to write resolution of %s remotely: %w", c.Local.ID(), err)
	}

	// локально сохраняем ровно то, что оказалось на сервере
	if err := m.collections.Put(ctx, c.EntityType, stripSync(written.Entity)); err != nil {
		return fmt.Errorf("failed to write resolution of %s locally: %w", c.Local.ID(), err)
	}

	m.updateStatus(func(*models.SyncStatus) {
		m.removeConflictLocked(func(p models.SyncConflict) bool { return p.ID == c.ID })
	})

	m.logger.Info("Conflict resolved",
		"conflict_id", c.ID,
		"entity_type", c.EntityType,
		"id", c.Local.ID(),
		"strategy", resolution.Strategy,
		"confidence", resolution.Metadata.Confidence,
		"manual_review", resolution.Metadata.RequiresManualReview)
	return nil
}

func (m *Manager) removeConflictLocked(match func(models.SyncConflict) bool) {
	kept := m.conflicts[:0]
	for _, c := range m.conflicts {
		if !match(c) {
			kept = append(kept, c)
		}
	}
	m.conflicts = kept
}

// GetConflicts returns the pending conflicts in detection order.
func (m *Manager) GetConflicts() []models.SyncConflict {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SyncConflict, len(m.conflicts))
	copy(out, m.conflicts)
	return out
}

func (m *Manager) conflict(id string) (models.SyncConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conflicts {
		if c.ID == id {
			return c, nil
		}
	}
	return models.SyncConflict{}, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
}

// ResolveConflict applies a caller-chosen resolution to both stores.
func (m *Manager) ResolveConflict(ctx context.Context, conflictID string, resolution *models.ConflictResolution) error {
	c, err := m.conflict(conflictID)
	if err != nil {
		return err
	}
	return m.applyResolution(ctx, c, resolution)
}

// ResolveConflictWithStrategy computes a resolution with strategy and applies it.
// The manual strategy only records the placeholder.
func (m *Manager) ResolveConflictWithStrategy(ctx context.Context, conflictID string, strategy models.Strategy) (*models.ConflictResolution, error) {
	c, err := m.conflict(conflictID)
	if err != nil {
		return nil, err
	}

	resolution, err := m.resolver.Resolve(c.EntityType, c.Local, c.Remote, nil, strategy)
	if err != nil {
		return nil, err
	}
	if strategy == models.StrategyManual {
		m.setResolution(c.ID, resolution)
		return resolution, nil
	}

	return resolution, m.applyResolution(ctx, c, resolution)
}
