package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/models"
)

// DrainResult summarizes one pass over the operation queue.
type DrainResult struct {
	Processed int
	Failed    int
	Remaining int
}

// QueueOperation records a local mutation for delivery to the remote store.
// The queue is persisted before returning; if the device is online the
// queue is drained right away.
func (m *Manager) QueueOperation(ctx context.Context, opType models.OperationType, entityType models.EntityType, data models.Entity) error {
	if !opType.Valid() || !entityType.Valid() {
		return fmt.Errorf("%w: %s %s", ErrInvalidOperation, opType, entityType)
	}
	if data.ID() == "" {
		return fmt.Errorf("%w: %s without id", ErrInvalidOperation, opType)
	}

	m.mu.Lock()
	if limit := m.settings.MaxOfflineChanges; limit > 0 && len(m.queue) >= limit {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d operations pending", ErrQueueFull, limit)
	}

	op := models.NewPendingOperation(opType, entityType, data, m.uniqueOpTime(entityType, data.ID()))
	m.queue = append(m.queue, *op)
	err := m.persistQueueLocked(ctx)
	if err != nil {
		m.queue = m.queue[:len(m.queue)-1]
	}
	online := m.status.IsOnline
	m.mu.Unlock()

	if err != nil {
		return err
	}

	m.updateStatus(nil)
	m.logger.Debug("Operation queued", "op_id", op.ID, "type", opType, "entity_type", entityType)

	if online && m.Settings().Enabled {
		if _, err := m.ProcessPendingOperations(ctx); err != nil {
			m.logger.Warn("Immediate drain failed", "error", err)
		}
	}
	return nil
}

// uniqueOpTime returns now, nudged forward so that the operation id does not
// collide with one already queued for the same document.
func (m *Manager) uniqueOpTime(entityType models.EntityType, id string) time.Time {
	now := m.now()
	for {
		candidate := fmt.Sprintf("%s_%s_%d", entityType, id, now.UnixMilli())
		taken := false
		for _, op := range m.queue {
			if op.ID == candidate {
				taken = true
				break
			}
		}
		if !taken {
			return now
		}
		now = now.Add(time.Millisecond)
	}
}

func (m *Manager) persistQueueLocked(ctx context.Context) error {
	snapshot := make([]models.PendingOperation, len(m.queue))
	copy(snapshot, m.queue)
	if err := m.metadata.SavePendingOperations(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist operation queue: %w", err)
	}
	return nil
}

// PendingOperations returns a copy of the queue in enqueue order.
func (m *Manager) PendingOperations() []models.PendingOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PendingOperation, len(m.queue))
	copy(out, m.queue)
	return out
}

// ClearPendingOperations drops every queued operation.
func (m *Manager) ClearPendingOperations(ctx context.Context) error {
	m.mu.Lock()
	m.queue = m.queue[:0]
	err := m.persistQueueLocked(ctx)
	m.mu.Unlock()

	m.updateStatus(nil)
	return err
}

// pendingDeletes returns the ids of entityType with a queued delete.
func (m *Manager) pendingDeletes(entityType models.EntityType) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make(map[string]bool)
	for _, op := range m.queue {
		if op.EntityType == entityType && op.Type == models.OperationDelete {
			ids[op.Data.ID()] = true
		}
	}
	return ids
}

// ProcessPendingOperations delivers queued operations in enqueue order.
// A delivered operation is removed and the queue persisted; a failed one
// stays queued and later operations on the same document wait for it.
// Delivery is at-least-once: remote writes are idempotent by document id.
func (m *Manager) ProcessPendingOperations(ctx context.Context) (DrainResult, error) {
	var result DrainResult

	// другой drain уже идёт
	if !m.drainMu.TryLock() {
		result.Remaining = len(m.PendingOperations())
		return result, nil
	}
	defer m.drainMu.Unlock()

	ops := m.PendingOperations()
	if len(ops) == 0 {
		return result, nil
	}

	blocked := make(map[string]bool)
	for _, op := range ops {
		key := string(op.EntityType) + "/" + op.Data.ID()
		if blocked[key] {
			result.Failed++
			continue
		}

		err := m.dispatch(ctx, op)
		if errors.Is(err, remote.ErrOffline) {
			m.SetOnline(ctx, false)
			m.logger.Info("Went offline while draining, stopping")
			break
		}
		if err != nil {
			m.logger.Warn("Queued operation failed, will retry on next drain",
				"op_id", op.ID, "type", op.Type, "entity_type", op.EntityType, "error", err)
			blocked[key] = true
			result.Failed++
			continue
		}

		if err := m.dequeue(ctx, op.ID); err != nil {
			return result, err
		}
		result.Processed++
	}

	result.Remaining = len(m.PendingOperations())
	m.updateStatus(nil)

	m.logger.Info("Operation queue drained",
		"processed", result.Processed,
		"failed", result.Failed,
		"remaining", result.Remaining)
	return result, nil
}

func (m *Manager) dequeue(ctx context.Context, opID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, op := range m.queue {
		if op.ID == opID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	return m.persistQueueLocked(ctx)
}

// dispatch maps a queued operation onto the remote store.
// An update of a document the remote store has never seen becomes a create.
func (m *Manager) dispatch(ctx context.Context, op models.PendingOperation) error {
	collection := string(op.EntityType)

	switch op.Type {
	case models.OperationCreate:
		_, err := m.remote.CreateDocument(ctx, collection, op.Data)
		return err
	case models.OperationUpdate:
		_, err := m.remote.UpdateDocument(ctx, collection, op.Data, nil)
		if errors.Is(err, remote.ErrDocumentNotFound) {
			_, err = m.remote.CreateDocument(ctx, collection, op.Data)
		}
		return err
	case models.OperationDelete:
		return m.remote.DeleteDocument(ctx, collection, op.Data.ID())
	}
	return fmt.Errorf("%w: %s", ErrInvalidOperation, op.Type)
}

// MigrateLocalData uploads every local entity of every synced kind in one
// atomic batch. It returns the number of uploaded entities.
func (m *Manager) MigrateLocalData(ctx context.Context) (int, error) {
	var ops []remote.BatchOperation
	for _, entityType := range models.SyncedEntityTypes {
		entities, err := m.collections.LoadAll(ctx, entityType)
		if err != nil {
			return 0, fmt.Errorf("failed to load local %s: %w", entityType, err)
		}
		for _, e := range entities {
			if e.ID() == "" {
				continue
			}
			ops = append(ops, remote.BatchOperation{
				Type:       models.OperationCreate,
				Collection: string(entityType),
				Entity:     e,
			})
		}
	}

	if err := m.remote.BatchWrite(ctx, ops); err != nil {
		return 0, fmt.Errorf("failed to migrate local data: %w", err)
	}

	m.logger.Info("Local data migrated", "entities", len(ops))
	return len(ops), nil
}
