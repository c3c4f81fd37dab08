package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/worldkeeper/internal/models"
)

// BatchOperation is one entry of BatchWrite.
type BatchOperation struct {
	Entity     models.Entity
	Type       models.OperationType
	Collection string
}

// BatchWrite applies all operations as one atomic commit.
// Creates write version 1; updates merge over the remote document and bump its
// version, creating it when absent; deletes are unconditional.
func (a *Adapter) BatchWrite(ctx context.Context, ops []BatchOperation) error {
	if len(ops) == 0 {
		return nil
	}
	if err := a.ensureOnline(ctx); err != nil {
		return err
	}

	err := a.RunTransaction(ctx, func(tx *Tx) error {
		for _, op := range ops {
			id := op.Entity.ID()
			if id == "" {
				return fmt.Errorf("%w: batch %s without id", ErrInvalidDocument, op.Type)
			}

			switch op.Type {
			case models.OperationCreate:
				if err := tx.Set(op.Collection, &models.Document{Entity: op.Entity.Clone(), Sync: a.stamp(1)}); err != nil {
					return err
				}
			case models.OperationUpdate:
				current, err := tx.Get(ctx, op.Collection, id)
				if err != nil && !errors.Is(err, ErrDocumentNotFound) {
					return err
				}
				entity, version := op.Entity.Clone(), int64(1)
				if current != nil {
					entity = current.Entity
					for k, v := range op.Entity {
						entity[k] = models.CloneValue(v)
					}
					version = current.Sync.Version + 1
				}
				if err := tx.Set(op.Collection, &models.Document{Entity: entity, Sync: a.stamp(version)}); err != nil {
					return err
				}
			case models.OperationDelete:
				tx.Delete(op.Collection, id)
			default:
				return fmt.Errorf("unknown batch operation %q", op.Type)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit batch of %d operations: %w", len(ops), err)
	}

	a.logger.Info("Batch committed", "operations", len(ops))
	return nil
}
