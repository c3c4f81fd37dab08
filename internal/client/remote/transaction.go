package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/worldkeeper/internal/models"
)

// MaxTransactionAttempts bounds how often a transaction is re-run after losing a race.
const MaxTransactionAttempts = 5

type docKey struct {
	collection string
	id         string
}

// Tx collects reads and writes of one optimistic transaction.
// Every document read becomes a precondition of the writes to it, so the
// commit fails if another writer changed the document in between.
type Tx struct {
	a       *Adapter
	reads   map[docKey]models.Precondition
	writes  []models.Write
	written []*models.Document
}

// Get reads a document inside the transaction.
func (tx *Tx) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	key := docKey{collection: collection, id: id}

	doc, err := tx.a.backend.GetDocument(ctx, collection, id)
	if errors.Is(err, ErrDocumentNotFound) {
		tx.reads[key] = models.Precondition{Exists: false}
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, err
	}

	tx.reads[key] = models.Precondition{Exists: true, Version: doc.Sync.Version}
	return tx.a.open(doc)
}

// Set schedules doc to be written. The commit stamps its lastModified.
func (tx *Tx) Set(collection string, doc *models.Document) error {
	sealed, err := tx.a.seal(doc)
	if err != nil {
		return err
	}

	tx.writes = append(tx.writes, models.Write{
		Op:              models.WriteSet,
		Collection:      collection,
		ID:              doc.ID(),
		Document:        sealed,
		ServerTimestamp: true,
		Precondition:    tx.precondition(collection, doc.ID()),
	})
	tx.written = append(tx.written, doc)
	return nil
}

// Delete schedules a delete.
func (tx *Tx) Delete(collection, id string) {
	tx.writes = append(tx.writes, models.Write{
		Op:           models.WriteDelete,
		Collection:   collection,
		ID:           id,
		Precondition: tx.precondition(collection, id),
	})
}

func (tx *Tx) precondition(collection, id string) *models.Precondition {
	p, ok := tx.reads[docKey{collection: collection, id: id}]
	if !ok {
		return nil
	}
	return &p
}

// RunTransaction runs fn and commits its writes atomically.
// If a concurrent writer invalidated one of fn's reads the whole fn is re-run,
// up to MaxTransactionAttempts times. Errors returned by fn abort immediately.
func (a *Adapter) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	for attempt := 1; attempt <= MaxTransactionAttempts; attempt++ {
		if err := a.ensureOnline(ctx); err != nil {
			return err
		}

		tx := &Tx{a: a, reads: make(map[docKey]models.Precondition)}
		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.writes) == 0 {
			return nil
		}

		commitTime, err := a.backend.Commit(ctx, tx.writes)
		if err == nil {
			for _, doc := range tx.written {
				doc.Sync.LastModified = commitTime
			}
			return nil
		}
		if !errors.Is(err, ErrPreconditionFailed) {
			return err
		}

		a.logger.Debug("Transaction lost a race, retrying", "attempt", attempt)
	}

	return fmt.Errorf("transaction aborted after %d attempts: %w", MaxTransactionAttempts, ErrPreconditionFailed)
}
