// Package remote talks to the remote document store on behalf of the sync core.
//
// Every public operation first checks connectivity and fails fast with
// ErrOffline; queueing offline work is the caller's job. Writes stamp fresh
// sync metadata, sensitive provider keys are sealed before they leave the
// device and opened after they come back.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iudanet/worldkeeper/internal/changevector"
	"github.com/iudanet/worldkeeper/internal/client/network"
	"github.com/iudanet/worldkeeper/internal/crypto"
	"github.com/iudanet/worldkeeper/internal/models"
)

const (
	// DefaultRetryBase is the first backoff delay; it doubles on every retry.
	DefaultRetryBase = time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultPollInterval is used by subscriptions on backends without push.
	DefaultPollInterval = 5 * time.Second
)

// Adapter is the Remote Store Adapter.
type Adapter struct {
	backend      Backend
	checker      network.Checker
	logger       *slog.Logger
	cipher       *crypto.FieldCipher
	vectors      *changevector.Generator
	now          func() time.Time
	subs         *subscriptions
	userID       string
	retryBase    time.Duration
	pollInterval time.Duration
	maxRetries   uint64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithCipher enables sealing of sensitive fields.
func WithCipher(c *crypto.FieldCipher) Option {
	return func(a *Adapter) { a.cipher = c }
}

// WithUserID sets the modifiedBy stamp of written documents.
func WithUserID(id string) Option {
	return func(a *Adapter) { a.userID = id }
}

// WithChangeVectors sets the generator used for change vectors and device ids.
func WithChangeVectors(g *changevector.Generator) Option {
	return func(a *Adapter) { a.vectors = g }
}

// WithRetry overrides the backoff base and the retry count.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(a *Adapter) {
		a.retryBase = base
		a.maxRetries = maxRetries
	}
}

// WithPollInterval sets how often subscriptions poll a backend without push support.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) { a.pollInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter creates a Remote Store Adapter
func NewAdapter(backend Backend, checker network.Checker, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		backend:      backend,
		checker:      checker,
		logger:       logger,
		now:          time.Now,
		retryBase:    DefaultRetryBase,
		maxRetries:   DefaultMaxRetries,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.vectors == nil {
		a.vectors = changevector.New("unknown", a.now)
	}
	a.subs = newSubscriptions()
	return a
}

// ChangeVectors returns the generator stamping this adapter's writes.
func (a *Adapter) ChangeVectors() *changevector.Generator {
	return a.vectors
}

// ensureOnline is the connectivity gate of every public operation.
func (a *Adapter) ensureOnline(ctx context.Context) error {
	if !a.checker.IsOnline(ctx) {
		return ErrOffline
	}
	return nil
}

// stamp builds fresh metadata for a write of the given version.
func (a *Adapter) stamp(version int64) models.SyncMetadata {
	return models.SyncMetadata{
		LastModified: a.now().UTC(),
		ModifiedBy:   a.userID,
		Version:      version,
		DeviceID:     a.vectors.DeviceID(),
		ChangeVector: a.vectors.Next(),
	}
}

// CreateDocument writes entity with version 1, overwriting any document with the same id.
func (a *Adapter) CreateDocument(ctx context.Context, collection string, entity models.Entity) (*models.Document, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return nil, err
	}
	if entity.ID() == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}

	doc := &models.Document{Entity: entity.Clone(), Sync: a.stamp(1)}
	sealed, err := a.seal(doc)
	if err != nil {
		return nil, err
	}

	err = a.withRetry(ctx, "create", func(ctx context.Context) error {
		commitTime, err := a.backend.Commit(ctx, []models.Write{{
			Op:              models.WriteSet,
			Collection:      collection,
			ID:              doc.ID(),
			Document:        sealed,
			ServerTimestamp: true,
		}})
		if err != nil {
			return err
		}
		doc.Sync.LastModified = commitTime
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s/%s: %w", collection, doc.ID(), err)
	}

	a.logger.Debug("Document created", "collection", collection, "id", doc.ID())
	return doc, nil
}

// UpdateDocument merges partial over the remote document in one transaction.
// If expectedVersion is not nil and differs from the remote version the update
// fails with ErrVersionConflict and nothing is written.
func (a *Adapter) UpdateDocument(ctx context.Context, collection string, partial models.Entity, expectedVersion *int64) (*models.Document, error) {
	return a.rewrite(ctx, collection, partial, expectedVersion, func(current models.Entity) models.Entity {
		entity := current.Clone()
		for k, v := range partial {
			if k == models.SyncField {
				continue
			}
			entity[k] = models.CloneValue(v)
		}
		return entity
	})
}

// ReplaceDocument overwrites the remote document with entity as a whole:
// fields entity lacks are gone afterwards. Version checks are the same as
// in UpdateDocument.
func (a *Adapter) ReplaceDocument(ctx context.Context, collection string, entity models.Entity, expectedVersion *int64) (*models.Document, error) {
	return a.rewrite(ctx, collection, entity, expectedVersion, func(models.Entity) models.Entity {
		out := entity.Clone()
		delete(out, models.SyncField)
		return out
	})
}

// rewrite reads the current document, builds the new body with next and
// writes it with version+1 in one transaction.
func (a *Adapter) rewrite(ctx context.Context, collection string, entity models.Entity, expectedVersion *int64, next func(current models.Entity) models.Entity) (*models.Document, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return nil, err
	}
	id := entity.ID()
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}

	var updated *models.Document
	err := a.RunTransaction(ctx, func(tx *Tx) error {
		current, err := tx.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != current.Sync.Version {
			return fmt.Errorf("%w: expected version %d, remote has %d", ErrVersionConflict, *expectedVersion, current.Sync.Version)
		}

		updated = &models.Document{Entity: next(current.Entity), Sync: a.stamp(current.Sync.Version + 1)}
		return tx.Set(collection, updated)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}

	a.logger.Debug("Document updated", "collection", collection, "id", id, "version", updated.Sync.Version)
	return updated, nil
}

// DeleteDocument removes the document. Deleting a missing document succeeds.
func (a *Adapter) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := a.ensureOnline(ctx); err != nil {
		return err
	}

	err := a.withRetry(ctx, "delete", func(ctx context.Context) error {
		_, err := a.backend.Commit(ctx, []models.Write{{
			Op:         models.WriteDelete,
			Collection: collection,
			ID:         id,
		}})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}

	a.logger.Debug("Document deleted", "collection", collection, "id", id)
	return nil
}

// GetDocument returns the remote document or ErrDocumentNotFound.
func (a *Adapter) GetDocument(ctx context.Context, collection, id string) (*models.Document, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return nil, err
	}

	doc, err := a.backend.GetDocument(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return a.open(doc)
}

// QueryOption narrows GetCollection.
type QueryOption func(*models.Query)

// OrderBy sorts the result by field.
func OrderBy(field string, descending bool) QueryOption {
	return func(q *models.Query) {
		q.OrderBy = &models.OrderBy{Field: field, Descending: descending}
	}
}

// Where adds a filter; all filters must match.
func Where(field string, op models.FilterOp, value any) QueryOption {
	return func(q *models.Query) {
		q.Filters = append(q.Filters, models.Filter{Field: field, Op: op, Value: value})
	}
}

// GetCollection returns the documents of collection, optionally filtered and ordered.
func (a *Adapter) GetCollection(ctx context.Context, collection string, opts ...QueryOption) ([]*models.Document, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return nil, err
	}

	q := models.Query{Collection: collection}
	for _, opt := range opts {
		opt(&q)
	}
	for _, f := range q.Filters {
		if !f.Op.Valid() {
			return nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}

	docs, err := a.backend.QueryDocuments(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		opened, err := a.open(d)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

// UploadBlob stores binary content (voice recordings, attachments) and returns its URL.
// The reader is consumed once, so uploads are not retried.
func (a *Adapter) UploadBlob(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return "", err
	}

	blob, err := a.backend.PutBlob(ctx, name, contentType, r)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	a.logger.Info("Blob uploaded", "name", name, "size", blob.Size)
	return a.backend.BlobURL(blob), nil
}
