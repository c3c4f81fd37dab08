package remote

import (
	"context"
	"io"
	"time"

	"github.com/iudanet/worldkeeper/internal/models"
)

// Backend is the remote document database of one authenticated user.
// Collections are scoped to that user by the backend itself.
type Backend interface {
	// Ping checks that the store is reachable
	Ping(ctx context.Context) error

	// GetDocument returns ErrDocumentNotFound if the document does not exist
	GetDocument(ctx context.Context, collection, id string) (*models.Document, error)

	// QueryDocuments returns the documents of q.Collection matching q
	QueryDocuments(ctx context.Context, q models.Query) ([]*models.Document, error)

	// Commit applies writes atomically and returns the server commit time.
	// Returns ErrPreconditionFailed if any precondition does not hold;
	// nothing is written in that case.
	Commit(ctx context.Context, writes []models.Write) (time.Time, error)

	// Changes returns changes of collection with a sequence greater than since
	Changes(ctx context.Context, collection string, since int64) (*models.ChangeSet, error)

	// PutBlob stores binary content
	PutBlob(ctx context.Context, name, contentType string, r io.Reader) (*models.Blob, error)

	// BlobURL returns a URL the blob can be fetched from
	BlobURL(blob *models.Blob) string
}

// Watcher is implemented by backends that can push changes.
// Watch blocks, calling fn for every change after since, until ctx is done or the stream fails.
type Watcher interface {
	Watch(ctx context.Context, collection string, since int64, fn func(models.Change)) error
}
