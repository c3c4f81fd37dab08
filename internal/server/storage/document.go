package storage

import (
	"context"
	"time"

	"github.com/iudanet/worldkeeper/internal/models"
)

// DocumentStorage persists the document collections of every user.
// All methods are scoped to one user; collections of different users never mix.
type DocumentStorage interface {
	// GetDocument returns ErrDocumentNotFound for missing and deleted documents
	GetDocument(ctx context.Context, userID, collection, id string) (*models.Document, error)

	// QueryDocuments returns live documents of q.Collection matching every filter.
	// Returns ErrInvalidQuery for unsupported fields or operators
	QueryDocuments(ctx context.Context, userID string, q models.Query) ([]*models.Document, error)

	// Commit applies writes atomically and returns the commit time.
	// Returns ErrPreconditionFailed, with nothing written, if a precondition does not hold
	Commit(ctx context.Context, userID string, writes []models.Write) (time.Time, error)

	// Changes returns up to limit changes of collection with a sequence greater than since,
	// deletions included, in sequence order
	Changes(ctx context.Context, userID, collection string, since int64, limit int) (*models.ChangeSet, error)
}

// BlobStorage persists binary attachments.
type BlobStorage interface {
	// PutBlob stores data under blob.ID; storing the same id again replaces it
	PutBlob(ctx context.Context, userID string, blob *models.Blob, data []byte) error

	// GetBlob returns ErrBlobNotFound if the blob does not exist
	GetBlob(ctx context.Context, userID, id string) (*models.Blob, []byte, error)
}
