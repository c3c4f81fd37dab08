package api

import (
	"time"

	"github.com/iudanet/worldkeeper/internal/models"
)

// QueryRequest is the body of POST /collections/{collection}/query.
type QueryRequest struct {
	OrderBy *models.OrderBy `json:"orderBy,omitempty"`
	Filters []models.Filter `json:"filters,omitempty"`
}

// QueryResponse lists the matching documents.
type QueryResponse struct {
	Documents []*models.Document `json:"documents"`
}

// CommitRequest is an atomic batch of writes.
type CommitRequest struct {
	Writes []models.Write `json:"writes"`
}

// CommitResponse carries the server commit time.
type CommitResponse struct {
	CommitTime time.Time `json:"commitTime"`
}

// BlobResponse describes an uploaded blob.
type BlobResponse struct {
	Blob models.Blob `json:"blob"`
	URL  string      `json:"url"`
}
