package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/worldkeeper/internal/models"
)

// ConflictType classifies a divergence found by DetectConflicts.
type ConflictType string

const (
	// ConflictVersion: the two sides have different versions.
	ConflictVersion ConflictType = "version"
	// ConflictConcurrent: same version, different change vectors; two writes raced.
	ConflictConcurrent ConflictType = "concurrent"
	// ConflictDeleted: the document exists locally but no longer remotely.
	ConflictDeleted ConflictType = "deleted"
)

// RemoteConflict pairs a local document with its remote counterpart.
// Remote is nil for ConflictDeleted.
type RemoteConflict struct {
	Local  *models.Document
	Remote *models.Document
	Type   ConflictType
	ID     string
}

// DetectConflicts fetches the remote counterpart of every local document and
// reports those that diverge. Identical documents are not reported.
func (a *Adapter) DetectConflicts(ctx context.Context, collection string, local []*models.Document) ([]RemoteConflict, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return nil, err
	}

	var conflicts []RemoteConflict
	for _, l := range local {
		r, err := a.backend.GetDocument(ctx, collection, l.ID())
		if errors.Is(err, ErrDocumentNotFound) {
			conflicts = append(conflicts, RemoteConflict{ID: l.ID(), Type: ConflictDeleted, Local: l})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s/%s: %w", collection, l.ID(), err)
		}
		if r, err = a.open(r); err != nil {
			return nil, err
		}

		switch {
		case l.Sync.Version != r.Sync.Version:
			conflicts = append(conflicts, RemoteConflict{ID: l.ID(), Type: ConflictVersion, Local: l, Remote: r})
		case l.Sync.ChangeVector != r.Sync.ChangeVector:
			conflicts = append(conflicts, RemoteConflict{ID: l.ID(), Type: ConflictConcurrent, Local: l, Remote: r})
		}
	}

	return conflicts, nil
}
