package storage

import (
	"context"
	"time"

	"github.com/iudanet/worldkeeper/internal/models"
)

// MetadataStorage defines interface for storing sync bookkeeping on client
type MetadataStorage interface {
	// SaveSettings persists sync settings
	SaveSettings(ctx context.Context, settings models.SyncSettings) error

	// GetSettings returns persisted settings, or the defaults if none were saved
	GetSettings(ctx context.Context) (models.SyncSettings, error)

	// SaveLastSyncTime saves the time of the last completed sync pass
	SaveLastSyncTime(ctx context.Context, t time.Time) error

	// GetLastSyncTime returns nil if no sync has been performed yet
	GetLastSyncTime(ctx context.Context) (*time.Time, error)

	// SavePendingOperations replaces the persisted operation queue
	SavePendingOperations(ctx context.Context, ops []models.PendingOperation) error

	// GetPendingOperations returns the persisted operation queue in enqueue order
	GetPendingOperations(ctx context.Context) ([]models.PendingOperation, error)

	// DeviceID returns this installation's device id, creating it on first use
	DeviceID(ctx context.Context) (string, error)
}
