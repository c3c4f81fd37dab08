package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/worldkeeper/internal/models"
)

var (
	keySettings          = []byte("settings")
	keyLastSyncTime      = []byte("last_sync_time")
	keyPendingOperations = []byte("pending_operations")
	keyDeviceID          = []byte("device_id")
)

// SaveSettings persists sync settings as JSON
func (s *Storage) SaveSettings(ctx context.Context, settings models.SyncSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return s.put(bucketMetadata, keySettings, data)
}

// GetSettings returns persisted settings or models.DefaultSyncSettings
func (s *Storage) GetSettings(ctx context.Context) (models.SyncSettings, error) {
	settings := models.DefaultSyncSettings()

	data, err := s.get(bucketMetadata, keySettings)
	if err != nil {
		return settings, fmt.Errorf("failed to get settings: %w", err)
	}
	if data == nil {
		return settings, nil
	}

	// поля, которых нет в сохранённом JSON, остаются по умолчанию
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.DefaultSyncSettings(), fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return settings, nil
}

// SaveLastSyncTime saves the time of the last completed sync
func (s *Storage) SaveLastSyncTime(ctx context.Context, t time.Time) error {
	// Конвертируем в bytes (unix nano, big endian)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return s.put(bucketMetadata, keyLastSyncTime, buf)
}

// GetLastSyncTime returns nil if no sync has been performed yet
func (s *Storage) GetLastSyncTime(ctx context.Context) (*time.Time, error) {
	data, err := s.get(bucketMetadata, keyLastSyncTime)
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}
	if len(data) != 8 {
		return nil, nil
	}

	t := time.Unix(0, int64(binary.BigEndian.Uint64(data))).UTC()
	return &t, nil
}

// SavePendingOperations replaces the persisted queue
func (s *Storage) SavePendingOperations(ctx context.Context, ops []models.PendingOperation) error {
	if ops == nil {
		ops = []models.PendingOperation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal pending operations: %w", err)
	}
	return s.put(bucketMetadata, keyPendingOperations, data)
}

// GetPendingOperations returns the persisted queue in enqueue order
func (s *Storage) GetPendingOperations(ctx context.Context) ([]models.PendingOperation, error) {
	data, err := s.get(bucketMetadata, keyPendingOperations)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending operations: %w", err)
	}

	ops := []models.PendingOperation{}
	if data == nil {
		return ops, nil
	}
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending operations: %w", err)
	}
	return ops, nil
}

// DeviceID returns the stored device id, generating one on first call
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		if data := b.Get(keyDeviceID); data != nil {
			id = string(data)
			return nil
		}
		id = uuid.NewString()
		return b.Put(keyDeviceID, []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("failed to get device id: %w", err)
	}
	return id, nil
}
