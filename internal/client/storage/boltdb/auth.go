package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/worldkeeper/internal/client/storage"
)

// keySession хранит единственную сессию устройства
var keySession = []byte("session")

// SaveAuth replaces the stored session
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}
	return s.put(bucketAuth, keySession, data)
}

// GetAuth returns the stored session or storage.ErrAuthNotFound
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	data, err := s.get(bucketAuth, keySession)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, storage.ErrAuthNotFound
	}

	auth := &storage.AuthData{}
	if err := json.Unmarshal(data, auth); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth data: %w", err)
	}
	return auth, nil
}

// DeleteAuth removes the session. Without one it returns storage.ErrAuthNotFound.
func (s *Storage) DeleteAuth(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketAuth)
		if err != nil {
			return err
		}
		if b.Get(keySession) == nil {
			return storage.ErrAuthNotFound
		}
		if err := b.Delete(keySession); err != nil {
			return fmt.Errorf("failed to delete auth data: %w", err)
		}
		return nil
	})
}
