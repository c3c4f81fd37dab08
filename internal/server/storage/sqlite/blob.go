package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/server/storage"
)

// PutBlob stores binary content of a user
func (s *Storage) PutBlob(ctx context.Context, userID string, blob *models.Blob, data []byte) error {
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = s.now().UTC()
	}
	blob.Size = int64(len(data))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (user_id, id, name, content_type, size, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = excluded.name,
			content_type = excluded.content_type,
			size = excluded.size,
			data = excluded.data
	`, userID, blob.ID, blob.Name, blob.ContentType, blob.Size, data, blob.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

// GetBlob retrieves a blob and its content
func (s *Storage) GetBlob(ctx context.Context, userID, id string) (*models.Blob, []byte, error) {
	var (
		blob      models.Blob
		data      []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, content_type, size, data, created_at
		FROM blobs WHERE user_id = ? AND id = ?
	`, userID, id).Scan(&blob.ID, &blob.Name, &blob.ContentType, &blob.Size, &data, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, storage.ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("failed to get blob: %w", err)
	}

	blob.CreatedAt = time.Unix(0, createdAt).UTC()
	return &blob, data, nil
}
