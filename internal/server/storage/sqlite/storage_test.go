package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// setupTestStorage создает in-memory базу с применёнными миграциями
func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	return s, func() { _ = s.Close() }
}

func TestNew_MigratesAndPings(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.Ping(context.Background()))

	var tables int
	err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'documents', 'change_seq', 'blobs')`).Scan(&tables)
	require.NoError(t, err)
	require.Equal(t, 4, tables)
}
