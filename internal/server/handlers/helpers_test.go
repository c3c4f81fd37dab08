package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/worldkeeper/internal/server/storage/sqlite"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestStore создает in-memory SQLite хранилище с миграциями
func setupTestStore(t *testing.T) *sqlite.Storage {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// asUser возвращает ctx с аутентифицированным пользователем
func asUser(ctx context.Context, userID string) context.Context {
	return WithUser(ctx, userID, "tester")
}
