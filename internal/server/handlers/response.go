package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/worldkeeper/internal/server/storage"
	"github.com/iudanet/worldkeeper/pkg/api"
)

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	sendJSON(logger, w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}

// storageStatus maps a storage error to the HTTP status the client expects.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrDocumentNotFound), errors.Is(err, storage.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
