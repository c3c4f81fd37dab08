package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/worldkeeper/internal/crypto"
	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/server/storage"
	"github.com/iudanet/worldkeeper/pkg/api"
)

// MaxBlobSize ограничивает размер загружаемого вложения
const MaxBlobSize = 32 << 20

// BlobHandler обрабатывает загрузку и выдачу вложений
type BlobHandler struct {
	logger  *slog.Logger
	storage storage.BlobStorage
	now     func() time.Time
}

// NewBlobHandler создает новый handler для вложений
func NewBlobHandler(logger *slog.Logger, blobStorage storage.BlobStorage) *BlobHandler {
	return &BlobHandler{logger: logger, storage: blobStorage, now: time.Now}
}

// BlobPath возвращает путь, по которому вложение доступно на сервере
func BlobPath(id string) string {
	return "/api/v1/blobs/" + id
}

// Put обрабатывает PUT /api/v1/blobs/{name}
// Идентификатор вложения это хеш содержимого, повторная загрузка идемпотентна
func (h *BlobHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	name := r.PathValue("name")
	if name == "" {
		sendError(h.logger, w, "blob name is required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBlobSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(h.logger, w, "blob too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(h.logger, w, "failed to read blob", http.StatusBadRequest)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	blob := &models.Blob{
		ID:          crypto.ContentHash(data),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   h.now().UTC(),
	}

	if err := h.storage.PutBlob(ctx, userID, blob, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to store blob", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "blob stored",
		slog.String("user_id", userID),
		slog.String("blob_id", blob.ID),
		slog.Int64("size", blob.Size))

	sendJSON(h.logger, w, api.BlobResponse{Blob: *blob, URL: BlobPath(blob.ID)}, http.StatusCreated)
}

// Get обрабатывает GET /api/v1/blobs/{id}
func (h *BlobHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	blob, data, err := h.storage.GetBlob(ctx, userID, r.PathValue("id"))
	if err != nil {
		status := storageStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to get blob", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", status)
			return
		}
		sendError(h.logger, w, "blob not found", status)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	http.ServeContent(w, r, blob.Name, blob.CreatedAt, bytes.NewReader(data))
}
