package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/server/storage"
	"github.com/iudanet/worldkeeper/internal/validation"
	"github.com/iudanet/worldkeeper/pkg/api"
)

// MaxCommitWrites ограничивает размер одного атомарного коммита
const MaxCommitWrites = 500

// DocumentHandler обрабатывает запросы к коллекциям документов
type DocumentHandler struct {
	logger   *slog.Logger
	storage  storage.DocumentStorage
	notifier *Notifier
}

// NewDocumentHandler создает новый handler для документов
func NewDocumentHandler(logger *slog.Logger, docStorage storage.DocumentStorage, notifier *Notifier) *DocumentHandler {
	return &DocumentHandler{
		logger:   logger,
		storage:  docStorage,
		notifier: notifier,
	}
}

// pathCollection извлекает и проверяет имя коллекции из пути
func pathCollection(r *http.Request) (string, error) {
	collection := r.PathValue("collection")
	if err := validation.ValidateEntityType(models.EntityType(collection)); err != nil {
		return "", err
	}
	return collection, nil
}

// GetDocument обрабатывает GET /api/v1/collections/{collection}/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collection, err := pathCollection(r)
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if err := validation.ValidateID(id); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := h.storage.GetDocument(ctx, userID, collection, id)
	if err != nil {
		status := storageStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to get document", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", status)
			return
		}
		sendError(h.logger, w, err.Error(), status)
		return
	}

	sendJSON(h.logger, w, doc, http.StatusOK)
}

// Query обрабатывает POST /api/v1/collections/{collection}/query
func (h *DocumentHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collection, err := pathCollection(r)
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode query request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	docs, err := h.storage.QueryDocuments(ctx, userID, models.Query{
		Collection: collection,
		Filters:    req.Filters,
		OrderBy:    req.OrderBy,
	})
	if err != nil {
		status := storageStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to query documents", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", status)
			return
		}
		sendError(h.logger, w, err.Error(), status)
		return
	}

	sendJSON(h.logger, w, api.QueryResponse{Documents: docs}, http.StatusOK)
}

// validateWrite проверяет одну запись коммита до обращения к хранилищу
func validateWrite(wr models.Write) error {
	if err := validation.ValidateEntityType(models.EntityType(wr.Collection)); err != nil {
		return err
	}
	if err := validation.ValidateID(wr.ID); err != nil {
		return err
	}
	switch wr.Op {
	case models.WriteSet:
		if wr.Document == nil {
			return fmt.Errorf("set %s/%s without document", wr.Collection, wr.ID)
		}
	case models.WriteDelete:
	default:
		return fmt.Errorf("unknown write op %q", wr.Op)
	}
	return nil
}

// Commit обрабатывает POST /api/v1/commit
// Все записи применяются атомарно; при нарушении предусловия ничего не пишется
func (h *DocumentHandler) Commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode commit request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Writes) == 0 {
		sendError(h.logger, w, "commit without writes", http.StatusBadRequest)
		return
	}
	if len(req.Writes) > MaxCommitWrites {
		sendError(h.logger, w, fmt.Sprintf("too many writes: max %d", MaxCommitWrites), http.StatusBadRequest)
		return
	}
	for _, wr := range req.Writes {
		if err := validateWrite(wr); err != nil {
			sendError(h.logger, w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	commitTime, err := h.storage.Commit(ctx, userID, req.Writes)
	if err != nil {
		status := storageStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to commit writes", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", status)
			return
		}
		h.logger.InfoContext(ctx, "commit rejected",
			slog.String("user_id", userID),
			slog.Any("error", err))
		sendError(h.logger, w, err.Error(), status)
		return
	}

	if h.notifier != nil {
		h.notifier.Publish(userID)
	}

	h.logger.InfoContext(ctx, "writes committed",
		slog.String("user_id", userID),
		slog.Int("writes", len(req.Writes)))

	sendJSON(h.logger, w, api.CommitResponse{CommitTime: commitTime}, http.StatusOK)
}

// parseSince читает курсор ленты изменений из query-параметра
func parseSince(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, fmt.Errorf("invalid since parameter: %q", raw)
	}
	return since, nil
}

// Changes обрабатывает GET /api/v1/collections/{collection}/changes?since=N
func (h *DocumentHandler) Changes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	collection, err := pathCollection(r)
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	since, err := parseSince(r)
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	set, err := h.storage.Changes(ctx, userID, collection, since, 0)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get changes", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, set, http.StatusOK)
}
