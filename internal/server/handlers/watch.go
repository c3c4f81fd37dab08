package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/worldkeeper/internal/server/storage"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = (watchPongWait * 9) / 10
)

// WatchHandler отдает ленту изменений коллекции через websocket.
type WatchHandler struct {
	logger   *slog.Logger
	storage  storage.DocumentStorage
	notifier *Notifier
	upgrader websocket.Upgrader
}

// NewWatchHandler создает новый handler для watch-соединений
func NewWatchHandler(logger *slog.Logger, docStorage storage.DocumentStorage, notifier *Notifier) *WatchHandler {
	return &WatchHandler{
		logger:   logger,
		storage:  docStorage,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Watch обрабатывает GET /api/v1/collections/{collection}/watch?since=N
// Каждое изменение после since отправляется отдельным JSON сообщением models.Change
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
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

	// подписываемся до апгрейда, чтобы не пропустить коммит между чтением ленты и ожиданием
	signal, unsubscribe := h.notifier.Subscribe(userID)
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to upgrade watch connection", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// читаем только control frames; закрытие клиентом отменяет ctx
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.InfoContext(ctx, "watch started",
		slog.String("user_id", userID),
		slog.String("collection", collection),
		slog.Int64("since", since))

	ping := time.NewTicker(watchPingPeriod)
	defer ping.Stop()

	cursor := since
	for {
		cursor, err = h.flush(ctx, conn, userID, collection, cursor)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.WarnContext(ctx, "watch stream failed", slog.Any("error", err))
			}
			return
		}

		select {
		case <-ctx.Done():
			h.logger.InfoContext(r.Context(), "watch closed",
				slog.String("user_id", userID),
				slog.String("collection", collection))
			return
		case <-signal:
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush отправляет все изменения после cursor и возвращает новый курсор
func (h *WatchHandler) flush(ctx context.Context, conn *websocket.Conn, userID, collection string, cursor int64) (int64, error) {
	for {
		set, err := h.storage.Changes(ctx, userID, collection, cursor, 0)
		if err != nil {
			return cursor, err
		}
		for _, ch := range set.Changes {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(ch); err != nil {
				return cursor, err
			}
			cursor = ch.Seq
		}
		if len(set.Changes) == 0 {
			return cursor, nil
		}
	}
}
