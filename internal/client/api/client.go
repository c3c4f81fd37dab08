// Package api реализует HTTP клиент сервера worldkeeper.
// Client служит remote.Backend и remote.Watcher для адаптера синхронизации.
package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/pkg/api"
)

// StatusError ошибка сервера с HTTP статусом
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Unwrap сопоставляет статус ошибкам адаптера, чтобы работал errors.Is
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return remote.ErrDocumentNotFound
	case http.StatusConflict:
		return remote.ErrPreconditionFailed
	case http.StatusUnauthorized:
		return remote.ErrUnauthorized
	case http.StatusBadRequest:
		return remote.ErrInvalidDocument
	}
	return nil
}

// StatusCode возвращает HTTP статус из ошибки клиента или 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
	compress   bool
	mu         sync.RWMutex
}

// NewClient создает новый API клиент
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Authorization переносим только в пределах того же хоста
				if len(via) > 0 && req.URL.Host == via[0].URL.Host {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetToken задает access token для защищенных запросов
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetCompression включает gzip для тел запросов
func (c *Client) SetCompression(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compress = enabled
}

func (c *Client) session() (token string, compress bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.compress
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Ping проверяет доступность сервера через GET /health
func (c *Client) Ping(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	return nil
}

func collectionPath(collection string) string {
	return "/api/v1/collections/" + url.PathEscape(collection)
}

// GetDocument implements remote.Backend
func (c *Client) GetDocument(ctx context.Context, collection, id string) (*models.Document, error) {
	var doc models.Document
	path := collectionPath(collection) + "/documents/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// QueryDocuments implements remote.Backend
func (c *Client) QueryDocuments(ctx context.Context, q models.Query) ([]*models.Document, error) {
	var resp api.QueryResponse
	req := api.QueryRequest{OrderBy: q.OrderBy, Filters: q.Filters}
	if err := c.doJSON(ctx, http.MethodPost, collectionPath(q.Collection)+"/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// Commit implements remote.Backend
func (c *Client) Commit(ctx context.Context, writes []models.Write) (time.Time, error) {
	var resp api.CommitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/commit", api.CommitRequest{Writes: writes}, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.CommitTime, nil
}

// Changes implements remote.Backend
func (c *Client) Changes(ctx context.Context, collection string, since int64) (*models.ChangeSet, error) {
	var set models.ChangeSet
	path := collectionPath(collection) + "/changes?since=" + strconv.FormatInt(since, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// PutBlob implements remote.Backend
func (c *Client) PutBlob(ctx context.Context, name, contentType string, r io.Reader) (*models.Blob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	var resp api.BlobResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/blobs/"+url.PathEscape(name), data, header, &resp); err != nil {
		return nil, err
	}
	return &resp.Blob, nil
}

// BlobURL implements remote.Backend
func (c *Client) BlobURL(blob *models.Blob) string {
	return c.baseURL + "/api/v1/blobs/" + url.PathEscape(blob.ID)
}

// Watch implements remote.Watcher over a websocket.
// It blocks until ctx is done or the stream breaks.
func (c *Client) Watch(ctx context.Context, collection string, since int64, fn func(models.Change)) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		collectionPath(collection) + "/watch?since=" + strconv.FormatInt(since, 10)

	token, _ := c.session()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("failed to open watch stream: %w", err)
	}
	defer conn.Close()

	// отмена ctx прерывает блокирующее чтение
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.logger.Debug("Watch stream opened", "collection", collection, "since", since)
	for {
		var ch models.Change
		if err := conn.ReadJSON(&ch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("watch stream failed: %w", err)
		}
		fn(ch)
	}
}

// doJSON кодирует body в JSON и выполняет запрос
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var (
		payload []byte
		header  = http.Header{}
	)
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, method, path, payload, header, result)
}

// do выполняет HTTP запрос; тело сжимается, если включена компрессия
func (c *Client) do(ctx context.Context, method, path string, payload []byte, header http.Header, result any) error {
	token, compress := c.session()

	var bodyReader io.Reader
	if payload != nil {
		if compress {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(payload); err != nil {
				return fmt.Errorf("failed to compress request body: %w", err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("failed to compress request body: %w", err)
			}
			payload = buf.Bytes()
			header.Set("Content-Encoding", "gzip")
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			statusErr.Message = errResp.Message
		}
		return statusErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
