// Package auth управляет регистрацией, входом и локальной сессией клиента.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/worldkeeper/internal/client/storage"
	"github.com/iudanet/worldkeeper/internal/crypto"
	"github.com/iudanet/worldkeeper/internal/validation"
	pkgapi "github.com/iudanet/worldkeeper/pkg/api"
)

var (
	// ErrNotLoggedIn indicates that no session is stored
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrSessionExpired indicates that the stored access token has expired
	ErrSessionExpired = errors.New("session expired, please login again")
)

// RegisterResult содержит результат регистрации
type RegisterResult struct {
	UserID   string
	Username string
}

// Session is the logged in user on this device.
// FieldKey protects sensitive entity fields and is never sent to the server.
type Session struct {
	ExpiresAt   time.Time
	Username    string
	UserID      string
	AccessToken string
	FieldKey    []byte
}

type service struct {
	client  Client
	storage storage.AuthStorage
	logger  *slog.Logger
	now     func() time.Time
}

// NewService создает новый сервис авторизации
func NewService(client Client, authStorage storage.AuthStorage, logger *slog.Logger) Service {
	return &service{
		client:  client,
		storage: authStorage,
		logger:  logger,
		now:     time.Now,
	}
}

// Register регистрирует нового пользователя
func (s *service) Register(ctx context.Context, username, password string) (*RegisterResult, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.client.Register(ctx, pkgapi.RegisterRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	s.logger.Info("User registered", "username", username, "user_id", resp.UserID)
	return &RegisterResult{UserID: resp.UserID, Username: username}, nil
}

// Login выполняет аутентификацию и сохраняет сессию
func (s *service) Login(ctx context.Context, username, password string) (*Session, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("invalid password: password cannot be empty")
	}

	resp, err := s.client.Login(ctx, pkgapi.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// ключ полей выводится из пароля и соли сервера, поэтому одинаков на всех устройствах
	salt, err := base64.StdEncoding.DecodeString(resp.FieldSalt)
	if err != nil {
		return nil, fmt.Errorf("invalid field salt from server: %w", err)
	}
	fieldKey, err := crypto.DeriveFieldKey(password, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive field key: %w", err)
	}

	session := &Session{
		Username:    username,
		UserID:      resp.UserID,
		AccessToken: resp.AccessToken,
		FieldKey:    fieldKey,
		ExpiresAt:   s.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	err = s.storage.SaveAuth(ctx, &storage.AuthData{
		Username:    session.Username,
		UserID:      session.UserID,
		AccessToken: session.AccessToken,
		FieldKey:    base64.StdEncoding.EncodeToString(fieldKey),
		ExpiresAt:   session.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("User logged in", "username", username, "user_id", resp.UserID)
	return session, nil
}

// Session возвращает действующую сессию
func (s *service) Session(ctx context.Context) (*Session, error) {
	data, err := s.storage.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	expiresAt := time.Unix(data.ExpiresAt, 0)
	if !s.now().Before(expiresAt) {
		return nil, ErrSessionExpired
	}

	fieldKey, err := base64.StdEncoding.DecodeString(data.FieldKey)
	if err != nil {
		return nil, fmt.Errorf("corrupted session field key: %w", err)
	}

	return &Session{
		Username:    data.Username,
		UserID:      data.UserID,
		AccessToken: data.AccessToken,
		FieldKey:    fieldKey,
		ExpiresAt:   expiresAt,
	}, nil
}

// Logout удаляет локальную сессию
func (s *service) Logout(ctx context.Context) error {
	if err := s.storage.DeleteAuth(ctx); err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotLoggedIn
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Info("User logged out")
	return nil
}
