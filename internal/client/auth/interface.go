package auth

import (
	"context"

	pkgapi "github.com/iudanet/worldkeeper/pkg/api"
)

// Client is the part of the server API the auth service needs.
type Client interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error)
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
}

// Service defines authentication and session operations of the client.
type Service interface {
	// Register регистрирует нового пользователя; сессию не создает
	Register(ctx context.Context, username, password string) (*RegisterResult, error)

	// Login выполняет аутентификацию, выводит ключ полей и сохраняет сессию
	Login(ctx context.Context, username, password string) (*Session, error)

	// Session возвращает действующую сессию.
	// ErrNotLoggedIn если сессии нет, ErrSessionExpired если токен истек
	Session(ctx context.Context) (*Session, error)

	// Logout удаляет локальную сессию
	Logout(ctx context.Context) error
}
