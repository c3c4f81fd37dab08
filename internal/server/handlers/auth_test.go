package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/worldkeeper/internal/crypto"
	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/server/storage"
	"github.com/iudanet/worldkeeper/pkg/api"
)

// mockUserStorage is a mock implementation of UserStorage for testing
type mockUserStorage struct {
	users        map[string]*models.User // username -> User
	createError  error
	getUserError error
}

func (m *mockUserStorage) CreateUser(ctx context.Context, user *models.User) error {
	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.users[user.Username]; exists {
		return storage.ErrUserAlreadyExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockUserStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	user, ok := m.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

var testJWTConfig = JWTConfig{
	Secret:         []byte("test-secret"),
	AccessTokenTTL: 15 * time.Minute,
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestAuthHandler_Register_Success(t *testing.T) {
	userStorage := &mockUserStorage{users: make(map[string]*models.User)}
	handler := NewAuthHandler(setupTestLogger(), userStorage, testJWTConfig)

	w := postJSON(t, handler.Register, "/api/v1/auth/register", api.RegisterRequest{
		Username: "testuser",
		Password: "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var response api.RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.NotEmpty(t, response.UserID)

	user := userStorage.users["testuser"]
	require.NotNil(t, user)
	assert.Equal(t, response.UserID, user.ID)
	assert.NoError(t, crypto.VerifyPassword("correct horse battery", user.PasswordHash))

	salt, err := base64.StdEncoding.DecodeString(user.FieldSalt)
	require.NoError(t, err)
	assert.Len(t, salt, crypto.SaltSize)
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		createError error
		wantStatus  int
	}{
		{
			name:       "short username",
			body:       api.RegisterRequest{Username: "ab", Password: "correct horse battery"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "weak password",
			body:       api.RegisterRequest{Username: "testuser", Password: "short"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "duplicate",
			body:        api.RegisterRequest{Username: "testuser", Password: "correct horse battery"},
			createError: storage.ErrUserAlreadyExists,
			wantStatus:  http.StatusConflict,
		},
		{
			name:        "storage failure",
			body:        api.RegisterRequest{Username: "testuser", Password: "correct horse battery"},
			createError: errors.New("disk full"),
			wantStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userStorage := &mockUserStorage{users: make(map[string]*models.User), createError: tt.createError}
			handler := NewAuthHandler(setupTestLogger(), userStorage, testJWTConfig)

			w := postJSON(t, handler.Register, "/api/v1/auth/register", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestAuthHandler_Register_InvalidJSON(t *testing.T) {
	handler := NewAuthHandler(setupTestLogger(), &mockUserStorage{users: map[string]*models.User{}}, testJWTConfig)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func registeredUser(t *testing.T, password string) *mockUserStorage {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	return &mockUserStorage{users: map[string]*models.User{
		"testuser": {
			ID:           "user-1",
			Username:     "testuser",
			PasswordHash: hash,
			FieldSalt:    "c2FsdHNhbHRzYWx0c2FsdA==",
		},
	}}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	handler := NewAuthHandler(setupTestLogger(), registeredUser(t, "correct horse battery"), testJWTConfig)

	w := postJSON(t, handler.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "testuser",
		Password: "correct horse battery",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "c2FsdHNhbHRzYWx0c2FsdA==", resp.FieldSalt)
	assert.Equal(t, int64(900), resp.ExpiresIn)

	claims, err := ValidateAccessToken(testJWTConfig, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(setupTestLogger(), registeredUser(t, "correct horse battery"), testJWTConfig)

	w := postJSON(t, handler.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "testuser",
		Password: "wrong password here",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, handler.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "nobody",
		Password: "correct horse battery",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Login_StorageError(t *testing.T) {
	userStorage := &mockUserStorage{users: map[string]*models.User{}, getUserError: errors.New("db down")}
	handler := NewAuthHandler(setupTestLogger(), userStorage, testJWTConfig)

	w := postJSON(t, handler.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "testuser",
		Password: "correct horse battery",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidateAccessToken(t *testing.T) {
	token, expiresIn, err := GenerateAccessToken(testJWTConfig, "user-1", "testuser")
	require.NoError(t, err)
	assert.Equal(t, int64(900), expiresIn)

	_, err = ValidateAccessToken(JWTConfig{Secret: []byte("other")}, token)
	assert.Error(t, err)

	expired := JWTConfig{Secret: testJWTConfig.Secret, AccessTokenTTL: -time.Minute}
	old, _, err := GenerateAccessToken(expired, "user-1", "testuser")
	require.NoError(t, err)
	_, err = ValidateAccessToken(testJWTConfig, old)
	assert.Error(t, err)

	_, err = ValidateAccessToken(testJWTConfig, "not-a-token")
	assert.Error(t, err)
}
