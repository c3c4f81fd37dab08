package storage

import (
	"context"
)

// AuthStorage defines interface for storing authentication data on client
type AuthStorage interface {
	// SaveAuth stores authentication data
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	// Returns ErrAuthNotFound if there is nothing to remove
	DeleteAuth(ctx context.Context) error
}

// AuthData represents the session of the logged in user.
// FieldKey is the base64 key protecting provider api keys; it never leaves the device.
type AuthData struct {
	Username    string `json:"username"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	FieldKey    string `json:"field_key"`
	ExpiresAt   int64  `json:"expires_at"`
}
