package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrDocumentNotFound indicates that the document does not exist or is deleted
	ErrDocumentNotFound = errors.New("document not found")

	// ErrPreconditionFailed indicates that a commit precondition no longer holds
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalidQuery indicates an unsupported filter, field name or ordering
	ErrInvalidQuery = errors.New("invalid query")

	// ErrBlobNotFound indicates that the blob does not exist
	ErrBlobNotFound = errors.New("blob not found")
)
