package remote

import "errors"

var (
	// ErrOffline is returned before any remote call when the device is offline
	ErrOffline = errors.New("network required: device is offline")

	// ErrVersionConflict indicates that the expected version does not match the remote one
	ErrVersionConflict = errors.New("version conflict")

	// ErrDocumentNotFound indicates that the remote document does not exist
	ErrDocumentNotFound = errors.New("document not found")

	// ErrPreconditionFailed is returned by a backend commit whose preconditions
	// no longer hold because another writer got there first
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnauthorized indicates missing or rejected credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidDocument indicates a document without an id or with a bad shape
	ErrInvalidDocument = errors.New("invalid document")
)

// permanent reports whether retrying err cannot help.
func permanent(err error) bool {
	return errors.Is(err, ErrOffline) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrPreconditionFailed) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidDocument)
}
