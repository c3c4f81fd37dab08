package storage

import (
	"context"
	"strings"

	"github.com/iudanet/worldkeeper/internal/models"
)

// LocalStore is durable key-value storage of serialized entity collections.
// It performs no merge logic: Set replaces the whole value under a key.
type LocalStore interface {
	// Get returns the value stored under key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists stored keys starting with prefix, in byte order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CollectionKey returns the local key of a collection:
// "<entityType>_<worldId>" for world partitions, bare "<entityType>" otherwise.
func CollectionKey(entityType models.EntityType, worldID string) string {
	if worldID == "" {
		return string(entityType)
	}
	return string(entityType) + "_" + worldID
}

// ParseCollectionKey splits a key produced by CollectionKey.
// The entity kind must be one of the known kinds.
func ParseCollectionKey(key string) (models.EntityType, string, bool) {
	if models.EntityType(key).Valid() {
		return models.EntityType(key), "", true
	}
	kind, worldID, ok := strings.Cut(key, "_")
	if !ok || worldID == "" || !models.EntityType(kind).Valid() {
		return "", "", false
	}
	return models.EntityType(kind), worldID, true
}
