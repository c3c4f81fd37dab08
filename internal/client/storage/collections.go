package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/worldkeeper/internal/models"
)

// Collections reads and writes whole entity collections through a LocalStore.
// Every collection is stored as one JSON array under its CollectionKey.
type Collections struct {
	store LocalStore
}

// NewCollections creates a collection helper over store.
func NewCollections(store LocalStore) *Collections {
	return &Collections{store: store}
}

// Load returns the entities of one collection partition; a missing key is an empty collection.
func (c *Collections) Load(ctx context.Context, entityType models.EntityType, worldID string) ([]models.Entity, error) {
	return c.loadKey(ctx, CollectionKey(entityType, worldID))
}

func (c *Collections) loadKey(ctx context.Context, key string) ([]models.Entity, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return []models.Entity{}, nil
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", key, err)
	}

	var entities []models.Entity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode collection %s: %w", key, err)
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	return entities, nil
}

// Save replaces the entities of one collection partition.
func (c *Collections) Save(ctx context.Context, entityType models.EntityType, worldID string, entities []models.Entity) error {
	key := CollectionKey(entityType, worldID)
	if entities == nil {
		entities = []models.Entity{}
	}

	raw, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", key, err)
	}
	return nil
}

// partition returns the world partition an entity of entityType belongs to.
func partition(entityType models.EntityType, entity models.Entity) string {
	if entityType.WorldScoped() {
		return entity.WorldID()
	}
	return ""
}

// Upsert replaces the entity with the same id in its partition or appends it.
func (c *Collections) Upsert(ctx context.Context, entityType models.EntityType, entity models.Entity) error {
	if entity.ID() == "" {
		return fmt.Errorf("entity has no id")
	}

	worldID := partition(entityType, entity)
	entities, err := c.Load(ctx, entityType, worldID)
	if err != nil {
		return err
	}

	replaced := false
	for i, e := range entities {
		if e.ID() == entity.ID() {
			entities[i] = entity
			replaced = true
			break
		}
	}
	if !replaced {
		entities = append(entities, entity)
	}

	return c.Save(ctx, entityType, worldID, entities)
}

// Put stores entity in its partition and removes any copy with the same id
// from the other partitions of entityType, so an entity that changed worlds
// lives in exactly one place.
func (c *Collections) Put(ctx context.Context, entityType models.EntityType, entity models.Entity) error {
	if entity.ID() == "" {
		return fmt.Errorf("entity has no id")
	}

	keys, err := c.store.Keys(ctx, string(entityType))
	if err != nil {
		return fmt.Errorf("failed to list collections of %s: %w", entityType, err)
	}

	target := partition(entityType, entity)
	for _, key := range keys {
		kind, worldID, ok := ParseCollectionKey(key)
		if !ok || kind != entityType || worldID == target {
			continue
		}
		if _, err := c.Remove(ctx, entityType, worldID, entity.ID()); err != nil {
			return err
		}
	}

	return c.Upsert(ctx, entityType, entity)
}

// Remove deletes the entity with id from the partition. It reports whether anything was removed.
func (c *Collections) Remove(ctx context.Context, entityType models.EntityType, worldID, id string) (bool, error) {
	entities, err := c.Load(ctx, entityType, worldID)
	if err != nil {
		return false, err
	}

	kept := entities[:0]
	for _, e := range entities {
		if e.ID() != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entities) {
		return false, nil
	}

	return true, c.Save(ctx, entityType, worldID, kept)
}

// LoadAll returns the entities of every partition of entityType:
// the bare collection followed by each world partition in key order.
func (c *Collections) LoadAll(ctx context.Context, entityType models.EntityType) ([]models.Entity, error) {
	keys, err := c.store.Keys(ctx, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list collections of %s: %w", entityType, err)
	}

	all := []models.Entity{}
	for _, key := range keys {
		kind, _, ok := ParseCollectionKey(key)
		if !ok || kind != entityType {
			continue
		}
		entities, err := c.loadKey(ctx, key)
		if err != nil {
			return nil, err
		}
		all = append(all, entities...)
	}
	return all, nil
}

// Find looks an entity up by id across all partitions of entityType.
// Returns ErrKeyNotFound if it does not exist.
func (c *Collections) Find(ctx context.Context, entityType models.EntityType, id string) (models.Entity, error) {
	all, err := c.LoadAll(ctx, entityType)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.ID() == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", entityType, id, ErrKeyNotFound)
}
