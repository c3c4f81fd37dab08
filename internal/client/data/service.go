// Package data is the application-facing CRUD layer over the local store.
package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/worldkeeper/internal/client/storage"
	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/validation"
)

// ErrNotFound is returned when the entity does not exist locally.
var ErrNotFound = errors.New("entity not found")

// Queuer records local mutations for the remote store.
// It is implemented by sync.Manager.
type Queuer interface {
	QueueOperation(ctx context.Context, opType models.OperationType, entityType models.EntityType, data models.Entity) error
	Settings() models.SyncSettings
}

// Service определяет интерфейс клиентского data сервиса
type Service interface {
	Create(ctx context.Context, entityType models.EntityType, entity models.Entity) (models.Entity, error)
	Update(ctx context.Context, entityType models.EntityType, partial models.Entity) (models.Entity, error)
	Delete(ctx context.Context, entityType models.EntityType, id string) error
	Get(ctx context.Context, entityType models.EntityType, id string) (models.Entity, error)
	List(ctx context.Context, entityType models.EntityType, worldID string) ([]models.Entity, error)
}

type service struct {
	collections *storage.Collections
	queue       Queuer
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a data service. queue may be nil when sync is not configured.
func NewService(collections *storage.Collections, queue Queuer, logger *slog.Logger) Service {
	return &service{
		collections: collections,
		queue:       queue,
		logger:      logger,
		now:         time.Now,
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Create stores a new entity, generating its id when absent.
func (s *service) Create(ctx context.Context, entityType models.EntityType, entity models.Entity) (models.Entity, error) {
	e := entity.Clone()
	if e == nil {
		e = models.Entity{}
	}
	delete(e, models.SyncField)

	// Генерируем ID если не задан
	if e.ID() == "" {
		e[models.FieldID] = uuid.NewString()
	}
	now := timestamp(s.now())
	e[models.FieldCreatedAt] = now
	e[models.FieldUpdatedAt] = now

	if err := validation.ValidateEntity(entityType, e); err != nil {
		return nil, err
	}

	if err := s.collections.Upsert(ctx, entityType, e); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", entityType, err)
	}
	s.logger.Debug("Entity created", "entity_type", entityType, "id", e.ID())

	return e, s.enqueue(ctx, models.OperationCreate, entityType, e)
}

// Update merges partial over the stored entity. id and createdAt cannot change.
func (s *service) Update(ctx context.Context, entityType models.EntityType, partial models.Entity) (models.Entity, error) {
	current, err := s.Get(ctx, entityType, partial.ID())
	if err != nil {
		return nil, err
	}
	oldWorld := current.WorldID()

	for k, v := range partial {
		switch k {
		case models.FieldID, models.FieldCreatedAt, models.SyncField:
			continue
		}
		current[k] = models.CloneValue(v)
	}
	current[models.FieldUpdatedAt] = timestamp(s.now())

	if err := validation.ValidateEntity(entityType, current); err != nil {
		return nil, err
	}

	// сущность переехала в другой мир: убираем её из старого раздела
	if entityType.WorldScoped() && oldWorld != current.WorldID() {
		if _, err := s.collections.Remove(ctx, entityType, oldWorld, current.ID()); err != nil {
			return nil, fmt.Errorf("failed to move %s: %w", entityType, err)
		}
	}

	if err := s.collections.Upsert(ctx, entityType, current); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", entityType, err)
	}
	s.logger.Debug("Entity updated", "entity_type", entityType, "id", current.ID())

	return current, s.enqueue(ctx, models.OperationUpdate, entityType, current)
}

// Delete removes the entity locally and queues the remote delete.
func (s *service) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	current, err := s.Get(ctx, entityType, id)
	if err != nil {
		return err
	}

	if _, err := s.collections.Remove(ctx, entityType, current.WorldID(), id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", entityType, id, err)
	}
	s.logger.Debug("Entity deleted", "entity_type", entityType, "id", id)

	ref := models.Entity{models.FieldID: id}
	if wid := current.WorldID(); wid != "" {
		ref[models.FieldWorldID] = wid
	}
	return s.enqueue(ctx, models.OperationDelete, entityType, ref)
}

// Get returns the entity or ErrNotFound.
func (s *service) Get(ctx context.Context, entityType models.EntityType, id string) (models.Entity, error) {
	if err := validation.ValidateEntityType(entityType); err != nil {
		return nil, err
	}
	e, err := s.collections.Find(ctx, entityType, id)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", entityType, id, err)
	}
	return e, nil
}

// List returns the entities of one world, or of every world when worldID is empty.
func (s *service) List(ctx context.Context, entityType models.EntityType, worldID string) ([]models.Entity, error) {
	if err := validation.ValidateEntityType(entityType); err != nil {
		return nil, err
	}

	var (
		entities []models.Entity
		err      error
	)
	if worldID == "" || !entityType.WorldScoped() {
		entities, err = s.collections.LoadAll(ctx, entityType)
	} else {
		entities, err = s.collections.Load(ctx, entityType, worldID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}
	return entities, nil
}

// enqueue hands the mutation to the sync queue when sync is on.
// The local write already happened, so a queue failure is returned but not rolled back.
func (s *service) enqueue(ctx context.Context, opType models.OperationType, entityType models.EntityType, e models.Entity) error {
	if s.queue == nil || !s.queue.Settings().Enabled {
		return nil
	}
	if err := s.queue.QueueOperation(ctx, opType, entityType, e); err != nil {
		return fmt.Errorf("saved locally but failed to queue %s: %w", opType, err)
	}
	return nil
}
