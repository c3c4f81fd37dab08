package validation

import (
	"fmt"
	"regexp"

	"github.com/iudanet/worldkeeper/internal/models"
)

// IDPattern limits ids to characters that are safe in storage keys and URL paths.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateEntityType checks that t names a known collection.
func ValidateEntityType(t models.EntityType) error {
	if !t.Valid() {
		return fmt.Errorf("unknown entity type %q", t)
	}
	return nil
}

// ValidateID checks a document id.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("id %q can only contain letters, numbers, '-' and '_' (max 128)", id)
	}
	return nil
}

// ValidateEntity checks an entity before it is stored locally.
// World-scoped entities must name their world.
func ValidateEntity(t models.EntityType, e models.Entity) error {
	if err := ValidateEntityType(t); err != nil {
		return err
	}
	if err := ValidateID(e.ID()); err != nil {
		return err
	}
	if t.WorldScoped() && e.WorldID() == "" {
		return fmt.Errorf("%s must have a worldId", t)
	}
	if name, ok := e["name"]; ok {
		if _, isString := name.(string); !isString {
			return fmt.Errorf("name must be a string")
		}
	}
	return nil
}
