package remote

import (
	"fmt"

	"github.com/iudanet/worldkeeper/internal/crypto"
	"github.com/iudanet/worldkeeper/internal/models"
)

const (
	fieldProviders = "providers"
	fieldFreeKeys  = "freeKeys"
	fieldAPIKey    = "apiKey"
)

// seal returns a copy of doc with every sensitive key encrypted.
func (a *Adapter) seal(doc *models.Document) (*models.Document, error) {
	out := doc.Clone()
	if a.cipher == nil {
		return out, nil
	}
	if err := transformSensitive(out.Entity, a.cipher.Seal); err != nil {
		return nil, fmt.Errorf("failed to seal sensitive fields of %s: %w", doc.ID(), err)
	}
	return out, nil
}

// open returns a copy of doc with every sealed key decrypted.
func (a *Adapter) open(doc *models.Document) (*models.Document, error) {
	out := doc.Clone()
	if a.cipher == nil {
		return out, nil
	}
	openIfSealed := func(s string) (string, error) {
		if !crypto.IsSealed(s) {
			return s, nil
		}
		return a.cipher.Open(s)
	}
	if err := transformSensitive(out.Entity, openIfSealed); err != nil {
		return nil, fmt.Errorf("failed to open sensitive fields of %s: %w", doc.ID(), err)
	}
	return out, nil
}

// transformSensitive rewrites providers.<name>.apiKey and freeKeys.<name> in place.
// Non-string values are left alone.
func transformSensitive(e models.Entity, fn func(string) (string, error)) error {
	if providers, ok := e[fieldProviders].(map[string]any); ok {
		for name, p := range providers {
			provider, ok := p.(map[string]any)
			if !ok {
				continue
			}
			key, ok := provider[fieldAPIKey].(string)
			if !ok || key == "" {
				continue
			}
			v, err := fn(key)
			if err != nil {
				return fmt.Errorf("providers.%s.apiKey: %w", name, err)
			}
			provider[fieldAPIKey] = v
		}
	}

	if freeKeys, ok := e[fieldFreeKeys].(map[string]any); ok {
		for name, k := range freeKeys {
			key, ok := k.(string)
			if !ok || key == "" {
				continue
			}
			v, err := fn(key)
			if err != nil {
				return fmt.Errorf("freeKeys.%s: %w", name, err)
			}
			freeKeys[name] = v
		}
	}

	return nil
}
