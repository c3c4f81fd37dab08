// Package resolver reconciles two versions of the same entity.
//
// The resolver never performs I/O: it compares a local and a remote document
// (and optionally their common ancestor), classifies the differing fields and
// produces a merged document together with a report of what was merged,
// what was discarded and how confident the result is.
package resolver

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/iudanet/worldkeeper/internal/models"
)

const (
	// manualPenalty multiplies the confidence for every field left for review.
	manualPenalty = 0.7
	// minConfidence is the floor of a merge-strategy confidence.
	minConfidence = 0.1
)

var (
	// ErrNilDocument is returned when one of the compared documents is missing.
	ErrNilDocument = errors.New("document is nil")
	// ErrIDMismatch is returned when the two documents are not the same entity.
	ErrIDMismatch = errors.New("documents have different ids")
	// ErrUnknownStrategy is returned for an unsupported resolution strategy.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// Resolver resolves document conflicts using per-entity-kind profiles.
type Resolver struct {
	profiles map[models.EntityType]Profile
	base     Profile
}

// New creates a resolver with the built-in entity profiles.
func New() *Resolver {
	return &Resolver{
		profiles: defaultProfiles(),
		base:     BaseProfile(),
	}
}

// WithProfile overrides the profile used for an entity kind.
func (r *Resolver) WithProfile(entityType models.EntityType, p Profile) *Resolver {
	r.profiles[entityType] = p
	return r
}

// Profile returns the profile for entityType, falling back to the base profile.
func (r *Resolver) Profile(entityType models.EntityType) Profile {
	if p, ok := r.profiles[entityType]; ok {
		return p
	}
	return r.base
}

// Resolve reconciles local and remote with the given strategy.
// base is optional and only reported back in the field conflicts.
func (r *Resolver) Resolve(entityType models.EntityType, local, remote, base *models.Document, strategy models.Strategy) (*models.ConflictResolution, error) {
	if local == nil || remote == nil {
		return nil, ErrNilDocument
	}
	if local.ID() != remote.ID() {
		return nil, fmt.Errorf("%w: %q vs %q", ErrIDMismatch, local.ID(), remote.ID())
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	conflicts, err := r.AnalyzeFieldConflicts(entityType, local, remote, base)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case models.StrategyLocalWins:
		return pickSide(strategy, local, conflicts, func(c models.FieldConflict) (any, bool) {
			return c.RemoteValue, c.RemotePresent
		}), nil
	case models.StrategyRemoteWins:
		return pickSide(strategy, remote, conflicts, func(c models.FieldConflict) (any, bool) {
			return c.LocalValue, c.LocalPresent
		}), nil
	case models.StrategyManual:
		return &models.ConflictResolution{
			Strategy: strategy,
			Document: local.Clone(),
			Metadata: models.ResolutionMetadata{
				MergedFields:         []string{},
				DiscardedChanges:     map[string]any{},
				RequiresManualReview: true,
				Confidence:           0,
			},
		}, nil
	default:
		return r.merge(local, conflicts)
	}
}

// pickSide returns the winner verbatim and records the loser's conflicting values.
func pickSide(strategy models.Strategy, winner *models.Document, conflicts []models.FieldConflict, loser func(models.FieldConflict) (any, bool)) *models.ConflictResolution {
	discarded := make(map[string]any, len(conflicts))
	for _, c := range conflicts {
		if v, ok := loser(c); ok {
			discarded[c.Field] = v
		}
	}
	return &models.ConflictResolution{
		Strategy: strategy,
		Document: winner.Clone(),
		Metadata: models.ResolutionMetadata{
			MergedFields:     []string{},
			DiscardedChanges: discarded,
			Confidence:       1,
		},
	}
}

// merge starts from local and folds every conflict into it.
func (r *Resolver) merge(local *models.Document, conflicts []models.FieldConflict) (*models.ConflictResolution, error) {
	entity, err := local.Entity.Normalize()
	if err != nil {
		return nil, err
	}
	merged := &models.Document{Entity: entity, Sync: local.Sync}

	meta := models.ResolutionMetadata{
		MergedFields:     []string{},
		DiscardedChanges: map[string]any{},
		Confidence:       1,
	}

	for _, c := range conflicts {
		if !c.CanAutoMerge || c.Importance == models.ImportanceCritical {
			meta.RequiresManualReview = true
			meta.Confidence *= manualPenalty

			// критичные поля остаются локальными до ручного разбора
			if c.Importance == models.ImportanceCritical {
				if !c.LocalPresent {
					merged.Entity[c.Field] = models.CloneValue(c.RemoteValue)
				}
				continue
			}
			if c.LocalPresent {
				meta.DiscardedChanges[c.Field] = c.LocalValue
			}
			merged.Entity[c.Field] = models.CloneValue(c.RemoteValue)
			continue
		}

		merged.Entity[c.Field] = mergeValue(c)
		meta.MergedFields = append(meta.MergedFields, c.Field)
	}

	meta.Confidence = math.Max(minConfidence, meta.Confidence)

	return &models.ConflictResolution{
		Strategy: models.StrategyMerge,
		Document: merged,
		Metadata: meta,
	}, nil
}

// AnalyzeFieldConflicts lists every field (except id and _sync) whose value differs
// between local and remote. A field missing on one side is still a conflict.
// Results are ordered by field name.
func (r *Resolver) AnalyzeFieldConflicts(entityType models.EntityType, local, remote, base *models.Document) ([]models.FieldConflict, error) {
	if local == nil || remote == nil {
		return nil, ErrNilDocument
	}

	l, err := local.Entity.Normalize()
	if err != nil {
		return nil, fmt.Errorf("failed to normalize local document: %w", err)
	}
	rm, err := remote.Entity.Normalize()
	if err != nil {
		return nil, fmt.Errorf("failed to normalize remote document: %w", err)
	}
	var b models.Entity
	if base != nil {
		if b, err = base.Entity.Normalize(); err != nil {
			return nil, fmt.Errorf("failed to normalize base document: %w", err)
		}
	}

	profile := r.Profile(entityType)

	fields := make(map[string]struct{}, len(l)+len(rm))
	for k := range l {
		fields[k] = struct{}{}
	}
	for k := range rm {
		fields[k] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		if k == models.FieldID || k == models.SyncField {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	conflicts := make([]models.FieldConflict, 0, len(names))
	for _, field := range names {
		lv, lok := l[field]
		rv, rok := rm[field]
		if lok == rok && reflect.DeepEqual(lv, rv) {
			continue
		}

		c := models.FieldConflict{
			Field:         field,
			LocalValue:    lv,
			RemoteValue:   rv,
			LocalPresent:  lok,
			RemotePresent: rok,
			Importance:    profile.ImportanceOf(field),
		}
		if b != nil {
			c.BaseValue, c.HasBase = b[field]
		}
		c.CanAutoMerge = canAutoMerge(profile, c)
		conflicts = append(conflicts, c)
	}

	return conflicts, nil
}

// canAutoMerge applies the auto-merge rules in priority order.
func canAutoMerge(p Profile, c models.FieldConflict) bool {
	if !c.LocalPresent || !c.RemotePresent {
		return false
	}

	// (a) массивы примитивов сливаются объединением
	if _, ok := primitiveArray(c.LocalValue); ok {
		if _, ok := primitiveArray(c.RemoteValue); ok {
			return true
		}
	}

	// (b) некритичные объекты сливаются поверхностно
	_, lObj := c.LocalValue.(map[string]any)
	_, rObj := c.RemoteValue.(map[string]any)
	if lObj && rObj && p.ObjectFields[c.Field] {
		return true
	}

	// (c) временные метки: берём более позднюю
	if _, ok := models.ParseTimestamp(c.LocalValue); ok {
		if _, ok := models.ParseTimestamp(c.RemoteValue); ok {
			return true
		}
	}

	// (d) текстовые поля склеиваются
	ls, lStr := c.LocalValue.(string)
	rs, rStr := c.RemoteValue.(string)
	if lStr && rStr && p.ConcatFields[c.Field] {
		return strings.TrimSpace(ls) != strings.TrimSpace(rs)
	}

	return false
}
