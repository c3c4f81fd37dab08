package resolver

import "github.com/iudanet/worldkeeper/internal/models"

// Profile holds the per-entity-kind rules used while classifying field conflicts.
type Profile struct {
	// Importance maps a field name to its importance; unlisted fields are low.
	Importance map[string]models.Importance
	// ObjectFields are object-valued fields that may be merged by shallow union.
	ObjectFields map[string]bool
	// ConcatFields are text fields that may be merged by concatenation.
	ConcatFields map[string]bool
}

// ImportanceOf returns the importance of field under this profile.
func (p Profile) ImportanceOf(field string) models.Importance {
	if imp, ok := p.Importance[field]; ok {
		return imp
	}
	return models.ImportanceLow
}

// extend returns a copy of p with extra importance entries and concat fields.
func (p Profile) extend(importance map[string]models.Importance, concat ...string) Profile {
	out := Profile{
		Importance:   make(map[string]models.Importance, len(p.Importance)+len(importance)),
		ObjectFields: make(map[string]bool, len(p.ObjectFields)),
		ConcatFields: make(map[string]bool, len(p.ConcatFields)+len(concat)),
	}
	for k, v := range p.Importance {
		out.Importance[k] = v
	}
	for k, v := range importance {
		out.Importance[k] = v
	}
	for k := range p.ObjectFields {
		out.ObjectFields[k] = true
	}
	for k := range p.ConcatFields {
		out.ConcatFields[k] = true
	}
	for _, f := range concat {
		out.ConcatFields[f] = true
	}
	return out
}

// BaseProfile is shared by every entity kind.
func BaseProfile() Profile {
	return Profile{
		Importance: map[string]models.Importance{
			"id":          models.ImportanceCritical,
			"name":        models.ImportanceCritical,
			"title":       models.ImportanceCritical,
			"description": models.ImportanceHigh,
			"content":     models.ImportanceHigh,
			"type":        models.ImportanceHigh,
			"role":        models.ImportanceHigh,
			"tags":        models.ImportanceMedium,
			"categories":  models.ImportanceMedium,
			"properties":  models.ImportanceMedium,
			"attributes":  models.ImportanceMedium,
		},
		ObjectFields: map[string]bool{
			"metadata":   true,
			"properties": true,
			"attributes": true,
			"stats":      true,
		},
		ConcatFields: map[string]bool{
			"notes":       true,
			"description": true,
			"content":     true,
		},
	}
}

// defaultProfiles returns the built-in profile of every entity kind.
func defaultProfiles() map[models.EntityType]Profile {
	base := BaseProfile()

	return map[models.EntityType]Profile{
		models.EntityWorlds: base.extend(map[string]models.Importance{
			"genre": models.ImportanceHigh,
		}),
		models.EntityCharacters: base.extend(map[string]models.Importance{
			"species":   models.ImportanceMedium,
			"backstory": models.ImportanceHigh,
		}, "backstory"),
		models.EntityLocations: base.extend(map[string]models.Importance{
			"region": models.ImportanceMedium,
		}),
		models.EntityFactions: base.extend(map[string]models.Importance{
			"leader": models.ImportanceHigh,
		}),
		models.EntityItems: base,
		models.EntityLoreNotes: base.extend(nil, "body"),
		models.EntityMagicSystems: base.extend(map[string]models.Importance{
			"rules": models.ImportanceHigh,
		}, "rules"),
		models.EntityMythologies: base.extend(map[string]models.Importance{
			"pantheon": models.ImportanceMedium,
		}),
		models.EntityTimelines: base.extend(map[string]models.Importance{
			"events": models.ImportanceMedium,
			"date":   models.ImportanceMedium,
		}),
		models.EntitySettings: base,
	}
}
