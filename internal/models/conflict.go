package models

import "time"

// Importance ranks how much a field matters when two versions disagree.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Strategy selects how a single document conflict is resolved.
type Strategy string

const (
	StrategyLocalWins  Strategy = "local-wins"
	StrategyRemoteWins Strategy = "remote-wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyLocalWins, StrategyRemoteWins, StrategyMerge, StrategyManual:
		return true
	}
	return false
}

// ConflictPolicy is the global, user-configured conflict handling mode.
type ConflictPolicy string

const (
	PolicyAutoMerge  ConflictPolicy = "auto-merge"
	PolicyLocalWins  ConflictPolicy = "local-wins"
	PolicyRemoteWins ConflictPolicy = "remote-wins"
	PolicyAsk        ConflictPolicy = "ask"
)

// Strategy maps the policy to the resolver strategy it applies.
// PolicyAsk maps to StrategyManual.
func (p ConflictPolicy) Strategy() Strategy {
	switch p {
	case PolicyLocalWins:
		return StrategyLocalWins
	case PolicyRemoteWins:
		return StrategyRemoteWins
	case PolicyAsk:
		return StrategyManual
	default:
		return StrategyMerge
	}
}

// Valid reports whether p is one of the known policies.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyAutoMerge, PolicyLocalWins, PolicyRemoteWins, PolicyAsk:
		return true
	}
	return false
}

// FieldConflict describes one field whose value differs between two versions
// of a document. It only lives for the duration of a resolution pass.
type FieldConflict struct {
	LocalValue    any        // LocalValue значение на локальной стороне (nil, если поля нет)
	RemoteValue   any        // RemoteValue значение на удалённой стороне (nil, если поля нет)
	BaseValue     any        // BaseValue значение в общем предке, если он известен
	Field         string     // Field имя поля
	Importance    Importance // Importance важность поля
	LocalPresent  bool       // LocalPresent поле присутствует в локальной версии
	RemotePresent bool       // RemotePresent поле присутствует в удалённой версии
	HasBase       bool       // HasBase BaseValue задан
	CanAutoMerge  bool       // CanAutoMerge поле можно слить без участия пользователя
}

// ResolutionMetadata reports what happened while resolving a conflict.
type ResolutionMetadata struct {
	DiscardedChanges     map[string]any `json:"discardedChanges"`     // значения, перезаписанные без слияния
	MergedFields         []string       `json:"mergedFields"`         // поля, слитые автоматически
	Confidence           float64        `json:"confidence"`           // уверенность в результате, [0, 1]
	RequiresManualReview bool           `json:"requiresManualReview"` // нужен ли ручной просмотр
}

// ConflictResolution is the outcome of resolving one document conflict.
type ConflictResolution struct {
	Document *Document         `json:"document"`
	Strategy Strategy          `json:"strategy"`
	Metadata ResolutionMetadata `json:"metadata"`
}

// SyncConflict is a detected local/remote divergence waiting to be applied.
type SyncConflict struct {
	DetectedAt time.Time           `json:"detectedAt"`
	Local      *Document           `json:"local"`
	Remote     *Document           `json:"remote"`
	Resolution *ConflictResolution `json:"resolution,omitempty"`
	ID         string              `json:"id"`
	EntityType EntityType          `json:"entityType"`
}
