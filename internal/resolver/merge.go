package resolver

import (
	"reflect"
	"strings"

	"github.com/iudanet/worldkeeper/internal/models"
)

// StringSeparator joins two divergent texts so that neither is lost.
const StringSeparator = "\n\n---\n\n"

// MergeArrays returns the union of local and remote: local elements first,
// in their order, followed by remote elements not already present.
func MergeArrays(local, remote []any) []any {
	result := make([]any, 0, len(local)+len(remote))
	for _, item := range local {
		if !containsValue(result, item) {
			result = append(result, item)
		}
	}
	for _, item := range remote {
		if !containsValue(result, item) {
			result = append(result, item)
		}
	}
	return result
}

func containsValue(items []any, v any) bool {
	for _, item := range items {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

// MergeStrings keeps the longer text when one contains the other,
// otherwise joins both with StringSeparator.
func MergeStrings(local, remote string) string {
	if strings.Contains(local, remote) {
		return local
	}
	if strings.Contains(remote, local) {
		return remote
	}
	return local + StringSeparator + remote
}

// MergeObjects is a shallow union of two objects; remote keys win on collision.
func MergeObjects(local, remote map[string]any) map[string]any {
	result := make(map[string]any, len(local)+len(remote))
	for k, v := range local {
		result[k] = models.CloneValue(v)
	}
	for k, v := range remote {
		result[k] = models.CloneValue(v)
	}
	return result
}

// LaterTimestamp returns whichever of the two timestamp values is later.
// Ties keep the local value.
func LaterTimestamp(local, remote any) any {
	lt, lok := models.ParseTimestamp(local)
	rt, rok := models.ParseTimestamp(remote)
	switch {
	case !lok:
		return remote
	case !rok:
		return local
	case rt.After(lt):
		return remote
	default:
		return local
	}
}

// primitiveArray reports whether v is an array whose elements are not objects or arrays.
func primitiveArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	for _, item := range arr {
		switch item.(type) {
		case map[string]any, []any:
			return nil, false
		}
	}
	return arr, true
}

// mergeValue applies the type-specific merge for an auto-mergeable conflict.
// The checks run in the same priority order as canAutoMerge.
func mergeValue(c models.FieldConflict) any {
	if l, ok := primitiveArray(c.LocalValue); ok {
		if r, ok := primitiveArray(c.RemoteValue); ok {
			return MergeArrays(l, r)
		}
	}
	if l, ok := c.LocalValue.(map[string]any); ok {
		if r, ok := c.RemoteValue.(map[string]any); ok {
			return MergeObjects(l, r)
		}
	}
	if _, ok := models.ParseTimestamp(c.LocalValue); ok {
		if _, ok := models.ParseTimestamp(c.RemoteValue); ok {
			return LaterTimestamp(c.LocalValue, c.RemoteValue)
		}
	}
	l, _ := c.LocalValue.(string)
	r, _ := c.RemoteValue.(string)
	return MergeStrings(l, r)
}
