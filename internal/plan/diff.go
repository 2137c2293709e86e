package plan

import (
	"bytes"
	"encoding/json"

	"caseshare.org/internal/cases"
)

// FieldChange records the before/after values of one changed content key.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Diff is a field-level comparison of two plan versions' content.
type Diff struct {
	Added   map[string]any         `json:"added,omitempty"`
	Removed map[string]any         `json:"removed,omitempty"`
	Changed map[string]FieldChange `json:"changed,omitempty"`
}

// Empty reports whether the two contents were identical.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// CompareContent diffs two content maps key by key. It is a pure function:
// comparing a content with itself always yields an empty diff.
func CompareContent(from, to cases.PlanContent) Diff {
	d := Diff{
		Added:   map[string]any{},
		Removed: map[string]any{},
		Changed: map[string]FieldChange{},
	}
	for key, oldVal := range from {
		newVal, ok := to[key]
		if !ok {
			d.Removed[key] = oldVal
			continue
		}
		if !jsonEqual(oldVal, newVal) {
			d.Changed[key] = FieldChange{From: oldVal, To: newVal}
		}
	}
	for key, newVal := range to {
		if _, ok := from[key]; !ok {
			d.Added[key] = newVal
		}
	}
	return d
}

// jsonEqual compares values through their JSON encoding so that contents
// round-tripped through storage compare equal to their in-memory originals.
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
