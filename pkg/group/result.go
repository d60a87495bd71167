package group

import (
	"slices"
	"strconv"
	"strings"
)

// Action names the mutation a reconcile performed (or would perform).
type Action string

const (
	ActionNone    Action = "none"
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Change represents a single field change.
// The field name is the map key in Result.Changes.
type Change struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// Result is the outcome of one reconcile.
type Result struct {
	Name    string            `json:"name"`
	State   State             `json:"state"`
	Changed bool              `json:"changed"`
	Action  Action            `json:"action"`
	Changes map[string]Change `json:"changes,omitempty"`
	DryRun  bool              `json:"dry_run,omitempty"`
}

// SameSet reports whether a and b hold the same strings, ignoring order
// and duplicates. A nil slice equals an empty one.
func SameSet(a, b []string) bool {
	return slices.Equal(normalize(a), normalize(b))
}

// FormatList renders a string list the way it appears in a change record.
func FormatList(in []string) string {
	return strings.Join(normalize(in), ",")
}

// FormatInt renders an int32 the way it appears in a change record.
func FormatInt(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
