// Package access builds the access filters applied to every retrieval:
// the monotonic clearance cascade plus an optional role-based policy
// engine consulted per item.
package access

import (
	"context"

	"github.com/surisearch/suri-search/internal/vector"
)

// Clearance levels, lowest first. A user at level L sees all content
// tagged at levels <= L.
const (
	LevelPublic   = "public"
	LevelBasic    = "basic"
	LevelStandard = "standard"
	LevelAdvanced = "advanced"
)

// levelOrder is the cascade: each level includes everything before it.
var levelOrder = []string{LevelPublic, LevelBasic, LevelStandard, LevelAdvanced}

// AllowedLevels returns the set of content levels visible at the given
// clearance. Unknown clearances degrade to public only.
func AllowedLevels(clearance string) []string {
	for i, lvl := range levelOrder {
		if lvl == clearance {
			return append([]string(nil), levelOrder[:i+1]...)
		}
	}
	return []string{LevelPublic}
}

// Decision is one per-item access check outcome.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PolicyEngine is the role-based access collaborator. Optional: retrieval
// works with only the clearance cascade when no engine is configured.
type PolicyEngine interface {
	// BuildFilter returns a role-derived filter fragment for the user,
	// ANDed into the retrieval filter.
	BuildFilter(ctx context.Context, userID string) (*vector.Filter, error)

	// CanAccessContent checks one retrieved item's scoping metadata.
	CanAccessContent(ctx context.Context, userID string, md vector.Metadata) (Decision, error)
}

// BuildFilter assembles the base access filter for a query. Unauthenticated
// callers are restricted to public-tagged content only.
func BuildFilter(clearance, userID string) *vector.Filter {
	if userID == "" {
		return &vector.Filter{PublicOnly: true}
	}
	return &vector.Filter{AccessLevels: AllowedLevels(clearance)}
}

// MergeFilters ANDs a role-derived fragment into the base filter. Only
// fields the base leaves unset are taken from the fragment; the clearance
// cascade is never widened.
func MergeFilters(base, role *vector.Filter) *vector.Filter {
	if role == nil {
		return base
	}
	if base == nil {
		return role
	}

	merged := *base
	if merged.EmployeeID == "" {
		merged.EmployeeID = role.EmployeeID
	}
	if merged.CategorySlug == "" {
		merged.CategorySlug = role.CategorySlug
	}
	if merged.SchemaSlug == "" {
		merged.SchemaSlug = role.SchemaSlug
	}
	if merged.ChunkType == "" {
		merged.ChunkType = role.ChunkType
	}
	if merged.Period == "" {
		merged.Period = role.Period
	}
	if role.PublicOnly {
		merged.PublicOnly = true
	}
	return &merged
}
