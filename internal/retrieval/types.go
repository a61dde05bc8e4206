// Package retrieval fans out vector search across access-scoped partitions,
// merges and ranks the hits, hydrates content and applies per-item access
// checks.
package retrieval

import "github.com/surisearch/suri-search/internal/vector"

// Options scopes one retrieval.
type Options struct {
	// Persons lists target person identifiers (emp_<id> partitions).
	Persons []string

	// Categories lists target category slugs (cat_<slug> partitions).
	Categories []string

	// IncludeOrganization adds the organization-wide partition.
	IncludeOrganization bool

	// IncludePersonal adds the calling user's own partition.
	IncludePersonal bool

	// UserID identifies the caller; empty means unauthenticated.
	UserID string

	// Clearance is the caller's access level.
	Clearance string

	// SchemaSlug restricts hits to one schema's chunks when set.
	SchemaSlug string

	// Period restricts hits to one settlement period when set.
	Period string

	TopK     int
	MinScore float32
}

// Context is one retrieved chunk, hydrated. Ephemeral, produced per query.
type Context struct {
	ID           string  `json:"id"`
	Content      string  `json:"content"`
	Score        float32 `json:"score"`
	Partition    string  `json:"partition"`
	DocumentID   string  `json:"document_id,omitempty"`
	EmployeeID   string  `json:"employee_id,omitempty"`
	CategorySlug string  `json:"category_slug,omitempty"`
	ChunkType    string  `json:"chunk_type,omitempty"`
}

// Timings is the per-stage latency breakdown in milliseconds.
type Timings struct {
	EmbedMS   int64 `json:"embed_ms"`
	SearchMS  int64 `json:"search_ms"`
	HydrateMS int64 `json:"hydrate_ms"`
	TotalMS   int64 `json:"total_ms"`
}

// Result is the retrieval outcome plus diagnostics for the accuracy layer.
type Result struct {
	Contexts []Context `json:"contexts"`

	// TopScore is the best score before access post-filtering.
	TopScore float32 `json:"top_score"`

	// Partitions actually searched.
	Partitions []string `json:"partitions"`

	// Filter is the access filter that was applied.
	Filter *vector.Filter `json:"filter,omitempty"`

	// Denied counts items dropped by the per-item access check. TopK is
	// not backfilled after denials; callers may receive fewer results.
	Denied int `json:"denied,omitempty"`

	Timings Timings `json:"timings"`
}
