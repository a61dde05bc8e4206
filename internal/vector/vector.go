// Package vector defines the vector-store collaborator interface: partition
// scoped upsert, filtered similarity query, deletion and stats. Partitions
// are opaque strings prefixed by scope (org_<id>, emp_<id>, cat_<slug>).
package vector

import "context"

// UpsertBatchSize caps points per upsert call.
const UpsertBatchSize = 100

// Metadata is the payload stored alongside each vector. Vectors carry no
// content; the document store holds it, keyed by point id.
type Metadata struct {
	Partition    string `json:"partition"`
	DocumentID   string `json:"document_id,omitempty"`
	EmployeeID   string `json:"employee_id,omitempty"`
	CategorySlug string `json:"category_slug,omitempty"`
	SchemaSlug   string `json:"schema_slug,omitempty"`
	ChunkType    string `json:"chunk_type,omitempty"`
	AccessLevel  string `json:"access_level,omitempty"`
	Period       string `json:"period,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`
}

// Point is one vector to upsert.
type Point struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is one scored query hit.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Filter constrains a query or deletion. Zero-valued fields are ignored;
// set fields are ANDed.
type Filter struct {
	// AccessLevels restricts hits to any of the listed levels.
	AccessLevels []string

	// PublicOnly restricts hits to public-tagged content, for
	// unauthenticated callers.
	PublicOnly bool

	EmployeeID   string
	CategorySlug string
	SchemaSlug   string
	ChunkType    string
	Period       string
	ContentHash  string
	DocumentID   string
}

// IsZero reports whether the filter constrains nothing.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.AccessLevels) == 0 && !f.PublicOnly &&
		f.EmployeeID == "" && f.CategorySlug == "" && f.SchemaSlug == "" &&
		f.ChunkType == "" && f.Period == "" && f.ContentHash == "" && f.DocumentID == "")
}

// QueryOptions tunes a similarity query.
type QueryOptions struct {
	TopK            int
	Filter          *Filter
	IncludeMetadata bool
	MinScore        float32
}

// PartitionStats summarizes one partition.
type PartitionStats struct {
	Partition string `json:"partition"`
	Count     uint64 `json:"count"`
}

// Store is the vector-store collaborator.
type Store interface {
	// Upsert writes points into a partition, batching at UpsertBatchSize.
	Upsert(ctx context.Context, partition string, points []Point) error

	// Query searches one partition with the given embedded query vector.
	Query(ctx context.Context, partition string, queryVector []float32, opts QueryOptions) ([]Match, error)

	// DeleteByIDs removes specific points from a partition.
	DeleteByIDs(ctx context.Context, partition string, ids []string) error

	// DeleteByFilter removes all points in a partition matching the filter.
	DeleteByFilter(ctx context.Context, partition string, filter *Filter) error

	// Stats returns per-partition point counts.
	Stats(ctx context.Context) ([]PartitionStats, error)
}
