// Package schema maintains the registry of retrieval schemas: matching
// analyzed documents against known schemas, discovering new ones, and
// evolving them by append-only merge.
package schema

import "time"

// Intent names a question intent a schema supports.
type Intent string

// Supported intents.
const (
	IntentDirectLookup Intent = "direct_lookup"
	IntentGeneralQA    Intent = "general_qa"
	IntentCalculation  Intent = "calculation"
	IntentComparison   Intent = "comparison"
	IntentAggregation  Intent = "aggregation"
)

// FieldDefinition is one metadata field of a schema.
type FieldDefinition struct {
	// Key is unique within the schema.
	Key string `json:"key"`

	DisplayName string `json:"display_name"`

	// Type is the analyzer's inferred value type for this field.
	Type string `json:"type"`

	// Aliases are alternative names this field is known by. Append-only.
	Aliases []string `json:"aliases,omitempty"`

	IsSearchable bool `json:"is_searchable"`
	IsFilterable bool `json:"is_filterable"`
	IsComputable bool `json:"is_computable"`

	// SemanticCategory is carried from analysis for intent inference.
	SemanticCategory string `json:"semantic_category,omitempty"`
}

// HasAlias reports whether the field already carries the alias, compared
// in normalized form.
func (f *FieldDefinition) HasAlias(normalized string, normalize func(string) string) bool {
	for _, a := range f.Aliases {
		if normalize(a) == normalized {
			return true
		}
	}
	return false
}

// EmbeddingConfig is the per-schema embedding setup. SemanticAnchors bias
// retrieval toward concepts the raw field names miss; the optimizer appends
// to them, deduplicated.
type EmbeddingConfig struct {
	Model           string   `json:"model"`
	Dimension       int      `json:"dimension"`
	SemanticAnchors []string `json:"semantic_anchors,omitempty"`
}

// SchemaDefinition describes a document family: its fields, chunk kinds and
// the question intents it supports.
//
// Version is the single canonical version counter, bumped on every merge or
// optimizer mutation and checked optimistically on write. Priority only
// orders schemas for matching and display.
type SchemaDefinition struct {
	TemplateSlug string `json:"template_slug"`
	DisplayName  string `json:"display_name"`

	// Fields are ordered. Keys are unique; evolution is append-only merge:
	// fields are added, never removed or overwritten, because historical
	// embeddings reference old field semantics.
	Fields []FieldDefinition `json:"fields"`

	ChunkTypes       []string `json:"chunk_types,omitempty"`
	SupportedIntents []Intent `json:"supported_intents,omitempty"`

	Priority int  `json:"priority"`
	IsActive bool `json:"is_active"`
	Version  int  `json:"version"`

	Embedding *EmbeddingConfig `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindField returns the field with the given key, or nil.
func (s *SchemaDefinition) FindField(key string) *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			return &s.Fields[i]
		}
	}
	return nil
}

// HasChunkType reports whether the chunk type is already registered.
func (s *SchemaDefinition) HasChunkType(ct string) bool {
	for _, existing := range s.ChunkTypes {
		if existing == ct {
			return true
		}
	}
	return false
}

// SupportsIntent reports whether the schema supports the intent.
func (s *SchemaDefinition) SupportsIntent(intent Intent) bool {
	for _, i := range s.SupportedIntents {
		if i == intent {
			return true
		}
	}
	return false
}

// MatchResult is the outcome of matching a document analysis against the
// registry.
type MatchResult struct {
	// Schema is the best match, nil when nothing clears the floor.
	Schema *SchemaDefinition `json:"schema,omitempty"`

	Confidence float64 `json:"confidence"`

	// Alternative is a close second candidate, surfaced when its
	// confidence exceeds 0.7x the best.
	Alternative *SchemaDefinition `json:"alternative,omitempty"`

	AlternativeConfidence float64 `json:"alternative_confidence,omitempty"`

	// SuggestDiscovery is set when no schema clears confidence 0.5.
	SuggestDiscovery bool `json:"suggest_discovery"`
}

// DiscoveryResult is the outcome of discovering (or merging into) a schema.
type DiscoveryResult struct {
	Schema *SchemaDefinition `json:"schema"`

	// IsUpdate reports that an existing schema was merged into rather
	// than a new one created.
	IsUpdate bool `json:"is_update"`

	// AddedFields lists the keys of fields the merge actually added.
	AddedFields []string `json:"added_fields,omitempty"`
}
