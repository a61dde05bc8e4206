package schema

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// Matching weights. Field overlap dominates; semantics and structure
// break ties between schemas with similar field sets.
const (
	fieldWeight     = 0.5
	semanticWeight  = 0.3
	structureWeight = 0.2

	// discoveryFloor is the confidence below which matching suggests
	// discovering a new schema instead of forcing a weak match.
	discoveryFloor = 0.5

	// alternativeRatio surfaces a second candidate when its confidence
	// exceeds this fraction of the best.
	alternativeRatio = 0.7
)

// Registry matches document analyses against stored schemas and evolves
// them by append-only merge.
type Registry struct {
	storage   Storage
	log       *logger.Logger
	embedding EmbeddingConfig
}

// NewRegistry creates a schema registry over the given storage. The
// embedding config seeds newly discovered schemas.
func NewRegistry(storage Storage, embedding EmbeddingConfig, log *logger.Logger) *Registry {
	return &Registry{storage: storage, embedding: embedding, log: log}
}

// Get returns a schema by slug, (nil, nil) when not yet discovered.
func (r *Registry) Get(ctx context.Context, slug string) (*SchemaDefinition, error) {
	return r.storage.Get(ctx, slug)
}

// List returns all stored schemas.
func (r *Registry) List(ctx context.Context) ([]*SchemaDefinition, error) {
	return r.storage.List(ctx)
}

// FindMatchingSchema scores every active schema against the analysis and
// returns the best candidate. Confidence below the discovery floor flips
// SuggestDiscovery instead of forcing a weak match.
func (r *Registry) FindMatchingSchema(ctx context.Context, doc *analyzer.DocumentAnalysis) (*MatchResult, error) {
	schemas, err := r.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		schema     *SchemaDefinition
		confidence float64
	}
	var candidates []candidate

	for _, def := range schemas {
		if !def.IsActive {
			continue
		}
		conf := r.scoreSchema(def, doc)
		candidates = append(candidates, candidate{schema: def, confidence: conf})
	}

	if len(candidates) == 0 {
		return &MatchResult{SuggestDiscovery: true}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].schema.Priority > candidates[j].schema.Priority
	})

	best := candidates[0]
	result := &MatchResult{
		Schema:     best.schema,
		Confidence: best.confidence,
	}

	if len(candidates) > 1 && candidates[1].confidence > alternativeRatio*best.confidence {
		result.Alternative = candidates[1].schema
		result.AlternativeConfidence = candidates[1].confidence
	}

	if best.confidence < discoveryFloor {
		result.Schema = nil
		result.SuggestDiscovery = true
	}

	return result, nil
}

// scoreSchema computes fieldWeight*fieldScore + semanticWeight*semanticScore
// + structureWeight*structureScore for one schema.
func (r *Registry) scoreSchema(def *SchemaDefinition, doc *analyzer.DocumentAnalysis) float64 {
	// Normalized lookup over keys, aliases and display names.
	known := make(map[string]struct{})
	for _, f := range def.Fields {
		known[analyzer.Normalize(f.Key)] = struct{}{}
		known[analyzer.Normalize(f.DisplayName)] = struct{}{}
		for _, a := range f.Aliases {
			known[analyzer.Normalize(a)] = struct{}{}
		}
	}

	totalDocFields := 0
	matched := 0
	matchedWithCategory := 0
	hasKeyColumn := false
	maxRows := 0

	for _, sheet := range doc.Sheets {
		if sheet.RowCount > maxRows {
			maxRows = sheet.RowCount
		}
		for _, col := range sheet.Columns {
			totalDocFields++
			if col.SemanticCategory == analyzer.CategoryIdentifier {
				hasKeyColumn = true
			}
			if _, ok := known[col.NormalizedName]; ok {
				matched++
				if col.SemanticCategory != "" {
					matchedWithCategory++
				}
			}
		}
	}

	if totalDocFields == 0 {
		return 0
	}

	fieldScore := float64(matched) / float64(totalDocFields)

	semanticScore := 0.0
	if matched > 0 {
		semanticScore = float64(matchedWithCategory) / float64(matched)
	}

	structureScore := 0.5
	if hasKeyColumn {
		structureScore += 0.2
	}
	if maxRows > 10 {
		structureScore += 0.1
	}
	for _, marker := range doc.StructureMarkers {
		if strings.Contains(marker, def.TemplateSlug) {
			structureScore += 0.2
			break
		}
	}

	return fieldWeight*fieldScore + semanticWeight*semanticScore + structureWeight*structureScore
}

// DiscoverSchema builds a schema from the analysis and persists it. When a
// schema with the same slug already exists the new fields and chunk types
// are merged in append-only: nothing existing is removed or overwritten.
func (r *Registry) DiscoverSchema(ctx context.Context, doc *analyzer.DocumentAnalysis, slugHint string) (*DiscoveryResult, error) {
	slug := slugHint
	if slug == "" {
		if len(doc.Sheets) > 0 {
			slug = doc.Sheets[0].Name
		} else {
			slug = doc.DocumentType
		}
	}
	slug = Slugify(slug)

	fields := buildFields(doc)
	chunkTypes := chunkTypesFor(doc)
	intents := inferIntents(fields)

	existing, err := r.storage.Get(ctx, slug)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return r.merge(ctx, existing, fields, chunkTypes, intents)
	}

	now := time.Now().UTC()
	embedding := r.embedding
	def := &SchemaDefinition{
		TemplateSlug:     slug,
		DisplayName:      displayNameFor(doc, slug),
		Fields:           fields,
		ChunkTypes:       chunkTypes,
		SupportedIntents: intents,
		Priority:         100,
		IsActive:         true,
		Version:          1,
		Embedding:        &embedding,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := r.storage.Put(ctx, def, 0); err != nil {
		return nil, err
	}

	r.log.WithSchema(slug).Info("schema discovered",
		"fields", len(def.Fields), "intents", len(def.SupportedIntents))

	return &DiscoveryResult{Schema: def}, nil
}

// merge unions new fields and chunk types into an existing schema. Field
// identity is the normalized key: a field whose normalized key collides
// with an existing one is skipped, never duplicated.
func (r *Registry) merge(ctx context.Context, existing *SchemaDefinition, fields []FieldDefinition, chunkTypes []string, intents []Intent) (*DiscoveryResult, error) {
	knownKeys := make(map[string]struct{}, len(existing.Fields))
	for _, f := range existing.Fields {
		knownKeys[analyzer.Normalize(f.Key)] = struct{}{}
	}

	var added []string
	for _, f := range fields {
		norm := analyzer.Normalize(f.Key)
		if _, ok := knownKeys[norm]; ok {
			continue
		}
		knownKeys[norm] = struct{}{}
		existing.Fields = append(existing.Fields, f)
		added = append(added, f.Key)
	}

	for _, ct := range chunkTypes {
		if !existing.HasChunkType(ct) {
			existing.ChunkTypes = append(existing.ChunkTypes, ct)
		}
	}

	for _, intent := range intents {
		if !existing.SupportsIntent(intent) {
			existing.SupportedIntents = append(existing.SupportedIntents, intent)
		}
	}

	expected := existing.Version
	existing.Version++
	existing.UpdatedAt = time.Now().UTC()

	if err := r.storage.Put(ctx, existing, expected); err != nil {
		return nil, err
	}

	r.log.WithSchema(existing.TemplateSlug).Info("schema merged",
		"added_fields", len(added), "version", existing.Version)

	return &DiscoveryResult{Schema: existing, IsUpdate: true, AddedFields: added}, nil
}

// AddFieldAlias appends an alias to a field idempotently. It returns false
// without error when the schema or field does not exist.
func (r *Registry) AddFieldAlias(ctx context.Context, slug, fieldKey, alias string) (bool, error) {
	def, err := r.storage.Get(ctx, slug)
	if err != nil {
		return false, err
	}
	if def == nil {
		return false, nil
	}

	field := def.FindField(fieldKey)
	if field == nil {
		return false, nil
	}

	norm := analyzer.Normalize(alias)
	if norm == "" || analyzer.Normalize(field.Key) == norm || field.HasAlias(norm, analyzer.Normalize) {
		return true, nil
	}

	field.Aliases = append(field.Aliases, alias)

	expected := def.Version
	def.Version++
	def.UpdatedAt = time.Now().UTC()

	if err := r.storage.Put(ctx, def, expected); err != nil {
		return false, err
	}
	return true, nil
}

// AddField appends one field to a schema if its normalized key is new. It
// returns false without error when the schema does not exist.
func (r *Registry) AddField(ctx context.Context, slug string, field FieldDefinition) (bool, error) {
	def, err := r.storage.Get(ctx, slug)
	if err != nil {
		return false, err
	}
	if def == nil {
		return false, nil
	}

	norm := analyzer.Normalize(field.Key)
	for _, f := range def.Fields {
		if analyzer.Normalize(f.Key) == norm {
			return true, nil
		}
	}

	def.Fields = append(def.Fields, field)

	expected := def.Version
	def.Version++
	def.UpdatedAt = time.Now().UTC()

	if err := r.storage.Put(ctx, def, expected); err != nil {
		return false, err
	}
	return true, nil
}

// AppendSemanticAnchors appends deduplicated anchor phrases to a schema's
// embedding configuration.
func (r *Registry) AppendSemanticAnchors(ctx context.Context, slug string, anchors []string) (bool, error) {
	def, err := r.storage.Get(ctx, slug)
	if err != nil {
		return false, err
	}
	if def == nil {
		return false, nil
	}

	if def.Embedding == nil {
		embedding := r.embedding
		def.Embedding = &embedding
	}

	seen := make(map[string]struct{}, len(def.Embedding.SemanticAnchors))
	for _, a := range def.Embedding.SemanticAnchors {
		seen[a] = struct{}{}
	}

	addedAny := false
	for _, a := range anchors {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		def.Embedding.SemanticAnchors = append(def.Embedding.SemanticAnchors, a)
		addedAny = true
	}

	if !addedAny {
		return true, nil
	}

	expected := def.Version
	def.Version++
	def.UpdatedAt = time.Now().UTC()

	if err := r.storage.Put(ctx, def, expected); err != nil {
		return false, err
	}
	return true, nil
}

// SetActive toggles a schema's active flag. Schemas are soft-disabled,
// never deleted.
func (r *Registry) SetActive(ctx context.Context, slug string, active bool) (bool, error) {
	def, err := r.storage.Get(ctx, slug)
	if err != nil {
		return false, err
	}
	if def == nil {
		return false, nil
	}
	if def.IsActive == active {
		return true, nil
	}

	def.IsActive = active
	expected := def.Version
	def.Version++
	def.UpdatedAt = time.Now().UTC()

	if err := r.storage.Put(ctx, def, expected); err != nil {
		return false, err
	}
	return true, nil
}

// FilterableFields returns the schema's filterable fields, keyed by field
// key with the semantic category as value. The retrieval layer consults it
// to drop filter constraints the schema has no field for.
func (r *Registry) FilterableFields(ctx context.Context, slug string) (map[string]string, error) {
	def, err := r.storage.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}

	fields := make(map[string]string)
	for _, f := range def.Fields {
		if f.IsFilterable {
			fields[f.Key] = f.SemanticCategory
		}
	}
	return fields, nil
}

// buildFields converts analyzed columns into field definitions, deduplicated
// by normalized name across sheets.
func buildFields(doc *analyzer.DocumentAnalysis) []FieldDefinition {
	seen := make(map[string]struct{})
	var fields []FieldDefinition

	for _, sheet := range doc.Sheets {
		for _, col := range sheet.Columns {
			if col.NormalizedName == "" {
				continue
			}
			if _, ok := seen[col.NormalizedName]; ok {
				continue
			}
			seen[col.NormalizedName] = struct{}{}

			fields = append(fields, FieldDefinition{
				Key:              col.NormalizedName,
				DisplayName:      col.Name,
				Type:             string(col.InferredType),
				Aliases:          AliasesForCategory(string(col.SemanticCategory)),
				IsSearchable:     col.InferredType == analyzer.TypeString || col.SemanticCategory == analyzer.CategoryName,
				IsFilterable:     isFilterableCategory(col.SemanticCategory),
				IsComputable:     isNumericFieldType(col.InferredType),
				SemanticCategory: string(col.SemanticCategory),
			})
		}
	}
	return fields
}

func isFilterableCategory(cat analyzer.SemanticCategory) bool {
	switch cat {
	case analyzer.CategoryIdentifier, analyzer.CategoryPeriod, analyzer.CategoryDepartment,
		analyzer.CategoryStatus, analyzer.CategoryInsurer, analyzer.CategoryProduct:
		return true
	}
	return false
}

func isNumericFieldType(t analyzer.ValueType) bool {
	switch t {
	case analyzer.TypeCurrency, analyzer.TypePercentage, analyzer.TypeInteger,
		analyzer.TypeDecimal, analyzer.TypeNumber:
		return true
	}
	return false
}

// inferIntents derives the supported intents from the field set. Direct
// lookup and general QA are always supported.
func inferIntents(fields []FieldDefinition) []Intent {
	intents := []Intent{IntentDirectLookup, IntentGeneralQA}

	hasNumeric := false
	hasCommission := false
	hasKeyOrPeriod := false

	for _, f := range fields {
		if f.IsComputable {
			hasNumeric = true
		}
		switch analyzer.SemanticCategory(f.SemanticCategory) {
		case analyzer.CategoryCommission, analyzer.CategoryOverride, analyzer.CategoryClawback, analyzer.CategoryIncome:
			hasCommission = true
		case analyzer.CategoryIdentifier, analyzer.CategoryPeriod:
			hasKeyOrPeriod = true
		}
	}

	if hasNumeric || hasCommission {
		intents = append(intents, IntentCalculation)
	}
	if hasKeyOrPeriod {
		intents = append(intents, IntentComparison)
	}
	if hasNumeric {
		intents = append(intents, IntentAggregation)
	}
	return intents
}

// chunkTypesFor picks chunk kinds for the document family.
func chunkTypesFor(doc *analyzer.DocumentAnalysis) []string {
	types := []string{"record"}
	if doc.HasCategory(analyzer.CategoryCommission) || doc.HasCategory(analyzer.CategoryIncome) {
		types = append(types, "financial_summary")
	}
	if doc.HasCategory(analyzer.CategoryInsurer) {
		types = append(types, "insurer_breakdown")
	}
	if doc.HasCategory(analyzer.CategoryName) || doc.HasCategory(analyzer.CategoryIdentifier) {
		types = append(types, "profile")
	}
	return types
}

func displayNameFor(doc *analyzer.DocumentAnalysis, slug string) string {
	if len(doc.Sheets) > 0 && doc.Sheets[0].Name != "" {
		return doc.Sheets[0].Name
	}
	return slug
}

// Slugify lowercases the name and replaces separator runs with a single
// underscore, keeping Korean syllables and alphanumerics.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.' || r == '/':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
				lastUnderscore = true
			}
		case ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r >= 0x80:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
