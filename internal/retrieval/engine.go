package retrieval

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surisearch/suri-search/internal/access"
	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/cache"
	"github.com/surisearch/suri-search/internal/docstore"
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/provider"
	"github.com/surisearch/suri-search/internal/vector"
)

// Defaults applied when options leave a knob unset.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.3

	// DefaultMaxPartitions bounds the concurrent fan-out per query.
	DefaultMaxPartitions = 16

	statsCacheKey = "partition_stats"
)

// EngineConfig configures the retrieval engine.
type EngineConfig struct {
	// OrgPartition is the organization-wide partition identifier.
	OrgPartition string

	// MaxPartitions bounds the fan-out; queries resolving more partitions
	// are rejected.
	MaxPartitions int

	// StatsTTL is the partition-stats cache TTL.
	StatsTTL time.Duration

	DefaultTopK     int
	DefaultMinScore float32
}

// SchemaFields reports a schema's filterable fields, keyed by field key
// with the semantic category as value. The schema registry implements it.
type SchemaFields interface {
	FilterableFields(ctx context.Context, slug string) (map[string]string, error)
}

// Engine fans out vector search across partitions. Provider errors
// propagate untouched; retry is the caller's responsibility.
type Engine struct {
	store    vector.Store
	embedder provider.Embedder
	docs     docstore.Store

	// policy is optional; nil means the clearance cascade alone governs.
	policy access.PolicyEngine

	// fields is optional; nil means filter constraints are passed through
	// without consulting the schema.
	fields SchemaFields

	orgPartition    string
	maxPartitions   int
	defaultTopK     int
	defaultMinScore float32

	statsCache *cache.TTLCache[[]vector.PartitionStats]
	log        *logger.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(store vector.Store, embedder provider.Embedder, docs docstore.Store, policy access.PolicyEngine, fields SchemaFields, cfg EngineConfig, log *logger.Logger) *Engine {
	if cfg.OrgPartition == "" {
		cfg.OrgPartition = "org_main"
	}
	if cfg.MaxPartitions <= 0 {
		cfg.MaxPartitions = DefaultMaxPartitions
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.DefaultMinScore <= 0 {
		cfg.DefaultMinScore = DefaultMinScore
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 24 * time.Hour
	}

	return &Engine{
		store:           store,
		embedder:        embedder,
		docs:            docs,
		policy:          policy,
		fields:          fields,
		orgPartition:    cfg.OrgPartition,
		maxPartitions:   cfg.MaxPartitions,
		defaultTopK:     cfg.DefaultTopK,
		defaultMinScore: cfg.DefaultMinScore,
		statsCache:      cache.NewTTL[[]vector.PartitionStats](cfg.StatsTTL),
		log:             log,
	}
}

// Search retrieves the topK most relevant chunks for the query across the
// resolved partitions.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	topK := opts.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = e.defaultMinScore
	}

	partitions := e.resolvePartitions(opts)
	if len(partitions) == 0 {
		return nil, apperrors.ValidationError("no partitions resolved from retrieval scope")
	}
	partitions, err := e.boundPartitions(partitions)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	filter, err := e.buildFilter(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Embed the query once; every partition search shares the vector.
	embedStart := time.Now()
	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	embedMS := time.Since(embedStart).Milliseconds()

	searchStart := time.Now()
	perPartition, err := e.fanOut(ctx, partitions, queryVector, filter, topK)
	if err != nil {
		return nil, err
	}
	searchMS := time.Since(searchStart).Milliseconds()

	merged := MergeAndRank(perPartition, minScore, topK)

	var topScore float32
	if len(merged) > 0 {
		topScore = merged[0].Score
	}

	hydrateStart := time.Now()
	contexts, err := e.hydrate(ctx, merged)
	if err != nil {
		return nil, err
	}
	hydrateMS := time.Since(hydrateStart).Milliseconds()

	contexts, denied, err := e.postFilter(ctx, opts.UserID, merged, contexts)
	if err != nil {
		return nil, err
	}

	return &Result{
		Contexts:   contexts,
		TopScore:   topScore,
		Partitions: partitions,
		Filter:     filter,
		Denied:     denied,
		Timings: Timings{
			EmbedMS:   embedMS,
			SearchMS:  searchMS,
			HydrateMS: hydrateMS,
			TotalMS:   time.Since(start).Milliseconds(),
		},
	}, nil
}

// buildFilter assembles the clearance cascade plus the optional
// role-derived fragment and schema/period scoping.
func (e *Engine) buildFilter(ctx context.Context, opts Options) (*vector.Filter, error) {
	filter := access.BuildFilter(opts.Clearance, opts.UserID)
	filter.SchemaSlug = opts.SchemaSlug
	filter.Period = opts.Period

	if e.policy != nil && opts.UserID != "" {
		roleFilter, err := e.policy.BuildFilter(ctx, opts.UserID)
		if err != nil {
			return nil, err
		}
		filter = access.MergeFilters(filter, roleFilter)
	}

	// A period constraint against a schema with no period-like field can
	// never match anything; drop it rather than returning zero results.
	if e.fields != nil && filter.SchemaSlug != "" && filter.Period != "" {
		schemaFields, err := e.fields.FilterableFields(ctx, filter.SchemaSlug)
		if err != nil {
			return nil, err
		}
		if !supportsPeriod(schemaFields) {
			e.log.Warn("dropping period filter unsupported by schema",
				"schema", filter.SchemaSlug, "period", filter.Period)
			filter.Period = ""
		}
	}
	return filter, nil
}

// supportsPeriod reports whether any filterable field carries a period or
// date semantic category.
func supportsPeriod(fields map[string]string) bool {
	for _, category := range fields {
		if category == string(analyzer.CategoryPeriod) || category == string(analyzer.CategoryDate) {
			return true
		}
	}
	return false
}

// fanOut issues one search per partition concurrently, each asking for
// topK candidates so the global merge has enough to rank.
func (e *Engine) fanOut(ctx context.Context, partitions []string, queryVector []float32, filter *vector.Filter, topK int) ([][]vector.Match, error) {
	perPartition := make([][]vector.Match, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxPartitions)

	for i, partition := range partitions {
		g.Go(func() error {
			matches, err := e.store.Query(gctx, partition, queryVector, vector.QueryOptions{
				TopK:            topK,
				Filter:          filter,
				IncludeMetadata: true,
			})
			if err != nil {
				return err
			}
			perPartition[i] = matches
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return perPartition, nil
}

// hydrate fetches content for the surviving ids. Matches whose content is
// missing from the document store are dropped.
func (e *Engine) hydrate(ctx context.Context, matches []vector.Match) ([]Context, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	docs, err := e.docs.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	contexts := make([]Context, 0, len(matches))
	for _, m := range matches {
		doc, ok := docs[m.ID]
		if !ok {
			e.log.Warn("match without stored content", "id", m.ID, "partition", m.Metadata.Partition)
			continue
		}
		contexts = append(contexts, Context{
			ID:           m.ID,
			Content:      doc.Content,
			Score:        m.Score,
			Partition:    m.Metadata.Partition,
			DocumentID:   m.Metadata.DocumentID,
			EmployeeID:   m.Metadata.EmployeeID,
			CategorySlug: m.Metadata.CategorySlug,
			ChunkType:    m.Metadata.ChunkType,
		})
	}
	return contexts, nil
}

// postFilter runs the per-item access check when a policy engine is
// configured. Denied items are dropped and logged for audit; topK is not
// backfilled, so callers may receive fewer results than requested.
func (e *Engine) postFilter(ctx context.Context, userID string, matches []vector.Match, contexts []Context) ([]Context, int, error) {
	if e.policy == nil {
		return contexts, 0, nil
	}

	metadataByID := make(map[string]vector.Metadata, len(matches))
	for _, m := range matches {
		metadataByID[m.ID] = m.Metadata
	}

	allowed := make([]Context, 0, len(contexts))
	denied := 0
	for _, c := range contexts {
		decision, err := e.policy.CanAccessContent(ctx, userID, metadataByID[c.ID])
		if err != nil {
			return nil, 0, err
		}
		if !decision.Allowed {
			denied++
			e.log.WithPartition(c.Partition).Warn("retrieval item denied by access policy",
				"id", c.ID, "user_id", userID, "reason", decision.Reason)
			continue
		}
		allowed = append(allowed, c)
	}
	return allowed, denied, nil
}

// Stats returns per-partition counts, cached with the configured TTL.
func (e *Engine) Stats(ctx context.Context) ([]vector.PartitionStats, error) {
	if stats, ok := e.statsCache.Get(statsCacheKey); ok {
		return stats, nil
	}

	stats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	e.statsCache.Set(statsCacheKey, stats)
	return stats, nil
}

// InvalidateStats drops the cached stats; ingestion calls this on write.
func (e *Engine) InvalidateStats() {
	e.statsCache.Invalidate(statsCacheKey)
}

// Close releases background resources.
func (e *Engine) Close() {
	e.statsCache.Close()
}
