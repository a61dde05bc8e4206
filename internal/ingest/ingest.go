// Package ingest turns uploaded tabular documents into embedded, partition
// scoped chunks. Rows are grouped per employee, rendered into typed chunk
// texts, embedded in batches and written to the vector store alongside
// their hydration documents.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/surisearch/suri-search/internal/access"
	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/bus"
	"github.com/surisearch/suri-search/internal/docstore"
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/hash"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/provider"
	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/schema"
	"github.com/surisearch/suri-search/internal/vector"
)

// StatsInvalidator drops cached partition statistics after a write.
type StatsInvalidator interface {
	InvalidateStats()
}

// Result summarizes one document ingestion.
type Result struct {
	DocumentID        string   `json:"document_id"`
	SchemaSlug        string   `json:"schema_slug"`
	SchemaDiscovered  bool     `json:"schema_discovered"`
	Partitions        []string `json:"partitions"`
	EntitiesProcessed int      `json:"entities_processed"`
	ChunksWritten     int      `json:"chunks_written"`
}

// Ingestor wires analysis, schema resolution, embedding and storage.
type Ingestor struct {
	analyzer *analyzer.Analyzer
	registry *schema.Registry
	embedder provider.Embedder
	store    vector.Store
	docs     docstore.Store
	stats    StatsInvalidator
	log      *logger.Logger
}

// New creates an ingestor. stats may be nil when no engine cache exists.
func New(a *analyzer.Analyzer, registry *schema.Registry, embedder provider.Embedder,
	store vector.Store, docs docstore.Store, stats StatsInvalidator, log *logger.Logger) *Ingestor {
	return &Ingestor{
		analyzer: a,
		registry: registry,
		embedder: embedder,
		store:    store,
		docs:     docs,
		stats:    stats,
		log:      log,
	}
}

// HandleJob is the dispatcher entrypoint.
func (i *Ingestor) HandleJob(ctx context.Context, job bus.Job) error {
	result, err := i.IngestDocument(ctx, job)
	if err != nil {
		return err
	}
	i.log.Info("document ingested",
		"document", job.DocumentName,
		"schema", result.SchemaSlug,
		"entities", result.EntitiesProcessed,
		"chunks", result.ChunksWritten)
	return nil
}

// IngestDocument processes one document end to end. Chunk IDs derive from
// entity key, chunk type and sequence, so re-ingesting the same content
// overwrites the same points instead of duplicating them.
func (i *Ingestor) IngestDocument(ctx context.Context, job bus.Job) (*Result, error) {
	contentHash := hash.SHA256(job.Content)
	docID := hash.DocumentID(job.DocumentName, contentHash)

	// Parse once; the same rows feed both the analysis and chunking. The
	// boundary delivers one sheet per job, named after the document.
	rows, headerRow, err := analyzer.ParseDocument(job.Content, "")
	if err != nil {
		return nil, apperrors.ValidationError(fmt.Sprintf("document %s is not parseable tabular data: %v", job.DocumentName, err))
	}

	analysis := i.analyzer.AnalyzeSheets(map[string][][]string{job.DocumentName: rows})
	if len(analysis.Sheets) == 0 {
		return nil, apperrors.ValidationError(fmt.Sprintf("document %s has no analyzable rows", job.DocumentName))
	}

	def, discovered, err := i.resolveSchema(ctx, analysis, job.SchemaSlug)
	if err != nil {
		return nil, err
	}

	chunks := buildChunks(buildChunksInput{
		sheet:            analysis.Sheets[0],
		header:           rows[headerRow],
		rows:             rows[headerRow+1:],
		schema:           def,
		documentID:       docID,
		contentHash:      contentHash,
		defaultPartition: job.Partition,
	})
	if len(chunks) == 0 {
		return nil, apperrors.ValidationError(fmt.Sprintf("document %s produced no chunks", job.DocumentName))
	}

	if err := i.write(ctx, chunks); err != nil {
		return nil, err
	}

	if i.stats != nil {
		i.stats.InvalidateStats()
	}

	partitions := make(map[string]struct{})
	entities := make(map[string]struct{})
	for _, c := range chunks {
		partitions[c.metadata.Partition] = struct{}{}
		if c.metadata.EmployeeID != "" {
			entities[c.metadata.EmployeeID] = struct{}{}
		}
	}

	result := &Result{
		DocumentID:        docID,
		SchemaSlug:        def.TemplateSlug,
		SchemaDiscovered:  discovered,
		EntitiesProcessed: len(entities),
		ChunksWritten:     len(chunks),
	}
	for p := range partitions {
		result.Partitions = append(result.Partitions, p)
	}
	return result, nil
}

// resolveSchema matches the analysis against known schemas, discovering a
// new one when nothing matches well enough.
func (i *Ingestor) resolveSchema(ctx context.Context, analysis *analyzer.DocumentAnalysis, slugHint string) (*schema.SchemaDefinition, bool, error) {
	if slugHint != "" {
		def, err := i.registry.Get(ctx, schema.Slugify(slugHint))
		if err != nil {
			return nil, false, err
		}
		if def != nil {
			return def, false, nil
		}
	}

	match, err := i.registry.FindMatchingSchema(ctx, analysis)
	if err != nil {
		return nil, false, err
	}
	if !match.SuggestDiscovery {
		analysis.SuggestedSchemaSlug = match.Schema.TemplateSlug
		return match.Schema, false, nil
	}

	discovery, err := i.registry.DiscoverSchema(ctx, analysis, slugHint)
	if err != nil {
		return nil, false, err
	}
	analysis.SuggestedSchemaSlug = discovery.Schema.TemplateSlug
	return discovery.Schema, !discovery.IsUpdate, nil
}

// write embeds all chunk texts in batches and upserts points and hydration
// documents, grouped per partition.
func (i *Ingestor) write(ctx context.Context, chunks []chunk) error {
	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.text
	}

	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return apperrors.InternalError(
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}

	byPartition := make(map[string][]vector.Point)
	docs := make([]docstore.Document, 0, len(chunks))
	for idx, c := range chunks {
		byPartition[c.metadata.Partition] = append(byPartition[c.metadata.Partition], vector.Point{
			ID:       c.id,
			Vector:   vectors[idx],
			Metadata: c.metadata,
		})
		docs = append(docs, docstore.Document{
			ID:       c.id,
			Content:  c.text,
			Metadata: c.metadata,
		})
	}

	// Content first: a point without its document is dropped at hydration,
	// the reverse is invisible.
	if err := i.docs.Put(ctx, docs); err != nil {
		return err
	}

	for partition, points := range byPartition {
		if err := i.store.Upsert(ctx, partition, points); err != nil {
			return err
		}
	}
	return nil
}

// accessLevelFor maps a chunk type to the clearance needed to read it.
// Profiles are directory data; everything financial needs standard access.
func accessLevelFor(chunkType string) string {
	if chunkType == "profile" {
		return access.LevelBasic
	}
	return access.LevelStandard
}

// partitionFor scopes a chunk: entity chunks go to the employee partition,
// the rest to the explicit or organization-wide partition.
func partitionFor(employeeID, defaultPartition string) string {
	if employeeID != "" {
		return retrieval.PersonPartition(employeeID)
	}
	if defaultPartition != "" {
		return defaultPartition
	}
	return "org_main"
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
