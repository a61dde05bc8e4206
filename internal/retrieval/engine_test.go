package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/surisearch/suri-search/internal/access"
	"github.com/surisearch/suri-search/internal/docstore"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/vector"
)

// fakeEmbedder returns a fixed unit vector regardless of input.
type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

// denyEmployeePolicy denies all content belonging to one employee.
type denyEmployeePolicy struct {
	deniedEmployee string
}

func (p *denyEmployeePolicy) BuildFilter(_ context.Context, _ string) (*vector.Filter, error) {
	return nil, nil
}

func (p *denyEmployeePolicy) CanAccessContent(_ context.Context, _ string, md vector.Metadata) (access.Decision, error) {
	if md.EmployeeID == p.deniedEmployee {
		return access.Decision{Allowed: false, Reason: "employee scope"}, nil
	}
	return access.Decision{Allowed: true}, nil
}

func TestMergeAndRank(t *testing.T) {
	perPartition := [][]vector.Match{
		{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}},
		{{ID: "c", Score: 0.8}, {ID: "d", Score: 0.95}},
	}

	merged := MergeAndRank(perPartition, 0, 3)

	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	want := []float32{0.95, 0.9, 0.8}
	for i, m := range merged {
		if m.Score != want[i] {
			t.Errorf("merged[%d].Score = %v, want %v", i, m.Score, want[i])
		}
	}
}

func TestMergeAndRankMinScore(t *testing.T) {
	perPartition := [][]vector.Match{
		{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.2}},
	}

	merged := MergeAndRank(perPartition, 0.3, 10)
	if len(merged) != 1 || merged[0].ID != "a" {
		t.Errorf("merged = %v, want only the 0.9 match", merged)
	}
}

func newTestEngine(t *testing.T, policy access.PolicyEngine) (*Engine, *vector.MemoryStore, *docstore.MemoryStore) {
	t.Helper()

	store := vector.NewMemoryStore()
	docs := docstore.NewMemoryStore()
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}}

	engine := NewEngine(store, embedder, docs, policy, nil, EngineConfig{
		OrgPartition: "org_main",
	}, logger.Default())
	t.Cleanup(engine.Close)

	return engine, store, docs
}

func seedChunk(t *testing.T, store *vector.MemoryStore, docs *docstore.MemoryStore, partition, id string, vec []float32, md vector.Metadata, content string) {
	t.Helper()
	ctx := context.Background()

	md.Partition = partition
	if err := store.Upsert(ctx, partition, []vector.Point{{ID: id, Vector: vec, Metadata: md}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := docs.Put(ctx, []docstore.Document{{ID: id, Content: content, Metadata: md}}); err != nil {
		t.Fatalf("docstore put: %v", err)
	}
}

func TestSearchAcrossPartitions(t *testing.T) {
	engine, store, docs := newTestEngine(t, nil)
	ctx := context.Background()

	seedChunk(t, store, docs, "emp_A11111", "c1", []float32{1, 0, 0},
		vector.Metadata{EmployeeID: "A11111", AccessLevel: access.LevelBasic}, "3월 수수료 1,250,000원")
	seedChunk(t, store, docs, "org_main", "c2", []float32{0.9, 0.1, 0},
		vector.Metadata{AccessLevel: access.LevelBasic}, "지급 기준 안내")
	seedChunk(t, store, docs, "emp_B22222", "c3", []float32{1, 0, 0},
		vector.Metadata{EmployeeID: "B22222", AccessLevel: access.LevelBasic}, "다른 직원 명세")

	result, err := engine.Search(ctx, "3월 수수료", Options{
		Persons:             []string{"A11111"},
		IncludeOrganization: true,
		UserID:              "A11111",
		Clearance:           access.LevelBasic,
		TopK:                5,
		MinScore:            0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(result.Partitions) != 2 {
		t.Errorf("Partitions = %v, want emp_A11111 and org_main", result.Partitions)
	}
	if len(result.Contexts) != 2 {
		t.Fatalf("len(Contexts) = %d, want 2 (B22222's partition not searched)", len(result.Contexts))
	}
	if result.Contexts[0].Score < result.Contexts[1].Score {
		t.Error("contexts not sorted by score descending")
	}
	if result.Contexts[0].Content == "" {
		t.Error("content not hydrated")
	}
	if result.TopScore < 0.99 {
		t.Errorf("TopScore = %v, want ~1.0 for identical vector", result.TopScore)
	}
}

func TestSearchClearanceFiltering(t *testing.T) {
	engine, store, docs := newTestEngine(t, nil)
	ctx := context.Background()

	seedChunk(t, store, docs, "org_main", "pub", []float32{1, 0, 0},
		vector.Metadata{AccessLevel: access.LevelPublic}, "public doc")
	seedChunk(t, store, docs, "org_main", "adv", []float32{1, 0, 0},
		vector.Metadata{AccessLevel: access.LevelAdvanced}, "advanced doc")

	result, err := engine.Search(ctx, "q", Options{
		IncludeOrganization: true,
		UserID:              "u1",
		Clearance:           access.LevelBasic,
		MinScore:            0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	for _, c := range result.Contexts {
		if c.ID == "adv" {
			t.Error("basic clearance retrieved advanced content")
		}
	}
	if len(result.Contexts) != 1 {
		t.Errorf("len(Contexts) = %d, want 1", len(result.Contexts))
	}
}

func TestSearchUnauthenticatedPublicOnly(t *testing.T) {
	engine, store, docs := newTestEngine(t, nil)
	ctx := context.Background()

	seedChunk(t, store, docs, "org_main", "pub", []float32{1, 0, 0},
		vector.Metadata{AccessLevel: access.LevelPublic}, "public doc")
	seedChunk(t, store, docs, "org_main", "basic", []float32{1, 0, 0},
		vector.Metadata{AccessLevel: access.LevelBasic}, "basic doc")

	result, err := engine.Search(ctx, "q", Options{
		IncludeOrganization: true,
		MinScore:            0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(result.Contexts) != 1 || result.Contexts[0].ID != "pub" {
		t.Errorf("Contexts = %v, want only the public chunk", result.Contexts)
	}
}

func TestSearchPostFilterNoBackfill(t *testing.T) {
	policy := &denyEmployeePolicy{deniedEmployee: "B22222"}
	engine, store, docs := newTestEngine(t, policy)
	ctx := context.Background()

	seedChunk(t, store, docs, "org_main", "mine", []float32{1, 0, 0},
		vector.Metadata{EmployeeID: "A11111", AccessLevel: access.LevelBasic}, "my row")
	seedChunk(t, store, docs, "org_main", "theirs", []float32{1, 0, 0},
		vector.Metadata{EmployeeID: "B22222", AccessLevel: access.LevelBasic}, "their row")
	seedChunk(t, store, docs, "org_main", "backfill", []float32{0.5, 0.5, 0},
		vector.Metadata{EmployeeID: "A11111", AccessLevel: access.LevelBasic}, "lower ranked")

	result, err := engine.Search(ctx, "q", Options{
		IncludeOrganization: true,
		UserID:              "A11111",
		Clearance:           access.LevelBasic,
		TopK:                2,
		MinScore:            0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// topK=2 selected the two top-scored chunks; one was denied and the
	// shortfall is not backfilled from the next-ranked candidate.
	if result.Denied != 1 {
		t.Errorf("Denied = %d, want 1", result.Denied)
	}
	if len(result.Contexts) != 1 {
		t.Fatalf("len(Contexts) = %d, want 1 after denial without backfill", len(result.Contexts))
	}
	if result.Contexts[0].ID != "mine" {
		t.Errorf("Contexts[0].ID = %q, want mine", result.Contexts[0].ID)
	}
}

// stubSchemaFields reports a fixed filterable-field set for every schema.
type stubSchemaFields struct {
	fields map[string]string
}

func (s *stubSchemaFields) FilterableFields(_ context.Context, _ string) (map[string]string, error) {
	return s.fields, nil
}

func newSchemaFieldsEngine(t *testing.T, fields map[string]string) (*Engine, *vector.MemoryStore, *docstore.MemoryStore) {
	t.Helper()

	store := vector.NewMemoryStore()
	docs := docstore.NewMemoryStore()
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}}

	engine := NewEngine(store, embedder, docs, nil, &stubSchemaFields{fields: fields}, EngineConfig{
		OrgPartition: "org_main",
	}, logger.Default())
	t.Cleanup(engine.Close)

	return engine, store, docs
}

func TestSearchDropsPeriodFilterWithoutPeriodField(t *testing.T) {
	engine, store, docs := newSchemaFieldsEngine(t, map[string]string{"사번": "identifier"})
	ctx := context.Background()

	seedChunk(t, store, docs, "org_main", "c1", []float32{1, 0, 0},
		vector.Metadata{SchemaSlug: "인별명세", AccessLevel: access.LevelBasic}, "수수료 합계")

	result, err := engine.Search(ctx, "q", Options{
		IncludeOrganization: true,
		UserID:              "u1",
		Clearance:           access.LevelBasic,
		SchemaSlug:          "인별명세",
		Period:              "2025-03",
		MinScore:            0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if result.Filter.Period != "" {
		t.Errorf("Filter.Period = %q, want dropped for a schema with no period field", result.Filter.Period)
	}
	if len(result.Contexts) != 1 {
		t.Fatalf("len(Contexts) = %d, want 1", len(result.Contexts))
	}
}

func TestSearchKeepsPeriodFilterWithPeriodField(t *testing.T) {
	engine, store, docs := newSchemaFieldsEngine(t, map[string]string{"마감월": "period"})
	ctx := context.Background()

	seedChunk(t, store, docs, "org_main", "c1", []float32{1, 0, 0},
		vector.Metadata{SchemaSlug: "인별명세", Period: "2025-02", AccessLevel: access.LevelBasic}, "2월 명세")

	result, err := engine.Search(ctx, "q", Options{
		IncludeOrganization: true,
		UserID:              "u1",
		Clearance:           access.LevelBasic,
		SchemaSlug:          "인별명세",
		Period:              "2025-03",
		MinScore:            0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if result.Filter.Period != "2025-03" {
		t.Errorf("Filter.Period = %q, want 2025-03 retained", result.Filter.Period)
	}
	if len(result.Contexts) != 0 {
		t.Errorf("len(Contexts) = %d, want 0 for a mismatched period", len(result.Contexts))
	}
}

func TestSearchNoPartitions(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, err := engine.Search(context.Background(), "q", Options{})
	if err == nil {
		t.Fatal("Search with empty scope did not fail")
	}
}

func TestResolvePartitionsBound(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	persons := make([]string, DefaultMaxPartitions+1)
	for i := range persons {
		persons[i] = strings.Repeat("x", 2) + string(rune('a'+i))
	}

	_, err := engine.Search(context.Background(), "q", Options{Persons: persons})
	if err == nil {
		t.Fatal("fan-out above the partition limit did not fail")
	}
}

func TestStatsCached(t *testing.T) {
	engine, store, docs := newTestEngine(t, nil)
	ctx := context.Background()

	seedChunk(t, store, docs, "emp_A11111", "c1", []float32{1, 0, 0}, vector.Metadata{}, "x")

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Count != 1 {
		t.Fatalf("stats = %v, want one partition with count 1", stats)
	}

	// A write behind the cache is invisible until invalidation.
	seedChunk(t, store, docs, "emp_A11111", "c2", []float32{0, 1, 0}, vector.Metadata{}, "y")

	stats, _ = engine.Stats(ctx)
	if stats[0].Count != 1 {
		t.Errorf("cached count = %d, want stale 1", stats[0].Count)
	}

	engine.InvalidateStats()
	stats, _ = engine.Stats(ctx)
	if stats[0].Count != 2 {
		t.Errorf("count after invalidation = %d, want 2", stats[0].Count)
	}
}
