package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store using exact cosine similarity. Meant
// for tests and single-node development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Point
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string]Point)}
}

// Upsert stores points, overwriting by id.
func (m *MemoryStore) Upsert(_ context.Context, partition string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.partitions[partition]
	if !ok {
		part = make(map[string]Point)
		m.partitions[partition] = part
	}
	for _, p := range points {
		p.Metadata.Partition = partition
		part[p.ID] = p
	}
	return nil
}

// Query scores every point in the partition by cosine similarity.
func (m *MemoryStore) Query(_ context.Context, partition string, queryVector []float32, opts QueryOptions) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, p := range m.partitions[partition] {
		if !matchesFilter(p.Metadata, opts.Filter) {
			continue
		}
		score := cosine(queryVector, p.Vector)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		match := Match{ID: p.ID, Score: score}
		if opts.IncludeMetadata {
			match.Metadata = p.Metadata
		}
		matches = append(matches, match)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if opts.TopK > 0 && len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

// DeleteByIDs removes the listed points.
func (m *MemoryStore) DeleteByIDs(_ context.Context, partition string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part := m.partitions[partition]
	for _, id := range ids {
		delete(part, id)
	}
	return nil
}

// DeleteByFilter removes all matching points.
func (m *MemoryStore) DeleteByFilter(_ context.Context, partition string, filter *Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part := m.partitions[partition]
	for id, p := range part {
		if matchesFilter(p.Metadata, filter) {
			delete(part, id)
		}
	}
	return nil
}

// Stats returns point counts per partition, sorted by partition name.
func (m *MemoryStore) Stats(_ context.Context) ([]PartitionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]PartitionStats, 0, len(m.partitions))
	for name, part := range m.partitions {
		stats = append(stats, PartitionStats{Partition: name, Count: uint64(len(part))})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Partition < stats[j].Partition })
	return stats, nil
}

func matchesFilter(md Metadata, f *Filter) bool {
	if f.IsZero() {
		return true
	}
	if len(f.AccessLevels) > 0 {
		found := false
		for _, lvl := range f.AccessLevels {
			if md.AccessLevel == lvl {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PublicOnly && md.AccessLevel != "public" {
		return false
	}
	if f.EmployeeID != "" && md.EmployeeID != f.EmployeeID {
		return false
	}
	if f.CategorySlug != "" && md.CategorySlug != f.CategorySlug {
		return false
	}
	if f.SchemaSlug != "" && md.SchemaSlug != f.SchemaSlug {
		return false
	}
	if f.ChunkType != "" && md.ChunkType != f.ChunkType {
		return false
	}
	if f.Period != "" && md.Period != f.Period {
		return false
	}
	if f.ContentHash != "" && md.ContentHash != f.ContentHash {
		return false
	}
	if f.DocumentID != "" && md.DocumentID != f.DocumentID {
		return false
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
