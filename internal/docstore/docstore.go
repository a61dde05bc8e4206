// Package docstore holds chunk content and scoping metadata keyed by
// vector id. Vectors carry no content payload; retrieval hydrates the
// surviving ids from here after ranking.
package docstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/vector"
)

// Document is one stored chunk.
type Document struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Metadata vector.Metadata `json:"metadata"`
}

// Store is the document/content collaborator. GetBatch omits unknown ids
// from the result rather than failing: a dangling vector id is an expected
// state during re-ingestion.
type Store interface {
	Put(ctx context.Context, docs []Document) error
	GetBatch(ctx context.Context, ids []string) (map[string]Document, error)
	Delete(ctx context.Context, ids []string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Put stores the documents, overwriting by id.
func (m *MemoryStore) Put(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

// GetBatch returns the known documents among ids.
func (m *MemoryStore) GetBatch(_ context.Context, ids []string) (map[string]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Document, len(ids))
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

// Delete removes the listed documents.
func (m *MemoryStore) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

// RedisStore persists documents as JSON blobs, one key per chunk id.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed document store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "suri:doc:"}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Put stores the documents in one pipeline.
func (r *RedisStore) Put(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, d := range docs {
		data, err := json.Marshal(d)
		if err != nil {
			return apperrors.InternalError("encoding document", err)
		}
		pipe.Set(ctx, r.key(d.ID), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.ProviderError("redis", err)
	}
	return nil
}

// GetBatch fetches the documents with MGET, skipping unknown ids.
func (r *RedisStore) GetBatch(ctx context.Context, ids []string) (map[string]Document, error) {
	if len(ids) == 0 {
		return map[string]Document{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}

	out := make(map[string]Document, len(ids))
	for i, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var d Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, apperrors.InternalError("decoding document", err)
		}
		out[ids[i]] = d
	}
	return out, nil
}

// Delete removes the listed documents.
func (r *RedisStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return apperrors.ProviderError("redis", err)
	}
	return nil
}
