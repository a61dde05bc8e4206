package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
)

// Storage persists schema definitions. Get returns (nil, nil) for an
// unknown slug: "not yet discovered" is an expected state, not a fault.
//
// Put enforces optimistic concurrency: expectedVersion is the version the
// caller read (0 for a create), and a mismatch against the stored version
// fails with a ConcurrencyConflict.
type Storage interface {
	Get(ctx context.Context, slug string) (*SchemaDefinition, error)
	List(ctx context.Context) ([]*SchemaDefinition, error)
	Put(ctx context.Context, def *SchemaDefinition, expectedVersion int) error
}

// MemoryStorage is an in-process Storage for tests and single-node runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	schemas map[string]*SchemaDefinition
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{schemas: make(map[string]*SchemaDefinition)}
}

// Get returns a copy of the stored schema, or (nil, nil).
func (m *MemoryStorage) Get(_ context.Context, slug string) (*SchemaDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.schemas[slug]
	if !ok {
		return nil, nil
	}
	return cloneSchema(def), nil
}

// List returns copies of all stored schemas, ordered by slug.
func (m *MemoryStorage) List(_ context.Context) ([]*SchemaDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*SchemaDefinition, 0, len(m.schemas))
	for _, def := range m.schemas {
		out = append(out, cloneSchema(def))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TemplateSlug < out[j].TemplateSlug
	})
	return out, nil
}

// Put stores the schema if the stored version still matches expectedVersion.
func (m *MemoryStorage) Put(_ context.Context, def *SchemaDefinition, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := 0
	if existing, ok := m.schemas[def.TemplateSlug]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return apperrors.ConflictError(fmt.Sprintf("schema %s", def.TemplateSlug))
	}

	m.schemas[def.TemplateSlug] = cloneSchema(def)
	return nil
}

func cloneSchema(def *SchemaDefinition) *SchemaDefinition {
	c := *def
	c.Fields = append([]FieldDefinition(nil), def.Fields...)
	for i := range c.Fields {
		c.Fields[i].Aliases = append([]string(nil), def.Fields[i].Aliases...)
	}
	c.ChunkTypes = append([]string(nil), def.ChunkTypes...)
	c.SupportedIntents = append([]Intent(nil), def.SupportedIntents...)
	if def.Embedding != nil {
		e := *def.Embedding
		e.SemanticAnchors = append([]string(nil), def.Embedding.SemanticAnchors...)
		c.Embedding = &e
	}
	return &c
}

// RedisStorage persists schemas in Redis as JSON blobs under one key per
// slug, with a slug index set. Optimistic writes use WATCH on the schema
// key so concurrent optimizer mutations cannot lose updates.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage creates a Redis-backed schema storage.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client, prefix: "suri:schema:"}
}

func (r *RedisStorage) key(slug string) string {
	return r.prefix + slug
}

func (r *RedisStorage) indexKey() string {
	return r.prefix + "slugs"
}

// Get fetches and decodes the schema, or returns (nil, nil) when absent.
func (r *RedisStorage) Get(ctx context.Context, slug string) (*SchemaDefinition, error) {
	data, err := r.client.Get(ctx, r.key(slug)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}

	var def SchemaDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, apperrors.InternalError("decoding schema", err)
	}
	return &def, nil
}

// List fetches all schemas referenced by the slug index.
func (r *RedisStorage) List(ctx context.Context) ([]*SchemaDefinition, error) {
	slugs, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}
	sort.Strings(slugs)

	out := make([]*SchemaDefinition, 0, len(slugs))
	for _, slug := range slugs {
		def, err := r.Get(ctx, slug)
		if err != nil {
			return nil, err
		}
		if def != nil {
			out = append(out, def)
		}
	}
	return out, nil
}

// Put writes the schema transactionally, failing on a version mismatch.
func (r *RedisStorage) Put(ctx context.Context, def *SchemaDefinition, expectedVersion int) error {
	key := r.key(def.TemplateSlug)

	txn := func(tx *redis.Tx) error {
		current := 0
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			// create path
		case err != nil:
			return err
		default:
			var existing SchemaDefinition
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			current = existing.Version
		}

		if current != expectedVersion {
			return apperrors.ConflictError(fmt.Sprintf("schema %s", def.TemplateSlug))
		}

		encoded, err := json.Marshal(def)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, r.indexKey(), def.TemplateSlug)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txn, key)
	if err == redis.TxFailedErr {
		return apperrors.ConflictError(fmt.Sprintf("schema %s", def.TemplateSlug))
	}
	if apperrors.IsConflict(err) {
		return err
	}
	if err != nil {
		return apperrors.ProviderError("redis", err)
	}
	return nil
}
