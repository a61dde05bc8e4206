package accuracy

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
)

// Storage persists tests, execution history and optimization audit rows.
// Results and actions are append-only: history is evidence, never edited.
type Storage interface {
	PutTest(ctx context.Context, test Test) error
	GetTest(ctx context.Context, id string) (*Test, error)
	ListTests(ctx context.Context, schemaSlug string) ([]Test, error)
	SetTestActive(ctx context.Context, id string, active bool) error

	AppendResult(ctx context.Context, result Result) error
	ListResults(ctx context.Context, testID string, limit int) ([]Result, error)

	AppendAction(ctx context.Context, action Action) error
	ListActions(ctx context.Context, limit int) ([]Action, error)
}

// MemoryStorage is an in-process Storage for tests and single-node runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	tests   map[string]Test
	results map[string][]Result
	actions []Action
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tests:   make(map[string]Test),
		results: make(map[string][]Result),
	}
}

// PutTest stores or replaces a test by ID.
func (m *MemoryStorage) PutTest(_ context.Context, test Test) error {
	if test.ID == "" {
		return apperrors.ValidationError("test id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[test.ID] = cloneTest(test)
	return nil
}

// GetTest returns a copy of the stored test, or (nil, nil) when unknown.
func (m *MemoryStorage) GetTest(_ context.Context, id string) (*Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	test, ok := m.tests[id]
	if !ok {
		return nil, nil
	}
	c := cloneTest(test)
	return &c, nil
}

// ListTests returns all tests for the schema, ordered by ID. An empty slug
// lists every test.
func (m *MemoryStorage) ListTests(_ context.Context, schemaSlug string) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Test, 0, len(m.tests))
	for _, test := range m.tests {
		if schemaSlug != "" && test.SchemaSlug != schemaSlug {
			continue
		}
		out = append(out, cloneTest(test))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetTestActive toggles the only mutable test attribute.
func (m *MemoryStorage) SetTestActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	test, ok := m.tests[id]
	if !ok {
		return apperrors.NotFoundError("test " + id)
	}
	test.IsActive = active
	m.tests[id] = test
	return nil
}

// AppendResult records one execution in the test's history.
func (m *MemoryStorage) AppendResult(_ context.Context, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.TestID] = append(m.results[result.TestID], result)
	return nil
}

// ListResults returns the most recent executions of a test, newest first.
func (m *MemoryStorage) ListResults(_ context.Context, testID string, limit int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.results[testID]
	out := make([]Result, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AppendAction records one optimization attempt.
func (m *MemoryStorage) AppendAction(_ context.Context, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

// ListActions returns the most recent actions, newest first.
func (m *MemoryStorage) ListActions(_ context.Context, limit int) ([]Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Action, 0, len(m.actions))
	for i := len(m.actions) - 1; i >= 0; i-- {
		out = append(out, m.actions[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func cloneTest(test Test) Test {
	c := test
	if test.TargetEntity != nil {
		c.TargetEntity = make(map[string]string, len(test.TargetEntity))
		for k, v := range test.TargetEntity {
			c.TargetEntity[k] = v
		}
	}
	if test.ExpectedValues != nil {
		c.ExpectedValues = make(map[string]Expectation, len(test.ExpectedValues))
		for k, v := range test.ExpectedValues {
			if v.Tolerance != nil {
				tol := *v.Tolerance
				v.Tolerance = &tol
			}
			c.ExpectedValues[k] = v
		}
	}
	return c
}

// RedisStorage persists tests as JSON blobs with an ID index set, and
// result and action history as append-only lists.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage creates a Redis-backed accuracy storage.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client, prefix: "suri:accuracy:"}
}

func (r *RedisStorage) testKey(id string) string    { return r.prefix + "test:" + id }
func (r *RedisStorage) testIndexKey() string        { return r.prefix + "tests" }
func (r *RedisStorage) resultKey(id string) string  { return r.prefix + "results:" + id }
func (r *RedisStorage) actionKey() string           { return r.prefix + "actions" }

// PutTest stores the test and registers it in the ID index.
func (r *RedisStorage) PutTest(ctx context.Context, test Test) error {
	if test.ID == "" {
		return apperrors.ValidationError("test id is required")
	}
	encoded, err := json.Marshal(test)
	if err != nil {
		return apperrors.InternalError("encoding test", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.testKey(test.ID), encoded, 0)
		pipe.SAdd(ctx, r.testIndexKey(), test.ID)
		return nil
	})
	if err != nil {
		return apperrors.ProviderError("redis", err)
	}
	return nil
}

// GetTest fetches and decodes the test, or returns (nil, nil) when absent.
func (r *RedisStorage) GetTest(ctx context.Context, id string) (*Test, error) {
	data, err := r.client.Get(ctx, r.testKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}

	var test Test
	if err := json.Unmarshal(data, &test); err != nil {
		return nil, apperrors.InternalError("decoding test", err)
	}
	return &test, nil
}

// ListTests fetches every indexed test, filtered by schema slug.
func (r *RedisStorage) ListTests(ctx context.Context, schemaSlug string) ([]Test, error) {
	ids, err := r.client.SMembers(ctx, r.testIndexKey()).Result()
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}
	sort.Strings(ids)

	out := make([]Test, 0, len(ids))
	for _, id := range ids {
		test, err := r.GetTest(ctx, id)
		if err != nil {
			return nil, err
		}
		if test == nil {
			continue
		}
		if schemaSlug != "" && test.SchemaSlug != schemaSlug {
			continue
		}
		out = append(out, *test)
	}
	return out, nil
}

// SetTestActive rewrites the test with the toggled flag.
func (r *RedisStorage) SetTestActive(ctx context.Context, id string, active bool) error {
	test, err := r.GetTest(ctx, id)
	if err != nil {
		return err
	}
	if test == nil {
		return apperrors.NotFoundError("test " + id)
	}
	test.IsActive = active
	return r.PutTest(ctx, *test)
}

// AppendResult pushes one execution onto the test's history list.
func (r *RedisStorage) AppendResult(ctx context.Context, result Result) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return apperrors.InternalError("encoding result", err)
	}
	if err := r.client.RPush(ctx, r.resultKey(result.TestID), encoded).Err(); err != nil {
		return apperrors.ProviderError("redis", err)
	}
	return nil
}

// ListResults returns the most recent executions, newest first.
func (r *RedisStorage) ListResults(ctx context.Context, testID string, limit int) ([]Result, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	rows, err := r.client.LRange(ctx, r.resultKey(testID), start, -1).Result()
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}

	out := make([]Result, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		var result Result
		if err := json.Unmarshal([]byte(rows[i]), &result); err != nil {
			return nil, apperrors.InternalError("decoding result", err)
		}
		out = append(out, result)
	}
	return out, nil
}

// AppendAction pushes one optimization attempt onto the audit list.
func (r *RedisStorage) AppendAction(ctx context.Context, action Action) error {
	encoded, err := json.Marshal(action)
	if err != nil {
		return apperrors.InternalError("encoding action", err)
	}
	if err := r.client.RPush(ctx, r.actionKey(), encoded).Err(); err != nil {
		return apperrors.ProviderError("redis", err)
	}
	return nil
}

// ListActions returns the most recent actions, newest first.
func (r *RedisStorage) ListActions(ctx context.Context, limit int) ([]Action, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	rows, err := r.client.LRange(ctx, r.actionKey(), start, -1).Result()
	if err != nil {
		return nil, apperrors.ProviderError("redis", err)
	}

	out := make([]Action, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		var action Action
		if err := json.Unmarshal([]byte(rows[i]), &action); err != nil {
			return nil, apperrors.InternalError("decoding action", err)
		}
		out = append(out, action)
	}
	return out, nil
}
