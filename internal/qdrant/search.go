package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/surisearch/suri-search/internal/vector"
)

// Query performs a dense similarity search scoped to one partition.
func (c *Client) Query(ctx context.Context, partition string, queryVector []float32, opts vector.QueryOptions) ([]vector.Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	limit := uint64(opts.TopK)
	if limit == 0 {
		limit = 10
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: c.config.Collection,
		Query:          qdrant.NewQueryDense(queryVector),
		Filter:         buildFilter(partition, opts.Filter),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(opts.IncludeMetadata),
	}

	if opts.MinScore > 0 {
		queryPoints.ScoreThreshold = qdrant.PtrOf(opts.MinScore)
	}

	results, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]vector.Match, 0, len(results))
	for _, p := range results {
		matches = append(matches, vector.Match{
			ID:       pointIDString(p.Id),
			Score:    p.Score,
			Metadata: extractMetadata(p.Payload),
		})
	}
	return matches, nil
}

// buildFilter assembles the Qdrant filter: the partition condition plus
// any set filter fields, all ANDed.
func buildFilter(partition string, f *vector.Filter) *qdrant.Filter {
	var conditions []*qdrant.Condition

	keyword := func(key, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}

	keyword("partition", partition)

	if f != nil {
		if len(f.AccessLevels) > 0 {
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "access_level",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{
								Keywords: &qdrant.RepeatedStrings{Strings: f.AccessLevels},
							},
						},
					},
				},
			})
		}
		if f.PublicOnly {
			keyword("access_level", "public")
		}
		keyword("employee_id", f.EmployeeID)
		keyword("category_slug", f.CategorySlug)
		keyword("schema_slug", f.SchemaSlug)
		keyword("chunk_type", f.ChunkType)
		keyword("period", f.Period)
		keyword("content_hash", f.ContentHash)
		keyword("document_id", f.DocumentID)
	}

	if len(conditions) == 0 {
		return nil
	}

	return &qdrant.Filter{Must: conditions}
}

func pointIDString(id *qdrant.PointId) string {
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

// extractMetadata converts a Qdrant payload map back into Metadata.
func extractMetadata(payload map[string]*qdrant.Value) vector.Metadata {
	return vector.Metadata{
		Partition:    getStringValue(payload, "partition"),
		DocumentID:   getStringValue(payload, "document_id"),
		EmployeeID:   getStringValue(payload, "employee_id"),
		CategorySlug: getStringValue(payload, "category_slug"),
		SchemaSlug:   getStringValue(payload, "schema_slug"),
		ChunkType:    getStringValue(payload, "chunk_type"),
		AccessLevel:  getStringValue(payload, "access_level"),
		Period:       getStringValue(payload, "period"),
		ContentHash:  getStringValue(payload, "content_hash"),
	}
}

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}
