package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/surisearch/suri-search/internal/vector"
)

// Upsert writes points into a partition in batches of at most
// vector.UpsertBatchSize, waiting for indexing on each batch.
func (c *Client) Upsert(ctx context.Context, partition string, points []vector.Point) error {
	for i := 0; i < len(points); i += vector.UpsertBatchSize {
		end := i + vector.UpsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := c.upsertBatch(ctx, partition, points[i:end]); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (c *Client) upsertBatch(ctx context.Context, partition string, points []vector.Point) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		md := p.Metadata
		md.Partition = partition

		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payloadMap(md)),
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.config.Collection,
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// DeleteByIDs removes specific points. The partition is not consulted:
// point ids are globally unique.
func (c *Client) DeleteByIDs(ctx context.Context, _ string, ids []string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete by IDs: %w", err)
	}
	return nil
}

// DeleteByFilter removes all points in a partition matching the filter.
func (c *Client) DeleteByFilter(ctx context.Context, partition string, filter *vector.Filter) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	qdrantFilter := buildFilter(partition, filter)

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: qdrantFilter,
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

// Stats scrolls the collection and aggregates point counts per partition.
func (c *Client) Stats(ctx context.Context) ([]vector.PartitionStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	counts := make(map[string]uint64)
	var offset *qdrant.PointId
	const pageSize = 1000

	for {
		resp, err := c.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: c.config.Collection,
			Limit:          qdrant.PtrOf(uint32(pageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for _, p := range resp.GetResult() {
			counts[getStringValue(p.Payload, "partition")]++
		}

		// The offset a scroll starts from is inclusive, so paginating on
		// the last returned id would count that point twice. The response
		// carries the exclusive next-page offset; nil means done.
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	stats := make([]vector.PartitionStats, 0, len(counts))
	for partition, count := range counts {
		stats = append(stats, vector.PartitionStats{Partition: partition, Count: count})
	}
	return stats, nil
}

// payloadMap flattens metadata into the payload, omitting empty values.
func payloadMap(md vector.Metadata) map[string]any {
	payload := map[string]any{
		"partition": md.Partition,
	}
	set := func(key, value string) {
		if value != "" {
			payload[key] = value
		}
	}
	set("document_id", md.DocumentID)
	set("employee_id", md.EmployeeID)
	set("category_slug", md.CategorySlug)
	set("schema_slug", md.SchemaSlug)
	set("chunk_type", md.ChunkType)
	set("access_level", md.AccessLevel)
	set("period", md.Period)
	set("content_hash", md.ContentHash)
	return payload
}
