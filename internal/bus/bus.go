// Package bus dispatches ingestion jobs. Document uploads are acknowledged
// immediately and processed by a subscriber, so slow embedding runs never
// block the upload path. Delivery is at-least-once; ingestion is idempotent
// by content hash, so duplicate deliveries are harmless.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TopicDocumentProcess carries document ingestion jobs.
const TopicDocumentProcess = "suri.document.process"

// Handler processes one job. A returned error is logged, never retried by
// the dispatcher itself.
type Handler func(ctx context.Context, job Job) error

// Dispatcher decouples job producers from the ingestion worker.
type Dispatcher interface {
	// Publish enqueues a job on a topic and returns once it is accepted.
	Publish(ctx context.Context, topic string, job Job) error

	// Subscribe registers a handler for jobs on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close stops delivery and releases resources.
	Close() error
}

// Job is one ingestion unit of work.
type Job struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`

	// DocumentName is the uploaded file or sheet name.
	DocumentName string `json:"document_name"`

	// SchemaSlug pins ingestion to a known schema; empty triggers matching.
	SchemaSlug string `json:"schema_slug,omitempty"`

	// Partition scopes where the chunks land; empty derives per entity.
	Partition string `json:"partition,omitempty"`

	// Content is the raw tabular payload.
	Content []byte `json:"content"`
}

// NewJob creates a job with identity and timestamp filled in.
func NewJob(jobType, source, documentName string, content []byte) Job {
	return Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		Source:       source,
		Timestamp:    time.Now().UnixMilli(),
		DocumentName: documentName,
		Content:      content,
	}
}
