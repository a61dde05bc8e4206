// Package provider wraps the embedding and generative-model collaborators.
// The same embedding model and dimension must be used for ingestion and
// querying; the provider enforces that by owning the model choice.
package provider

import "context"

// Embedder produces fixed-dimension embedding vectors.
type Embedder interface {
	// Embed embeds one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds many texts, batching against the provider.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the vector dimension this embedder produces.
	Dimension() int
}

// GenerateOptions tunes one generation call.
type GenerateOptions struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// StreamChunk is one increment of a streaming generation. Exactly one of
// Text or Err is meaningful; Err closes the stream.
type StreamChunk struct {
	Text string
	Err  error
}

// Generator produces answer text from a prompt.
type Generator interface {
	// Generate produces a complete answer.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream produces the answer as increments on a channel. The
	// channel is closed when generation finishes or the context is
	// cancelled; cancellation promptly releases the upstream call.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}
