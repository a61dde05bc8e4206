package provider

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// embedBatchLimit caps texts per embedding request.
const embedBatchLimit = 100

// OpenAIConfig configures the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbedModel     string
	EmbedDimension int
	ChatModel      string
	Temperature    float32
	MaxTokens      int
	CacheSize      int
}

// OpenAIProvider implements Embedder and Generator on the OpenAI API (or
// any compatible endpoint via BaseURL).
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
	cache  *EmbeddingCache
	log    *logger.Logger
}

// NewOpenAI creates the provider.
func NewOpenAI(cfg OpenAIConfig, log *logger.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		cache:  NewEmbeddingCache(cfg.CacheSize),
		log:    log,
	}
}

// Dimension returns the embedding dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.config.EmbedDimension
}

// Embed embeds one text, consulting the cache first.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := p.cache.Get(text); ok {
		return emb, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.config.EmbedModel),
	})
	if err != nil {
		return nil, apperrors.ProviderError("embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.ProviderError("embedding", errors.New("empty embedding response"))
	}

	emb := resp.Data[0].Embedding
	p.cache.Set(text, emb)
	return emb, nil
}

// EmbedBatch embeds many texts, batching at embedBatchLimit. Cached texts
// are filled from the cache; only misses hit the provider.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if emb, ok := p.cache.Get(text); ok {
			results[i] = emb
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += embedBatchLimit {
		end := start + embedBatchLimit
		if end > len(missTexts) {
			end = len(missTexts)
		}
		batch := missTexts[start:end]

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(p.config.EmbedModel),
		})
		if err != nil {
			return nil, apperrors.ProviderError("embedding", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, apperrors.ProviderError("embedding",
				errors.New("embedding count does not match input count"))
		}

		for j, data := range resp.Data {
			idx := missIdx[start+j]
			results[idx] = data.Embedding
			p.cache.Set(texts[idx], data.Embedding)
		}
	}

	return results, nil
}

// Generate produces a complete answer.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.chatRequest(prompt, opts, false))
	if err != nil {
		return "", apperrors.ProviderError("generation", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.ProviderError("generation", errors.New("empty completion response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream produces the answer as increments on a bounded channel.
// The producer goroutine stops drawing from the upstream stream as soon as
// the context is cancelled, and always closes both the stream and the
// channel.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.chatRequest(prompt, opts, true))
	if err != nil {
		return nil, apperrors.ProviderError("generation", err)
	}

	out := make(chan StreamChunk, 1)

	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- StreamChunk{Err: apperrors.ProviderError("generation", err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case out <- StreamChunk{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (p *OpenAIProvider) chatRequest(prompt string, opts GenerateOptions, stream bool) openai.ChatCompletionRequest {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       p.config.ChatModel,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}
