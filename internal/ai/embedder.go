package ai

import "context"

// Embedder wraps the embedding API behind the two allowed intents so
// callers cannot mix them.
type Embedder struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *Embedder {
	return &Embedder{client: client, cfg: cfg}
}

// EmbedForIndexing embeds document chunks with document intent, preserving
// input order in the output.
func (e *Embedder) EmbedForIndexing(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, e.cfg, texts, TaskRetrievalDocument)
}

// EmbedForQuery embeds a search query with query intent.
func (e *Embedder) EmbedForQuery(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.cfg, text, TaskRetrievalQuery)
}

// Dimensions reports the canonical embedding vector length.
func (e *Embedder) Dimensions() int {
	return e.cfg.Dimensions
}
