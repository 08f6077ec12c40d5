package gateway

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultEmbedModel is used when neither the request nor configuration name
// an embedding model.
const DefaultEmbedModel = "nomic-embed-text-v1.5"

// Embedder produces embedding vectors through the local server's
// OpenAI-compatible /v1 surface. Lifecycle operations stay on the native
// API; embeddings are the one call where the compatible surface is the
// documented contract.
type Embedder struct {
	api          *openai.Client
	defaultModel string
}

// NewEmbedder builds an Embedder against the same base URL as the gateway
// client. The local server ignores API keys.
func NewEmbedder(baseURL, defaultModel string) *Embedder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if defaultModel == "" {
		defaultModel = DefaultEmbedModel
	}
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &Embedder{api: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}
}

// DefaultModel reports the embedding model used when a request names none.
func (e *Embedder) DefaultModel() string { return e.defaultModel }

// Embed returns one vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text, modelKey string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, modelKey)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ErrGateway("embed", "server returned no embedding")
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order. A server
// response with a different vector count than inputs is an error, never a
// short result.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, modelKey string) ([][]float32, error) {
	if modelKey == "" {
		modelKey = e.defaultModel
	}
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(modelKey),
	})
	if err != nil {
		return nil, ErrGateway("embed", err.Error())
	}
	if len(resp.Data) != len(texts) {
		return nil, ErrGateway("embed", fmt.Sprintf("server returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, ErrGateway("embed", fmt.Sprintf("server returned embedding index %d for %d inputs", d.Index, len(texts)))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
