package domain

import (
	"context"
	"fmt"
)

// Embedder is the image vectorization contract shared between layers.
type Embedder interface {
	Embed(ctx context.Context, imagePath string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple images in a single provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, imagePaths []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries one vector per input image, in input order.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per image for providers without a native batch call.
func BatchFallback(ctx context.Context, e Embedder, imagePaths []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(imagePaths))
	var totalPrompt, totalTokens int

	for i, p := range imagePaths {
		res, err := e.Embed(ctx, p)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed %s: %w", p, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// EmbedAll uses the native batch call when e supports it and falls back to per-image calls otherwise.
func EmbedAll(ctx context.Context, e Embedder, imagePaths []string) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, imagePaths)
	}
	return BatchFallback(ctx, e, imagePaths)
}
