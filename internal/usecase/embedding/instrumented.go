package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/batch"
	"github.com/kailas-cloud/imagedex/internal/observability"
)

// DefaultMaxAPIBatchSize is the largest number of images sent in one provider request.
const DefaultMaxAPIBatchSize = 32

// InstrumentedEmbedder wraps Embedder with tracing, logging and request splitting.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner       domain.Embedder
	model       string
	maxAPIBatch int
	logger      *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with observability.
func NewInstrumentedEmbedder(inner domain.Embedder, model string, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:       inner,
		model:       model,
		maxAPIBatch: DefaultMaxAPIBatchSize,
		logger:      logger,
	}
}

// WithMaxAPIBatch overrides the per-request image limit.
func (p *InstrumentedEmbedder) WithMaxAPIBatch(n int) *InstrumentedEmbedder {
	if n > 0 {
		p.maxAPIBatch = n
	}
	return p
}

// Embed delegates to the inner embedder and logs the outcome.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, imagePath string) (domain.EmbeddingResult, error) {
	ctx, span := observability.StartEmbedSpan(ctx, p.model, 1)
	defer span.End()

	start := time.Now()
	result, err := p.inner.Embed(ctx, imagePath)
	duration := time.Since(start)

	if err != nil {
		observability.RecordError(span, err)
		p.logger.Error("Embedding request failed",
			zap.String("model", p.model),
			zap.String("image", imagePath),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits paths into provider-sized requests and delegates to inner.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, imagePaths []string) (domain.BatchEmbeddingResult, error) {
	if len(imagePaths) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	ctx, span := observability.StartEmbedSpan(ctx, p.model, len(imagePaths))
	defer span.End()

	start := time.Now()
	embeddings := make([][]float32, 0, len(imagePaths))
	var totalPrompt, totalTokens int

	for i, chunk := range batch.Chunk(imagePaths, p.maxAPIBatch) {
		res, err := domain.EmbedAll(ctx, p.inner, chunk)
		if err != nil {
			observability.RecordError(span, err)
			p.logger.Error("Batch embedding request failed",
				zap.String("model", p.model),
				zap.Int("request", i),
				zap.Int("request_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		embeddings = append(embeddings, res.Embeddings...)
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(imagePaths)),
		zap.Int("total_tokens", totalTokens),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck passes through to the provider when it supports one.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
