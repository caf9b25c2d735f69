// Package search finds the indexed images most similar to a query image.
package search

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/logger"
	"github.com/kailas-cloud/imagedex/internal/metrics"
	"github.com/kailas-cloud/imagedex/internal/observability"
)

// Hit is one search result as served to clients.
type Hit struct {
	Src   string  `json:"src"`
	Score float64 `json:"score"`
}

// Options configure the lookup.
type Options struct {
	Index        string
	Namespace    string
	TopK         int
	PublicPrefix string
}

// Service handles image similarity search.
type Service struct {
	files    Resolver
	embedder domain.Embedder
	store    Querier
	opts     Options
}

// New creates a search service.
func New(files Resolver, embedder domain.Embedder, store Querier, opts Options) *Service {
	cfg := domain.DefaultVectorConfig()
	if opts.TopK < 1 {
		opts.TopK = cfg.TopK
	}
	if opts.Namespace == "" {
		opts.Namespace = cfg.Namespace
	}
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/"
	}
	return &Service{files: files, embedder: embedder, store: store, opts: opts}
}

// Search embeds the query image and returns up to TopK matches in store
// order, best first.
func (s *Service) Search(ctx context.Context, imagePath string) ([]Hit, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := observability.StartSearchSpan(ctx, s.opts.Index, s.opts.TopK)
	defer span.End()

	full, err := s.files.Resolve(imagePath)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("resolve query image: %w", err)
	}

	emb, err := s.embedder.Embed(ctx, full)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("vectorize query image: %w", err)
	}

	matches, err := s.store.Query(ctx, s.opts.Index, s.opts.Namespace, domain.QueryRequest{
		Vector:          emb.Embedding,
		TopK:            s.opts.TopK,
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{
			Src:   NormalizePath(s.opts.PublicPrefix, m.Metadata[domain.MetadataImagePath]),
			Score: m.Score,
		}
	}

	logger.FromContext(ctx).Debug("Search completed",
		zap.String("query", domain.FileName(full)),
		zap.Int("matches", len(hits)),
	)
	return hits, nil
}

// NormalizePath turns a stored image path, written with either separator,
// into its public URL under publicRoot. An empty stored path yields "".
func NormalizePath(publicRoot, stored string) string {
	if strings.TrimSpace(stored) == "" {
		return ""
	}
	name := domain.FileName(stored)
	if name == "." || name == "/" {
		return ""
	}
	return path.Join("/", publicRoot, name)
}
