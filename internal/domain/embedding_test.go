package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   []string
}

func (s *stubEmbedder) Embed(_ context.Context, imagePath string) (EmbeddingResult, error) {
	s.calls = append(s.calls, imagePath)
	if s.err != nil {
		return EmbeddingResult{}, s.err
	}
	return EmbeddingResult{Embedding: s.vectors[imagePath], PromptTokens: 1, TotalTokens: 2}, nil
}

type stubBatchEmbedder struct {
	stubEmbedder
	batchCalls int
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, paths []string) (BatchEmbeddingResult, error) {
	s.batchCalls++
	out := make([][]float32, len(paths))
	for i, p := range paths {
		out[i] = s.vectors[p]
	}
	return BatchEmbeddingResult{Embeddings: out}, nil
}

func TestBatchFallback_PreservesOrderAndSumsUsage(t *testing.T) {
	e := &stubEmbedder{vectors: map[string][]float32{
		"a.jpg": {1},
		"b.jpg": {2},
	}}

	res, err := BatchFallback(context.Background(), e, []string{"b.jpg", "a.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings[0][0] != 2 || res.Embeddings[1][0] != 1 {
		t.Errorf("embeddings out of order: %v", res.Embeddings)
	}
	if res.PromptTokens != 2 || res.TotalTokens != 4 {
		t.Errorf("usage = %d/%d, want 2/4", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchFallback_StopsOnError(t *testing.T) {
	providerErr := errors.New("provider down")
	e := &stubEmbedder{err: providerErr}

	_, err := BatchFallback(context.Background(), e, []string{"a.jpg", "b.jpg"})
	if !errors.Is(err, providerErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if len(e.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(e.calls))
	}
}

func TestEmbedAll_PrefersNativeBatch(t *testing.T) {
	e := &stubBatchEmbedder{stubEmbedder: stubEmbedder{vectors: map[string][]float32{"a.jpg": {1}}}}

	res, err := EmbedAll(context.Background(), e, []string{"a.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.batchCalls != 1 || len(e.calls) != 0 {
		t.Errorf("batch=%d single=%d, want 1/0", e.batchCalls, len(e.calls))
	}
	if len(res.Embeddings) != 1 {
		t.Errorf("embeddings = %v", res.Embeddings)
	}
}

func TestEmbedAll_FallsBack(t *testing.T) {
	e := &stubEmbedder{vectors: map[string][]float32{"a.jpg": {1}}}

	if _, err := EmbedAll(context.Background(), e, []string{"a.jpg"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(e.calls))
	}
}
