package ingest

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type fakeEnsurer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEnsurer) Ensure(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.calls == 1, f.err
}

type fakeLister struct {
	paths []string
	err   error
	calls int
}

func (f *fakeLister) List(context.Context) ([]string, error) {
	f.calls++
	return slices.Clone(f.paths), f.err
}

// fakeEmbedder returns a 2-dim vector per path. Paths containing "bad" fail;
// the first failFirst calls fail with a transient error. gate, when set,
// blocks every call until it is closed or ctx is done.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	gate      chan struct{}
	started   chan struct{}
}

func (f *fakeEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	panic("batch path expected")
}

func (f *fakeEmbedder) BatchEmbed(ctx context.Context, paths []string) (domain.BatchEmbeddingResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.BatchEmbeddingResult{}, ctx.Err()
		}
	}
	if call <= f.failFirst {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("503: %w", domain.ErrEmbeddingProviderError)
	}

	out := make([][]float32, len(paths))
	for i, p := range paths {
		if strings.Contains(p, "bad") {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("decode %s: %w", p, domain.ErrInvalidImage)
		}
		out[i] = []float32{float32(len(p)), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(paths)}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memVectors is an in-memory VectorStore keyed by namespace and record ID.
type memVectors struct {
	mu      sync.Mutex
	records map[string]domain.Record
	upserts int
	err     error
}

func newMemVectors() *memVectors {
	return &memVectors{records: map[string]domain.Record{}}
}

func (m *memVectors) Upsert(_ context.Context, index, namespace string, records []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.err != nil {
		return m.err
	}
	for _, r := range records {
		m.records[index+"/"+namespace+"/"+r.ID] = r
	}
	return nil
}

func (m *memVectors) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func imagePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("data/img%02d.jpg", i)
	}
	return paths
}

type testDeps struct {
	ensurer  *fakeEnsurer
	lister   *fakeLister
	embedder *fakeEmbedder
	store    *memVectors
}

func newTestService(t *testing.T, paths []string, opts Options) (*Service, *testDeps) {
	t.Helper()
	d := &testDeps{
		ensurer:  &fakeEnsurer{},
		lister:   &fakeLister{paths: paths},
		embedder: &fakeEmbedder{},
		store:    newMemVectors(),
	}
	if opts.Index == "" {
		opts.Index = "images"
	}
	s := New(d.ensurer, d.lister, d.embedder, d.store, opts, zap.NewNop())
	s.retryInterval = time.Millisecond
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, d
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
