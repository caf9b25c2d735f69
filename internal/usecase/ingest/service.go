// Package ingest embeds image files and upserts their vectors in batches,
// tracking each indexing run in a bounded in-memory registry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/batch"
	"github.com/kailas-cloud/imagedex/internal/domain/run"
	"github.com/kailas-cloud/imagedex/internal/logger"
	"github.com/kailas-cloud/imagedex/internal/metrics"
	"github.com/kailas-cloud/imagedex/internal/observability"
)

var errShuttingDown = errors.New("ingest service is shutting down")

const defaultRunHistory = 100

// Options tune batching, retries and run history.
type Options struct {
	Index        string
	Namespace    string
	BatchSize    int           // outer batch, unit of failure isolation
	ChunkSize    int           // inner chunk, one embed + upsert call
	Concurrency  int           // outer batches in flight; 1 = sequential
	Retries      int           // extra attempts per chunk; 0 = none
	BatchTimeout time.Duration // 0 = none
	RunHistory   int           // registry slots; also caps active runs
}

// Service runs indexing jobs.
type Service struct {
	ensurer  IndexEnsurer
	lister   Lister
	embedder domain.Embedder
	store    VectorStore
	opts     Options
	runs     *registry
	logger   *zap.Logger

	now           func() time.Time
	newID         func() string
	retryInterval time.Duration

	base     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopping bool
}

// New creates an ingest service.
func New(
	ensurer IndexEnsurer,
	lister Lister,
	embedder domain.Embedder,
	store VectorStore,
	opts Options,
	logger *zap.Logger,
) *Service {
	cfg := domain.DefaultVectorConfig()
	if opts.BatchSize < 1 {
		opts.BatchSize = cfg.BatchSize
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = cfg.ChunkSize
	}
	opts.ChunkSize = min(opts.ChunkSize, opts.BatchSize)
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Namespace == "" {
		opts.Namespace = cfg.Namespace
	}
	if opts.RunHistory < 1 {
		opts.RunHistory = defaultRunHistory
	}

	base, stop := context.WithCancel(context.Background())
	return &Service{
		ensurer:       ensurer,
		lister:        lister,
		embedder:      embedder,
		store:         store,
		opts:          opts,
		runs:          newRegistry(opts.RunHistory),
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
		retryInterval: 500 * time.Millisecond,
		base:          base,
		stop:          stop,
	}
}

// Start registers a run and executes it in the background. The run is
// detached from ctx: it keeps going after the caller returns.
func (s *Service) Start(ctx context.Context) (run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return run.Run{}, errShuttingDown
	}

	runCtx, cancel := context.WithCancel(s.base)
	// keep the request's trace and logger, drop its deadline and cancellation
	runCtx = logger.ContextWithLogger(runCtx, logger.FromContext(ctx))
	runCtx = withSpanContext(runCtx, ctx)

	rn := run.New(s.newID(), s.now())
	if err := s.runs.add(rn, cancel); err != nil {
		cancel()
		return run.Run{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.Run(runCtx, rn.ID)
	}()

	s.logger.Info("Indexing run started", zap.String("run_id", rn.ID))
	return rn, nil
}

// RunNow registers a run and executes it synchronously.
func (s *Service) RunNow(ctx context.Context) (run.Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rn := run.New(s.newID(), s.now())
	if err := s.runs.add(rn, cancel); err != nil {
		return run.Run{}, err
	}
	return s.Run(runCtx, rn.ID)
}

// Run executes a registered run: ensure the index, enumerate, then embed and
// upsert batch by batch. A failed batch is recorded and skipped. The returned
// error is set only when the run itself failed or was cancelled.
func (s *Service) Run(ctx context.Context, runID string) (run.Run, error) {
	snap, ok := s.runs.get(runID)
	if !ok {
		return run.Run{}, domain.ErrRunNotFound
	}
	if snap.State != run.StatePending {
		return snap, fmt.Errorf("%w: run %s is %s", domain.ErrInvalidRequest, runID, snap.State)
	}
	defer s.runs.release(runID)

	t := &tracker{run: snap, reg: s.runs}
	log := s.logger.With(zap.String("run_id", runID))

	ctx, span := observability.StartRunSpan(ctx, runID, s.opts.Index)
	defer span.End()

	finish := func(state run.State, err error) (run.Run, error) {
		rn := t.apply(func(r *run.Run) { r.Finish(state, err, s.now()) })
		metrics.IndexRunsTotal.WithLabelValues(string(state)).Inc()
		observability.RecordError(span, err)
		log.Info("Indexing run finished",
			zap.String("state", string(state)),
			zap.Int("images", rn.TotalImages),
			zap.Int("upserted", rn.ImagesUpserted),
			zap.Int("batches_failed", rn.BatchesFailed),
			zap.Error(err),
		)
		return rn, err
	}

	if err := ctx.Err(); err != nil {
		return finish(run.StateCancelled, err)
	}
	t.apply(func(r *run.Run) { r.Start(s.now()) })

	if _, err := s.ensurer.Ensure(ctx); err != nil {
		return finish(s.failState(ctx), fmt.Errorf("ensure index: %w", err))
	}

	paths, err := s.lister.List(ctx)
	if err != nil {
		return finish(s.failState(ctx), fmt.Errorf("list images: %w", err))
	}

	batches := batch.Count(len(paths), s.opts.BatchSize)
	t.apply(func(r *run.Run) { r.Plan(len(paths), batches) })
	log.Info("Indexing images", zap.Int("images", len(paths)), zap.Int("batches", batches))

	s.processAll(ctx, paths, func(res batch.Result) {
		t.apply(func(r *run.Run) { r.RecordBatch(res.Upserted(), res.Err()) })
	})

	if err := ctx.Err(); err != nil {
		return finish(run.StateCancelled, err)
	}
	return finish(run.StateCompleted, nil)
}

// IndexPaths embeds and upserts an explicit list of images synchronously,
// without registering a run. Every batch is attempted; the first batch
// error is returned.
func (s *Service) IndexPaths(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	if _, err := s.ensurer.Ensure(ctx); err != nil {
		return 0, fmt.Errorf("ensure index: %w", err)
	}

	var mu sync.Mutex
	var upserted int
	var firstErr error
	s.processAll(ctx, paths, func(res batch.Result) {
		mu.Lock()
		defer mu.Unlock()
		upserted += res.Upserted()
		if firstErr == nil && res.Err() != nil {
			firstErr = res.Err()
		}
	})
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return upserted, firstErr
}

// Status returns a snapshot of a run.
func (s *Service) Status(runID string) (run.Run, error) {
	rn, ok := s.runs.get(runID)
	if !ok {
		return run.Run{}, domain.ErrRunNotFound
	}
	return rn, nil
}

// List returns the retained runs, newest first.
func (s *Service) List() []run.Run {
	return s.runs.list()
}

// Cancel requests cancellation. The run stops at the next batch boundary;
// the returned snapshot may still show it running.
func (s *Service) Cancel(runID string) (run.Run, error) {
	rn, ok := s.runs.cancel(runID)
	if !ok {
		return run.Run{}, domain.ErrRunNotFound
	}
	return rn, nil
}

// Shutdown cancels all active runs and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}

// processAll splits paths into outer batches and processes them in order,
// up to Concurrency at a time. No new batch starts once ctx is done.
func (s *Service) processAll(ctx context.Context, paths []string, record func(batch.Result)) {
	if s.opts.Concurrency <= 1 {
		for i, group := range batch.Chunk(paths, s.opts.BatchSize) {
			if ctx.Err() != nil {
				return
			}
			record(s.processBatch(ctx, i, group))
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, group := range batch.Chunk(paths, s.opts.BatchSize) {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(s.processBatch(ctx, i, group))
			return nil
		})
	}
	_ = g.Wait()
}

// processBatch embeds and upserts one outer batch chunk by chunk. The first
// chunk that still fails after retries fails the batch; later chunks are skipped.
func (s *Service) processBatch(ctx context.Context, index int, paths []string) batch.Result {
	start := time.Now()
	ctx, span := observability.StartBatchSpan(ctx, index, len(paths))
	defer span.End()

	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	var upserted, attempts int
	var err error
	for _, chunk := range batch.Chunk(paths, s.opts.ChunkSize) {
		var n int
		n, err = s.processChunk(ctx, chunk)
		attempts += n
		if err != nil {
			break
		}
		upserted += len(chunk)
	}
	res := batch.NewOK(index, len(paths), upserted)
	if err != nil {
		res = batch.NewError(index, len(paths), upserted, err)
	}

	metrics.IndexBatchDuration.Observe(time.Since(start).Seconds())
	metrics.IndexBatchesTotal.WithLabelValues(string(res.Status())).Inc()
	metrics.IndexImagesUpsertedTotal.Add(float64(res.Upserted()))
	observability.RecordBatchResult(span, res.Upserted(), attempts, res.Err())

	if err != nil {
		s.logger.Error("Batch failed",
			zap.Int("batch", index),
			zap.Int("size", len(paths)),
			zap.Int("upserted", upserted),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("Batch indexed", zap.Int("batch", index), zap.Int("upserted", upserted))
	}
	return res
}

// processChunk embeds and upserts one chunk with retries and reports the
// number of attempts made.
func (s *Service) processChunk(ctx context.Context, paths []string) (int, error) {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		err := s.embedAndUpsert(ctx, paths)
		if err != nil && !retryable(ctx, err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.Retries)+1),
	)
	return attempts, err
}

func (s *Service) embedAndUpsert(ctx context.Context, paths []string) error {
	res, err := domain.EmbedAll(ctx, s.embedder, paths)
	if err != nil {
		return fmt.Errorf("embed %d images: %w", len(paths), err)
	}
	if len(res.Embeddings) != len(paths) {
		return fmt.Errorf("expected %d embeddings, got %d: %w",
			len(paths), len(res.Embeddings), domain.ErrEmbeddingProviderError)
	}

	records := make([]domain.Record, len(paths))
	for i, p := range paths {
		records[i] = domain.NewImageRecord(p, res.Embeddings[i])
	}
	if err := s.store.Upsert(ctx, s.opts.Index, s.opts.Namespace, records); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// failState distinguishes a cancelled run from a failed one.
func (s *Service) failState(ctx context.Context) run.State {
	if ctx.Err() != nil {
		return run.StateCancelled
	}
	return run.StateFailed
}

// retryable reports whether another attempt could succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, domain.ErrVectorDimMismatch),
		errors.Is(err, domain.ErrInvalidImage),
		errors.Is(err, domain.ErrImageNotFound),
		errors.Is(err, domain.ErrIndexNotFound):
		return false
	}
	return true
}

// withSpanContext carries the span context of from into ctx so the run span
// can link to the request that started it.
func withSpanContext(ctx, from context.Context) context.Context {
	return trace.ContextWithSpanContext(ctx, trace.SpanContextFromContext(from))
}
