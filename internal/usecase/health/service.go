// Package health aggregates component checks for the /health endpoint.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means search or indexing is impaired but the store is up.
	Degraded Status = "degraded"
	// Unhealthy means the vector store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used in Report.Checks.
const (
	ComponentStore     = "vector_store"
	ComponentEmbedding = "embedding"
	ComponentDataDir   = "data_dir"
)

const defaultTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	dir       DirChecker
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Service. embedding and dir can be nil.
func New(store StorePinger, embedding EmbeddingChecker, dir DirChecker, logger *zap.Logger) *Service {
	return &Service{store: store, embedding: embedding, dir: dir, timeout: defaultTimeout, logger: logger}
}

// Check runs all component checks concurrently, each bounded by the check timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]func(context.Context) error{
		ComponentStore: s.store.Ping,
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = s.embedding.HealthCheck
	}
	if s.dir != nil {
		checks[ComponentDataDir] = func(ctx context.Context) error {
			_, err := s.dir.List(ctx)
			return err
		}
	}

	var mu sync.Mutex
	results := make(map[string]CheckResult, len(checks))
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := check(cctx); err != nil {
				res = CheckError
				s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := Healthy
	for name, r := range results {
		if r != CheckError {
			continue
		}
		if name == ComponentStore {
			status = Unhealthy
			break
		}
		status = Degraded
	}
	return Report{Status: status, Checks: results}
}
