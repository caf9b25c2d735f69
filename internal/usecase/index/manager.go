// Package index ensures the vector index exists before anything writes to it.
package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

var errNotReady = errors.New("index not ready")

// Manager creates the configured index on first use.
type Manager struct {
	store        Store
	spec         domain.IndexSpec
	waitReady    bool
	readyTimeout time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates an index manager for spec.
func New(store Store, spec domain.IndexSpec, logger *zap.Logger) *Manager {
	return &Manager{
		store:        store,
		spec:         spec,
		pollInterval: 500 * time.Millisecond,
		logger:       logger,
	}
}

// WithWaitReady makes Ensure block after a create until the store reports
// the index ready, or timeout elapses.
func (m *Manager) WithWaitReady(timeout time.Duration) *Manager {
	m.waitReady = true
	m.readyTimeout = timeout
	return m
}

// Spec returns the configured index spec.
func (m *Manager) Spec() domain.IndexSpec {
	return m.spec
}

// Ensure creates the index if it is not listed. created reports whether
// this call issued the create. A concurrent create elsewhere is not an error.
func (m *Manager) Ensure(ctx context.Context) (created bool, err error) {
	names, err := m.store.ListIndexes(ctx)
	if err != nil {
		m.logger.Error("Failed to list indexes", zap.Error(err))
		return false, fmt.Errorf("list indexes: %w", err)
	}
	if slices.Contains(names, m.spec.Name) {
		return false, nil
	}

	m.logger.Info("Creating index",
		zap.String("index", m.spec.Name),
		zap.Int("dimension", m.spec.Dimension),
		zap.String("metric", string(m.spec.Metric)),
		zap.String("cloud", m.spec.Cloud),
		zap.String("region", m.spec.Region),
	)

	if err := m.store.CreateIndex(ctx, m.spec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			m.logger.Info("Index already exists", zap.String("index", m.spec.Name))
			return false, nil
		}
		m.logger.Error("Failed to create index", zap.String("index", m.spec.Name), zap.Error(err))
		return false, fmt.Errorf("create index %s: %w", m.spec.Name, err)
	}
	metrics.IndexCreatedTotal.Inc()

	if m.waitReady {
		if err := m.awaitReady(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Describe returns the stored spec and readiness of the configured index.
func (m *Manager) Describe(ctx context.Context) (domain.IndexStatus, error) {
	st, err := m.store.DescribeIndex(ctx, m.spec.Name)
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("describe index %s: %w", m.spec.Name, err)
	}
	return st, nil
}

func (m *Manager) awaitReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.pollInterval
	b.MaxInterval = 10 * m.pollInterval

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if m.readyTimeout > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(m.readyTimeout))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		st, err := m.store.DescribeIndex(ctx, m.spec.Name)
		if errors.Is(err, domain.ErrIndexNotFound) {
			// spec not visible yet
			return struct{}{}, errNotReady
		}
		if err != nil {
			return struct{}{}, err
		}
		if !st.Ready {
			return struct{}{}, errNotReady
		}
		return struct{}{}, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("wait for index %s: %w", m.spec.Name, err)
	}

	m.logger.Info("Index ready", zap.String("index", m.spec.Name))
	return nil
}
