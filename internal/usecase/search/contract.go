package search

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// Resolver maps a client-supplied image path to the file on disk.
type Resolver interface {
	Resolve(p string) (string, error)
}

// Querier runs nearest-neighbor lookups.
type Querier interface {
	Query(ctx context.Context, index, namespace string, req domain.QueryRequest) ([]domain.Match, error)
}
