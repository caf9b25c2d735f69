package index

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// Store defines the index lifecycle contract of a vector store.
type Store interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, spec domain.IndexSpec) error
	DescribeIndex(ctx context.Context, name string) (domain.IndexStatus, error)
}
