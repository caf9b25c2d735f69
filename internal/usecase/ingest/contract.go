package ingest

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// IndexEnsurer creates the target index when it is missing.
type IndexEnsurer interface {
	Ensure(ctx context.Context) (created bool, err error)
}

// Lister enumerates the image files to index.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// VectorStore defines the write contract for vector entries.
type VectorStore interface {
	Upsert(ctx context.Context, index, namespace string, records []domain.Record) error
}
