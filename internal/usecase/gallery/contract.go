package gallery

import (
	"context"
	"io"
)

// Files is the on-disk image collection.
type Files interface {
	List(ctx context.Context) ([]string, error)
	Save(name string, r io.Reader) (string, error)
	SoftDelete(p string) (string, error)
}

// Indexer embeds and upserts an explicit set of images.
type Indexer interface {
	IndexPaths(ctx context.Context, paths []string) (int, error)
}

// VectorDeleter retracts vector entries.
type VectorDeleter interface {
	Delete(ctx context.Context, index, namespace string, ids []string) error
}
