package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// DirChecker checks that the image directory is readable.
type DirChecker interface {
	List(ctx context.Context) ([]string, error)
}
