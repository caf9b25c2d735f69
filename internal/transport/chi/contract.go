package chi

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/gallery"
	"github.com/kailas-cloud/imagedex/internal/domain/run"
	galleryuc "github.com/kailas-cloud/imagedex/internal/usecase/gallery"
	healthuc "github.com/kailas-cloud/imagedex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/imagedex/internal/usecase/search"
)

// Runs starts and tracks indexing runs.
type Runs interface {
	Start(ctx context.Context) (run.Run, error)
	Status(runID string) (run.Run, error)
	List() []run.Run
	Cancel(runID string) (run.Run, error)
}

// Gallery lists, uploads and deletes images.
type Gallery interface {
	PageParams(page, pageSize int) (int, int)
	List(ctx context.Context, page, pageSize int) ([]gallery.Item, error)
	Upload(ctx context.Context, uploads []galleryuc.Upload, pageSize int) (galleryuc.UploadResult, error)
	Delete(ctx context.Context, imagePath string) error
}

// Searcher finds similar images.
type Searcher interface {
	Search(ctx context.Context, imagePath string) ([]searchuc.Hit, error)
}

// IndexManager ensures and describes the vector index.
type IndexManager interface {
	Ensure(ctx context.Context) (bool, error)
	Describe(ctx context.Context) (domain.IndexStatus, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
