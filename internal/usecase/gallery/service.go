// Package gallery serves the browsable image collection: pagination,
// uploads and deletion.
package gallery

import (
	"context"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/gallery"
	"github.com/kailas-cloud/imagedex/internal/logger"
	"github.com/kailas-cloud/imagedex/internal/metrics"
	"github.com/kailas-cloud/imagedex/internal/repository/imagefs"
)

// Upload is one file received from a client.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// UploadResult reports a completed upload.
type UploadResult struct {
	Saved            int
	Indexed          int
	PageOfFirstImage int
}

// Options configure the gallery.
type Options struct {
	Index           string
	Namespace       string
	PublicPrefix    string
	DefaultPageSize int
	MaxPageSize     int
}

// Service handles gallery operations.
type Service struct {
	files   Files
	indexer Indexer
	vectors VectorDeleter
	opts    Options
}

// New creates a gallery service.
func New(files Files, indexer Indexer, vectors VectorDeleter, opts Options) *Service {
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	if opts.Namespace == "" {
		opts.Namespace = domain.DefaultNamespace
	}
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/"
	}
	return &Service{files: files, indexer: indexer, vectors: vectors, opts: opts}
}

// PageParams normalizes client pagination: non-positive values fall back to
// page 1 and the default page size; the page size is capped.
func (s *Service) PageParams(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.opts.DefaultPageSize
	}
	return page, min(pageSize, s.opts.MaxPageSize)
}

// List returns one page of the current listing.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]gallery.Item, error) {
	paths, err := s.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	window := gallery.Page(paths, page, pageSize)
	items := make([]gallery.Item, len(window))
	for i, p := range window {
		items[i] = gallery.NewItem(s.opts.PublicPrefix, p)
	}
	logger.FromContext(ctx).Debug("Gallery page",
		zap.Int("page", page),
		zap.Int("page_size", pageSize),
		zap.Int("total", len(paths)),
		zap.Int("returned", len(items)),
	)
	return items, nil
}

// Upload saves the files, indexes them and reports the page the first one
// landed on. Nothing is saved unless every name is an image name; files
// already saved stay on disk when indexing fails.
func (s *Service) Upload(ctx context.Context, uploads []Upload, pageSize int) (UploadResult, error) {
	if len(uploads) == 0 {
		return UploadResult{}, domain.ErrNoFiles
	}
	for _, u := range uploads {
		if _, err := imagefs.CheckUploadName(u.Name); err != nil {
			return UploadResult{}, fmt.Errorf("save upload %s: %w", u.Name, err)
		}
	}
	log := logger.FromContext(ctx)

	saved := make([]string, 0, len(uploads))
	for _, u := range uploads {
		p, err := s.save(u)
		if err != nil {
			return UploadResult{Saved: len(saved)}, err
		}
		log.Info("Image saved", zap.String("path", p))
		saved = append(saved, p)
	}

	indexed, err := s.indexer.IndexPaths(ctx, saved)
	res := UploadResult{Saved: len(saved), Indexed: indexed, PageOfFirstImage: 1}
	if err != nil {
		return res, fmt.Errorf("index uploads: %w", err)
	}

	paths, err := s.files.List(ctx)
	if err != nil {
		log.Warn("Listing after upload failed", zap.Error(err))
		return res, nil
	}
	if i := slices.Index(paths, saved[0]); i >= 0 {
		res.PageOfFirstImage = gallery.PageOf(i, pageSize)
	}
	return res, nil
}

func (s *Service) save(u Upload) (string, error) {
	rc, err := u.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", u.Name, err)
	}
	defer func() { _ = rc.Close() }()

	p, err := s.files.Save(u.Name, rc)
	if err != nil {
		return "", fmt.Errorf("save upload %s: %w", u.Name, err)
	}
	return p, nil
}

// Delete soft-deletes the image and retracts its vector. A failed retraction
// is logged and counted; the file is already out of the listing.
func (s *Service) Delete(ctx context.Context, imagePath string) error {
	full, err := s.files.SoftDelete(imagePath)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}

	id := domain.RecordID(full)
	if err := s.vectors.Delete(ctx, s.opts.Index, s.opts.Namespace, []string{id}); err != nil {
		metrics.VectorDeletesTotal.WithLabelValues("error").Inc()
		logger.FromContext(ctx).Warn("Vector retraction failed",
			zap.String("path", full),
			zap.String("record_id", id),
			zap.Error(err),
		)
		return nil
	}
	metrics.VectorDeletesTotal.WithLabelValues("ok").Inc()
	return nil
}
