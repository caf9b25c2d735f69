// Package imagefs exposes the on-disk image collection: listing eligible
// files, saving uploads, resolving client paths and soft deletion.
package imagefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// DeletedMarker tags soft-deleted files; names containing it are never listed.
const DeletedMarker = "_deleted"

var allowedExt = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// IsEligible reports whether a file name belongs to the indexable collection.
func IsEligible(name string) bool {
	if strings.Contains(name, ".DS_Store") || strings.Contains(name, DeletedMarker) {
		return false
	}
	_, ok := allowedExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Dir is a flat image directory.
type Dir struct {
	root   string
	logger *zap.Logger
}

// New creates a Dir rooted at root. The directory is created lazily.
func New(root string, logger *zap.Logger) *Dir {
	return &Dir{root: filepath.Clean(root), logger: logger}
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// List returns the eligible regular files in directory-listing order as
// paths joined with the root. A missing directory is created and yields an
// empty list.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.root)
	if errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(d.root, 0o755); mkErr != nil {
			d.logger.Error("create data directory", zap.String("dir", d.root), zap.Error(mkErr))
			return nil, fmt.Errorf("%w: create %s: %w", domain.ErrListingFailed, d.root, mkErr)
		}
		d.logger.Info("created data directory", zap.String("dir", d.root))
		return []string{}, nil
	}
	if err != nil {
		d.logger.Error("list data directory", zap.String("dir", d.root), zap.Error(err))
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrListingFailed, d.root, err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !IsEligible(e.Name()) {
			continue
		}
		p := filepath.Join(d.root, e.Name())
		// Stat follows symlinks so linked images are listed like regular ones.
		info, err := os.Stat(p)
		if err != nil {
			d.logger.Warn("skip unreadable entry", zap.String("path", p), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// CheckUploadName returns the base name an upload is stored under, or
// domain.ErrInvalidImage when it would not be listed.
func CheckUploadName(name string) (string, error) {
	base := domain.FileName(name)
	if base == "." || base == "/" || base == ".." || !IsEligible(base) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidImage, name)
	}
	return base, nil
}

// Save writes an upload under its base name, replacing any existing file,
// and returns the stored path.
func (d *Dir) Save(name string, r io.Reader) (string, error) {
	base, err := CheckUploadName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	dst := filepath.Join(d.root, base)
	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", base, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store %s: %w", base, err)
	}
	return dst, nil
}

// Resolve maps a client-supplied path (public URL path, relative path or bare
// file name, either separator) to the file inside the root. Only listed
// images resolve: tombstones and other names are not found.
func (d *Dir) Resolve(p string) (string, error) {
	base := domain.FileName(strings.TrimSpace(p))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidRequest, p)
	}
	if !IsEligible(base) {
		return "", fmt.Errorf("%w: %s", domain.ErrImageNotFound, base)
	}

	full := filepath.Join(d.root, base)
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", domain.ErrImageNotFound, base)
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", base, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", domain.ErrImageNotFound, base)
	}
	return full, nil
}

// SoftDelete renames name.ext to name_deleted.ext so List no longer returns
// it. An existing tombstone is not overwritten; a timestamp is appended instead.
// Returns the resolved original path.
func (d *Dir) SoftDelete(p string) (string, error) {
	full, err := d.Resolve(p)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(full)
	stem := strings.TrimSuffix(full, ext)
	target := stem + DeletedMarker + ext
	if _, err := os.Stat(target); err == nil {
		target = fmt.Sprintf("%s%s_%d%s", stem, DeletedMarker, time.Now().UnixNano(), ext)
	}

	if err := os.Rename(full, target); err != nil {
		return "", fmt.Errorf("rename %s: %w", filepath.Base(full), err)
	}
	d.logger.Info("image soft-deleted",
		zap.String("path", full),
		zap.String("tombstone", filepath.Base(target)),
	)
	return full, nil
}
