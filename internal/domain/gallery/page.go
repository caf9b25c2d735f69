// Package gallery holds the paginated view over the image collection.
package gallery

import (
	"path"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// Page returns the 1-indexed page of items. Out-of-range pages are empty.
// page and pageSize must be positive; the HTTP layer normalizes them.
func Page[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return nil
	}
	if page-1 >= (len(items)+pageSize-1)/pageSize {
		return nil
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))
	return items[start:end]
}

// PageOf returns the 1-indexed page holding the item at index.
func PageOf(index, pageSize int) int {
	if index < 0 || pageSize < 1 {
		return 1
	}
	return index/pageSize + 1
}

// Item is one image as presented to gallery clients.
type Item struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// NewItem builds the servable view of an on-disk image path.
func NewItem(publicPrefix, imagePath string) Item {
	name := domain.FileName(imagePath)
	return Item{Src: path.Join(publicPrefix, name), Alt: name}
}
