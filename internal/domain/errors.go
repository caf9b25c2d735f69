package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrIndexNotFound signals a missing vector index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrImageNotFound signals that an image is not present in the data directory.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidImage signals a file name that is not an eligible image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrNoFiles signals an upload request without files.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrInvalidRequest signals malformed request parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrListingFailed signals that the data directory could not be listed.
	ErrListingFailed = errors.New("image listing failed")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRunNotFound signals an unknown indexing run.
	ErrRunNotFound = errors.New("indexing run not found")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorStoreError signals a vector store failure.
	ErrVectorStoreError = errors.New("vector store error")
)

// DimensionMismatchError wraps ErrVectorDimMismatch with the expected and actual sizes.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: index expects %d, got %d", ErrVectorDimMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrVectorDimMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(want, got int) error {
	return &DimensionMismatchError{Want: want, Got: got}
}
