package domain

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// MetadataImagePath is the metadata key joining a vector entry to its file.
const MetadataImagePath = "imagePath"

var recordNamespace = uuid.MustParse("5b0f8a3e-4c1d-5e8f-9a2b-7c6d3e1f0a94")

// Record is a vector entry as written to the store.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// NewImageRecord builds the vector entry for an image file.
func NewImageRecord(imagePath string, vector []float32) Record {
	return Record{
		ID:       RecordID(imagePath),
		Vector:   vector,
		Metadata: map[string]string{MetadataImagePath: imagePath},
	}
}

// RecordID derives a stable record ID from the image file name. Re-indexing
// the same file overwrites its entry; the data root it was read from does not matter.
func RecordID(imagePath string) string {
	return uuid.NewSHA1(recordNamespace, []byte(FileName(imagePath))).String()
}

// FileName returns the last path segment, treating both separators alike.
func FileName(p string) string {
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}

// Match is a single nearest-neighbor hit. Score is zero when the store reports none.
type Match struct {
	ID       string
	Score    float64
	Vector   []float32
	Metadata map[string]string
}

// QueryRequest is a nearest-neighbor lookup in one namespace.
type QueryRequest struct {
	Vector          []float32
	TopK            int
	IncludeMetadata bool
	IncludeValues   bool
}
