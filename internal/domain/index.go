package domain

import (
	"errors"
	"fmt"
)

// Metric is the similarity function an index ranks by.
type Metric string

// Supported metrics.
const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotproduct"
)

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
		return true
	}
	return false
}

// IndexSpec describes a vector index. Dimension and metric are fixed at creation.
type IndexSpec struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Cloud     string `json:"cloud"`
	Region    string `json:"region"`
}

// Validate checks that the spec can be used to create an index.
func (s IndexSpec) Validate() error {
	if s.Name == "" {
		return errors.New("index name is required")
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("index dimension must be positive, got %d", s.Dimension)
	}
	if !s.Metric.Valid() {
		return fmt.Errorf("unsupported metric %q", s.Metric)
	}
	return nil
}

// IndexStatus is the stored description of an index plus its readiness.
type IndexStatus struct {
	Spec  IndexSpec `json:"spec"`
	Ready bool      `json:"ready"`
}
