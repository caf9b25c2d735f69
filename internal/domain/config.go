package domain

// KeyPrefix is the default key namespace in the key-value store.
const KeyPrefix = "imagedex:"

// DefaultNamespace is the index partition used when none is configured.
const DefaultNamespace = "default"

// VectorConfig holds the indexing defaults, not exposed to clients.
type VectorConfig struct {
	Model      string
	Dimensions int
	Metric     Metric
	TopK       int
	BatchSize  int
	ChunkSize  int
	Namespace  string
}

// DefaultVectorConfig returns the defaults tuned for CLIP ViT-B/32.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:      "clip-vit-base-patch32",
		Dimensions: 512,
		Metric:     MetricCosine,
		TopK:       6,
		BatchSize:  50,
		ChunkSize:  10,
		Namespace:  DefaultNamespace,
	}
}
