// Package vectorindex stores image vectors in Valkey/Redis hashes searched
// through an FT index, one FT index per logical vector index.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/imagedex/internal/db"
	"github.com/kailas-cloud/imagedex/internal/domain"
)

// Hash field names of a record.
const (
	fieldNamespace = "namespace"
	fieldVector    = "vector"
	fieldMetadata  = "metadata"
	fieldScore     = "__vector_score"
)

// store is the consumer interface for vector records (ISP).
//
//nolint:interfacebloat // index lifecycle + record writes + KNN
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndexes(ctx context.Context) ([]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements the vector store contract on top of db.Store.
type Repo struct {
	store  store
	prefix string
	hnsw   HNSWConfig
	now    func() time.Time

	mu    sync.RWMutex
	specs map[string]domain.IndexSpec
}

// New creates a vector index repository. keyPrefix namespaces every key it writes.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	return &Repo{
		store:  s,
		prefix: keyPrefix,
		hnsw:   HNSWConfig{M: 16, EFConstruct: 200},
		now:    time.Now,
		specs:  make(map[string]domain.IndexSpec),
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// ListIndexes returns the names of the vector indexes owned by this prefix.
func (r *Repo) ListIndexes(ctx context.Context) ([]string, error) {
	all, err := r.store.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	names := make([]string, 0, len(all))
	for _, ft := range all {
		if name, ok := r.parseFTName(ft); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// CreateIndex runs FT.CREATE then stores the spec. A concurrent or earlier
// create of the same name yields domain.ErrAlreadyExists. If storing the
// spec fails the FT index is dropped again.
func (r *Repo) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	def, err := r.buildIndex(spec)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}

	if err := r.store.HSet(ctx, r.metaKey(spec.Name), specToHash(spec, r.now())); err != nil {
		cleanupErr := r.store.DropIndex(ctx, def.Name)
		return errors.Join(fmt.Errorf("store index spec %s: %w", spec.Name, err), cleanupErr)
	}

	r.remember(spec)
	return nil
}

// DescribeIndex returns the stored spec and whether the FT index is serving.
func (r *Repo) DescribeIndex(ctx context.Context, name string) (domain.IndexStatus, error) {
	m, err := r.store.HGetAll(ctx, r.metaKey(name))
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("hgetall index %s: %w", name, err)
	}
	if len(m) == 0 {
		return domain.IndexStatus{}, domain.ErrIndexNotFound
	}

	spec, err := specFromHash(m)
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("parse index %s: %w", name, err)
	}

	ready, err := r.store.IndexExists(ctx, r.ftName(name))
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("probe index %s: %w", name, err)
	}

	r.remember(spec)
	return domain.IndexStatus{Spec: spec, Ready: ready}, nil
}

// Upsert writes records into a namespace, overwriting records with the same ID.
// Every vector is checked against the index dimension before anything is written.
func (r *Repo) Upsert(ctx context.Context, index, namespace string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	spec, err := r.spec(ctx, index)
	if err != nil {
		return err
	}
	dim := spec.Dimension

	items := make([]db.HashSetItem, len(records))
	for i, rec := range records {
		if len(rec.Vector) != dim {
			return fmt.Errorf("record %s: %w", rec.ID, domain.NewDimensionMismatch(dim, len(rec.Vector)))
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %s: %w", rec.ID, err)
		}
		items[i] = db.HashSetItem{
			Key: r.recordKey(index, namespace, rec.ID),
			Fields: map[string]string{
				fieldNamespace: namespace,
				fieldVector:    db.EncodeVector(rec.Vector),
				fieldMetadata:  string(meta),
			},
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("%w: upsert %d records: %w", domain.ErrVectorStoreError, len(items), err)
	}
	return nil
}

// Query returns up to TopK nearest records in the namespace, best first.
func (r *Repo) Query(ctx context.Context, index, namespace string, q domain.QueryRequest) ([]domain.Match, error) {
	spec, err := r.spec(ctx, index)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != spec.Dimension {
		return nil, domain.NewDimensionMismatch(spec.Dimension, len(q.Vector))
	}

	returnFields := []string{fieldScore}
	if q.IncludeMetadata {
		returnFields = append(returnFields, fieldMetadata)
	}
	if q.IncludeValues {
		returnFields = append(returnFields, fieldVector)
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.ftName(index),
		VectorField:  fieldVector,
		Tags:         []db.TagFilter{{Field: fieldNamespace, Value: namespace}},
		Vector:       q.Vector,
		K:            q.TopK,
		ReturnFields: returnFields,
		RawScores:    spec.Metric == domain.MetricEuclidean,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, domain.ErrIndexNotFound
		}
		return nil, fmt.Errorf("%w: knn: %w", domain.ErrVectorStoreError, err)
	}

	matches := make([]domain.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		m := domain.Match{
			ID:    recordIDFromKey(e.Key),
			Score: e.Score,
		}
		if spec.Metric == domain.MetricEuclidean {
			// squared L2 distance to a (0, 1] similarity, keeping best-first order
			m.Score = 1 / (1 + e.Score)
		}
		if raw, ok := e.Fields[fieldMetadata]; ok && q.IncludeMetadata {
			if err := json.Unmarshal([]byte(raw), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", e.Key, err)
			}
		}
		if raw, ok := e.Fields[fieldVector]; ok && q.IncludeValues {
			vec, err := db.DecodeVector(raw)
			if err != nil {
				return nil, fmt.Errorf("decode vector %s: %w", e.Key, err)
			}
			m.Vector = vec
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Delete removes records by ID. Unknown IDs are ignored.
func (r *Repo) Delete(ctx context.Context, index, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(index, namespace, id)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: delete %d records: %w", domain.ErrVectorStoreError, len(keys), err)
	}
	return nil
}

// spec returns the index spec, reading it from the store once per process.
// Dimension and metric never change after creation.
func (r *Repo) spec(ctx context.Context, index string) (domain.IndexSpec, error) {
	r.mu.RLock()
	spec, ok := r.specs[index]
	r.mu.RUnlock()
	if ok {
		return spec, nil
	}

	status, err := r.DescribeIndex(ctx, index)
	if err != nil {
		return domain.IndexSpec{}, err
	}
	return status.Spec, nil
}

func (r *Repo) remember(spec domain.IndexSpec) {
	r.mu.Lock()
	r.specs[spec.Name] = spec
	r.mu.Unlock()
}

func (r *Repo) buildIndex(spec domain.IndexSpec) (*db.IndexDefinition, error) {
	distance, err := distanceFor(spec.Metric)
	if err != nil {
		return nil, err
	}
	return db.NewIndex(r.ftName(spec.Name)).
		Prefix(r.recordPrefix(spec.Name)).
		Tag(fieldNamespace).
		VectorHNSW(fieldVector, "", spec.Dimension, distance, r.hnsw.M, r.hnsw.EFConstruct).
		Build()
}

func distanceFor(m domain.Metric) (db.DistanceMetric, error) {
	switch m {
	case domain.MetricCosine:
		return db.DistanceCosine, nil
	case domain.MetricEuclidean:
		return db.DistanceL2, nil
	case domain.MetricDotProduct:
		return db.DistanceIP, nil
	}
	return "", fmt.Errorf("unsupported metric %q", m)
}

func specToHash(spec domain.IndexSpec, now time.Time) map[string]string {
	return map[string]string{
		"name":       spec.Name,
		"dimension":  strconv.Itoa(spec.Dimension),
		"metric":     string(spec.Metric),
		"cloud":      spec.Cloud,
		"region":     spec.Region,
		"created_at": strconv.FormatInt(now.UnixMilli(), 10),
	}
}

func specFromHash(m map[string]string) (domain.IndexSpec, error) {
	dim, err := strconv.Atoi(m["dimension"])
	if err != nil {
		return domain.IndexSpec{}, fmt.Errorf("dimension: %w", err)
	}
	return domain.IndexSpec{
		Name:      m["name"],
		Dimension: dim,
		Metric:    domain.Metric(m["metric"]),
		Cloud:     m["cloud"],
		Region:    m["region"],
	}, nil
}

// Key layout:
//   {prefix}index:{name}                  spec hash
//   {prefix}{name}:idx                    FT index
//   {prefix}{name}:rec:{namespace}:{id}   record hash

func (r *Repo) metaKey(name string) string {
	return fmt.Sprintf("%sindex:%s", r.prefix, name)
}

func (r *Repo) ftName(name string) string {
	return fmt.Sprintf("%s%s:idx", r.prefix, name)
}

func (r *Repo) parseFTName(ft string) (string, bool) {
	rest, ok := strings.CutPrefix(ft, r.prefix)
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, ":idx")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (r *Repo) recordPrefix(name string) string {
	return fmt.Sprintf("%s%s:rec:", r.prefix, name)
}

func (r *Repo) recordKey(index, namespace, id string) string {
	return fmt.Sprintf("%s%s:%s", r.recordPrefix(index), namespace, id)
}

func recordIDFromKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
