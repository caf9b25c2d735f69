// Package qdrant implements the vector store contract on Qdrant collections
// over gRPC. One logical index is one collection; namespaces are a keyword
// payload field filtered at query time.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// Reserved payload keys.
const (
	payloadNamespace = "namespace"
	payloadRecordID  = "record_id"
)

var pointNamespace = uuid.MustParse("0d1e7f52-9a8b-5c3d-8e4f-1a2b3c4d5e6f")

// Config holds Qdrant connection settings.
type Config struct {
	Addr   string
	APIKey string
	TLS    bool
	// Cloud and Region are reported back by DescribeIndex; Qdrant does not store them.
	Cloud  string
	Region string
}

// Repo implements the vector store contract on Qdrant.
type Repo struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	health      pb.QdrantClient
	apiKey      string
	cloud       string
	region      string
}

// New dials Qdrant. The connection is established lazily on first call.
func New(cfg Config) (*Repo, error) {
	if cfg.Addr == "" {
		return nil, errors.New("qdrant: addr is required")
	}
	creds := insecure.NewCredentials()
	if cfg.TLS {
		creds = credentials.NewTLS(nil)
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	r := newRepo(pb.NewCollectionsClient(conn), pb.NewPointsClient(conn), pb.NewQdrantClient(conn), cfg)
	r.conn = conn
	return r, nil
}

func newRepo(c pb.CollectionsClient, p pb.PointsClient, h pb.QdrantClient, cfg Config) *Repo {
	return &Repo{
		collections: c,
		points:      p,
		health:      h,
		apiKey:      cfg.APIKey,
		cloud:       cfg.Cloud,
		region:      cfg.Region,
	}
}

// Close releases the gRPC connection.
func (r *Repo) Close() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// Ping checks Qdrant liveness.
func (r *Repo) Ping(ctx context.Context) error {
	if _, err := r.health.HealthCheck(r.auth(ctx), &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// ListIndexes returns all collection names.
func (r *Repo) ListIndexes(ctx context.Context) ([]string, error) {
	resp, err := r.collections.List(r.auth(ctx), &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, c := range resp.GetCollections() {
		names = append(names, c.GetName())
	}
	return names, nil
}

// CreateIndex creates a collection and a keyword index on the namespace payload.
func (r *Repo) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	distance, err := distanceFor(spec.Metric)
	if err != nil {
		return err
	}

	ctx = r.auth(ctx)
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(spec.Dimension),
			Distance: distance,
		}}},
	})
	if err != nil {
		if isAlreadyExists(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create collection %s: %w", spec.Name, err)
	}

	wait := true
	_, err = r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: spec.Name,
		Wait:           &wait,
		FieldName:      payloadNamespace,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("index namespace field %s: %w", spec.Name, err)
	}
	return nil
}

// DescribeIndex reads the collection config. Ready means status green.
func (r *Repo) DescribeIndex(ctx context.Context, name string) (domain.IndexStatus, error) {
	resp, err := r.collections.Get(r.auth(ctx), &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound || strings.Contains(strings.ToLower(err.Error()), "doesn't exist") {
			return domain.IndexStatus{}, domain.ErrIndexNotFound
		}
		return domain.IndexStatus{}, fmt.Errorf("get collection %s: %w", name, err)
	}

	info := resp.GetResult()
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	metric, err := metricFor(params.GetDistance())
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("collection %s: %w", name, err)
	}
	return domain.IndexStatus{
		Spec: domain.IndexSpec{
			Name:      name,
			Dimension: int(params.GetSize()),
			Metric:    metric,
			Cloud:     r.cloud,
			Region:    r.region,
		},
		Ready: info.GetStatus() == pb.CollectionStatus_Green,
	}, nil
}

// Upsert writes points into the collection and waits for the write to apply.
// Qdrant itself rejects vectors of the wrong size; the whole request fails.
func (r *Repo) Upsert(ctx context.Context, index, namespace string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		payload := make(map[string]*pb.Value, len(rec.Metadata)+2)
		for k, v := range rec.Metadata {
			payload[k] = stringValue(v)
		}
		payload[payloadNamespace] = stringValue(namespace)
		payload[payloadRecordID] = stringValue(rec.ID)

		points[i] = &pb.PointStruct{
			Id:      pointID(namespace, rec.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(r.auth(ctx), &pb.UpsertPoints{
		CollectionName: index,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrIndexNotFound
		}
		if isDimensionError(err) {
			return fmt.Errorf("%w: %w", domain.ErrVectorDimMismatch, err)
		}
		return fmt.Errorf("%w: upsert %d points: %w", domain.ErrVectorStoreError, len(points), err)
	}
	return nil
}

// Query returns up to TopK nearest points in the namespace, best first.
func (r *Repo) Query(ctx context.Context, index, namespace string, q domain.QueryRequest) ([]domain.Match, error) {
	// record_id lives in the payload, so the payload is always fetched.
	req := &pb.SearchPoints{
		CollectionName: index,
		Vector:         q.Vector,
		Filter:         namespaceFilter(namespace),
		Limit:          uint64(max(q.TopK, 0)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: q.IncludeValues}},
	}

	resp, err := r.points.Search(r.auth(ctx), req)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrIndexNotFound
		}
		if isDimensionError(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorDimMismatch, err)
		}
		return nil, fmt.Errorf("%w: search: %w", domain.ErrVectorStoreError, err)
	}

	matches := make([]domain.Match, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		m := domain.Match{
			ID:    pt.GetPayload()[payloadRecordID].GetStringValue(),
			Score: float64(pt.GetScore()),
		}
		if m.ID == "" {
			m.ID = pt.GetId().GetUuid()
		}
		if q.IncludeMetadata {
			m.Metadata = metadataFromPayload(pt.GetPayload())
		}
		if q.IncludeValues {
			m.Vector = pt.GetVectors().GetVector().GetData()
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Delete removes points by record ID. Unknown IDs are ignored.
func (r *Repo) Delete(ctx context.Context, index, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(namespace, id)
	}

	wait := true
	_, err := r.points.Delete(r.auth(ctx), &pb.DeletePoints{
		CollectionName: index,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: pids},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: delete %d points: %w", domain.ErrVectorStoreError, len(pids), err)
	}
	return nil
}

func (r *Repo) auth(ctx context.Context) context.Context {
	if r.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", r.apiKey)
}

// pointID scopes a record ID to its namespace; one collection holds every namespace.
func pointID(namespace, recordID string) *pb.PointId {
	id := uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+recordID))
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}
}

func namespaceFilter(namespace string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   payloadNamespace,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: namespace}},
		}},
	}}}
}

func metadataFromPayload(payload map[string]*pb.Value) map[string]string {
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		if k == payloadNamespace || k == payloadRecordID {
			continue
		}
		meta[k] = v.GetStringValue()
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func distanceFor(m domain.Metric) (pb.Distance, error) {
	switch m {
	case domain.MetricCosine:
		return pb.Distance_Cosine, nil
	case domain.MetricEuclidean:
		return pb.Distance_Euclid, nil
	case domain.MetricDotProduct:
		return pb.Distance_Dot, nil
	}
	return pb.Distance_UnknownDistance, fmt.Errorf("unsupported metric %q", m)
}

func metricFor(d pb.Distance) (domain.Metric, error) {
	switch d {
	case pb.Distance_Cosine:
		return domain.MetricCosine, nil
	case pb.Distance_Euclid:
		return domain.MetricEuclidean, nil
	case pb.Distance_Dot:
		return domain.MetricDotProduct, nil
	}
	return "", fmt.Errorf("unsupported distance %s", d)
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists ||
		strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isDimensionError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "vector dimension error")
}
