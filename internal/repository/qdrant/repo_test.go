package qdrant

import (
	"context"
	"errors"
	"slices"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

var testSpec = domain.IndexSpec{Name: "images", Dimension: 3, Metric: domain.MetricCosine, Cloud: "aws", Region: "us-east-1"}

func TestListIndexes_SendsAPIKey(t *testing.T) {
	c := &fakeCollections{listFn: func(ctx context.Context, _ *pb.ListCollectionsRequest) (*pb.ListCollectionsResponse, error) {
		md, _ := metadata.FromOutgoingContext(ctx)
		if got := md.Get("api-key"); len(got) != 1 || got[0] != "secret" {
			t.Errorf("api-key = %v", got)
		}
		return &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "images"}, {Name: "faces"}}}, nil
	}}

	names, err := newTestRepo(c, nil).ListIndexes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(names, []string{"images", "faces"}) {
		t.Errorf("names = %v", names)
	}
}

func TestCreateIndex(t *testing.T) {
	var created *pb.CreateCollection
	var field *pb.CreateFieldIndexCollection
	c := &fakeCollections{createFn: func(_ context.Context, in *pb.CreateCollection) (*pb.CollectionOperationResponse, error) {
		created = in
		return &pb.CollectionOperationResponse{Result: true}, nil
	}}
	p := &fakePoints{fieldIndexFn: func(_ context.Context, in *pb.CreateFieldIndexCollection) (*pb.PointsOperationResponse, error) {
		field = in
		return &pb.PointsOperationResponse{}, nil
	}}

	if err := newTestRepo(c, p).CreateIndex(context.Background(), testSpec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := created.GetVectorsConfig().GetParams()
	if created.GetCollectionName() != "images" || params.GetSize() != 3 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("create = %v", created)
	}
	if field.GetFieldName() != "namespace" || field.GetFieldType() != pb.FieldType_FieldTypeKeyword {
		t.Errorf("field index = %v", field)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"grpc code", status.Error(codes.AlreadyExists, "exists")},
		{"message", status.Error(codes.InvalidArgument, "Wrong input: Collection `images` already exists!")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &fakeCollections{createFn: func(context.Context, *pb.CreateCollection) (*pb.CollectionOperationResponse, error) {
				return nil, tc.err
			}}
			err := newTestRepo(c, nil).CreateIndex(context.Background(), testSpec)
			if !errors.Is(err, domain.ErrAlreadyExists) {
				t.Errorf("expected ErrAlreadyExists, got %v", err)
			}
		})
	}
}

func TestDescribeIndex(t *testing.T) {
	c := &fakeCollections{getFn: func(_ context.Context, in *pb.GetCollectionInfoRequest) (*pb.GetCollectionInfoResponse, error) {
		if in.GetCollectionName() != "images" {
			t.Errorf("collection = %q", in.GetCollectionName())
		}
		return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{
			Status: pb.CollectionStatus_Green,
			Config: &pb.CollectionConfig{Params: &pb.CollectionParams{
				VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
					Size: 3, Distance: pb.Distance_Cosine,
				}}},
			}},
		}}, nil
	}}

	st, err := newTestRepo(c, nil).DescribeIndex(context.Background(), "images")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Spec != testSpec || !st.Ready {
		t.Errorf("status = %+v", st)
	}
}

func TestDescribeIndex_NotFound(t *testing.T) {
	c := &fakeCollections{getFn: func(context.Context, *pb.GetCollectionInfoRequest) (*pb.GetCollectionInfoResponse, error) {
		return nil, status.Error(codes.NotFound, "Collection `x` doesn't exist!")
	}}
	_, err := newTestRepo(c, nil).DescribeIndex(context.Background(), "x")
	if !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestUpsert_PointsScopedByNamespace(t *testing.T) {
	var req *pb.UpsertPoints
	p := &fakePoints{upsertFn: func(_ context.Context, in *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
		req = in
		return &pb.PointsOperationResponse{}, nil
	}}

	rec := domain.NewImageRecord("data/cat.jpg", []float32{1, 2, 3})
	if err := newTestRepo(nil, p).Upsert(context.Background(), "images", "default", []domain.Record{rec}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !req.GetWait() || len(req.GetPoints()) != 1 {
		t.Fatalf("request = %v", req)
	}
	pt := req.GetPoints()[0]
	if pt.GetId().GetUuid() != pointID("default", rec.ID).GetUuid() {
		t.Errorf("point id = %v", pt.GetId())
	}
	if pt.GetId().GetUuid() == pointID("other", rec.ID).GetUuid() {
		t.Error("point ids must differ across namespaces")
	}
	pl := pt.GetPayload()
	if pl["namespace"].GetStringValue() != "default" || pl["record_id"].GetStringValue() != rec.ID ||
		pl["imagePath"].GetStringValue() != "data/cat.jpg" {
		t.Errorf("payload = %v", pl)
	}
}

func TestUpsert_DimensionError(t *testing.T) {
	p := &fakePoints{upsertFn: func(context.Context, *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
		return nil, status.Error(codes.InvalidArgument, "Wrong input: Vector dimension error: expected dim: 3, got 2")
	}}
	rec := domain.NewImageRecord("a.jpg", []float32{1, 2})
	err := newTestRepo(nil, p).Upsert(context.Background(), "images", "default", []domain.Record{rec})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery(t *testing.T) {
	var req *pb.SearchPoints
	p := &fakePoints{searchFn: func(_ context.Context, in *pb.SearchPoints) (*pb.SearchResponse, error) {
		req = in
		return &pb.SearchResponse{Result: []*pb.ScoredPoint{
			{
				Score: 0.75,
				Payload: map[string]*pb.Value{
					"record_id": stringValue("rec-1"),
					"namespace": stringValue("default"),
					"imagePath": stringValue("data/a.jpg"),
				},
			},
			{Score: 0.5, Payload: map[string]*pb.Value{"record_id": stringValue("rec-2")}},
		}}, nil
	}}

	matches, err := newTestRepo(nil, p).Query(context.Background(), "images", "default",
		domain.QueryRequest{Vector: []float32{1, 2, 3}, TopK: 6, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.GetLimit() != 6 || req.GetCollectionName() != "images" {
		t.Errorf("request = %v", req)
	}
	cond := req.GetFilter().GetMust()[0].GetField()
	if cond.GetKey() != "namespace" || cond.GetMatch().GetKeyword() != "default" {
		t.Errorf("filter = %v", req.GetFilter())
	}

	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].ID != "rec-1" || matches[0].Score != 0.75 {
		t.Errorf("match[0] = %+v", matches[0])
	}
	if len(matches[0].Metadata) != 1 || matches[0].Metadata["imagePath"] != "data/a.jpg" {
		t.Errorf("metadata = %v", matches[0].Metadata)
	}
	if matches[1].Metadata != nil {
		t.Errorf("match[1] metadata = %v, want nil", matches[1].Metadata)
	}
}

func TestQuery_UnknownCollection(t *testing.T) {
	p := &fakePoints{searchFn: func(context.Context, *pb.SearchPoints) (*pb.SearchResponse, error) {
		return nil, status.Error(codes.NotFound, "not found")
	}}
	_, err := newTestRepo(nil, p).Query(context.Background(), "x", "default", domain.QueryRequest{Vector: []float32{1}, TopK: 1})
	if !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	var req *pb.DeletePoints
	p := &fakePoints{deleteFn: func(_ context.Context, in *pb.DeletePoints) (*pb.PointsOperationResponse, error) {
		req = in
		return &pb.PointsOperationResponse{}, nil
	}}

	if err := newTestRepo(nil, p).Delete(context.Background(), "images", "default", []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := req.GetPoints().GetPoints().GetIds()
	if len(ids) != 2 || ids[0].GetUuid() != pointID("default", "a").GetUuid() {
		t.Errorf("ids = %v", ids)
	}
}

func TestPing(t *testing.T) {
	r := newTestRepo(nil, nil)
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.health = &fakeHealth{err: errors.New("unavailable")}
	if err := r.Ping(context.Background()); err == nil {
		t.Error("expected error")
	}
}
