package qdrant

import (
	"context"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// fakeCollections overrides the calls under test; anything else panics via the nil embed.
type fakeCollections struct {
	pb.CollectionsClient
	listFn   func(ctx context.Context, in *pb.ListCollectionsRequest) (*pb.ListCollectionsResponse, error)
	createFn func(ctx context.Context, in *pb.CreateCollection) (*pb.CollectionOperationResponse, error)
	getFn    func(ctx context.Context, in *pb.GetCollectionInfoRequest) (*pb.GetCollectionInfoResponse, error)
}

func (f *fakeCollections) List(ctx context.Context, in *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return f.listFn(ctx, in)
}

func (f *fakeCollections) Create(ctx context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return f.createFn(ctx, in)
}

func (f *fakeCollections) Get(ctx context.Context, in *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return f.getFn(ctx, in)
}

type fakePoints struct {
	pb.PointsClient
	upsertFn     func(ctx context.Context, in *pb.UpsertPoints) (*pb.PointsOperationResponse, error)
	searchFn     func(ctx context.Context, in *pb.SearchPoints) (*pb.SearchResponse, error)
	deleteFn     func(ctx context.Context, in *pb.DeletePoints) (*pb.PointsOperationResponse, error)
	fieldIndexFn func(ctx context.Context, in *pb.CreateFieldIndexCollection) (*pb.PointsOperationResponse, error)
}

func (f *fakePoints) Upsert(ctx context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return f.upsertFn(ctx, in)
}

func (f *fakePoints) Search(ctx context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return f.searchFn(ctx, in)
}

func (f *fakePoints) Delete(ctx context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return f.deleteFn(ctx, in)
}

func (f *fakePoints) CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.fieldIndexFn == nil {
		return &pb.PointsOperationResponse{}, nil
	}
	return f.fieldIndexFn(ctx, in)
}

type fakeHealth struct {
	pb.QdrantClient
	err error
}

func (f *fakeHealth) HealthCheck(context.Context, *pb.HealthCheckRequest, ...grpc.CallOption) (*pb.HealthCheckReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pb.HealthCheckReply{Title: "qdrant"}, nil
}

func newTestRepo(c *fakeCollections, p *fakePoints) *Repo {
	if c == nil {
		c = &fakeCollections{}
	}
	if p == nil {
		p = &fakePoints{}
	}
	return newRepo(c, p, &fakeHealth{}, Config{APIKey: "secret", Cloud: "aws", Region: "us-east-1"})
}
