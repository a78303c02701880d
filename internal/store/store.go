package store

import (
	"context"

	"github.com/yourorg/apiask/pkg/types"
)

// Store persists Apis, their Endpoints and Fields, and the per-endpoint
// embedding vectors.
//
// ListEndpoints returns rows in insert order; the indexer depends on that
// when it pairs endpoint IDs with embedding inputs. FindNearest returns
// at most k results, ascending by distance, scoped to the given Api, and
// skips endpoints that have no embedding yet.
type Store interface {
	CreateApi(ctx context.Context, name, description, apiType, sourceLocation string) (*types.Api, error)
	GetApi(ctx context.Context, id string) (*types.Api, error)
	ListApis(ctx context.Context) ([]types.Api, error)
	UpdateApiStatus(ctx context.Context, id, status string) error
	DeleteApi(ctx context.Context, id string) error

	CreateEndpoints(ctx context.Context, apiID string, endpoints []types.EndpointDescriptor) (int, error)
	CreateFields(ctx context.Context, endpointID int64, fields []types.FieldDescriptor) error
	ListEndpoints(ctx context.Context, apiID string) ([]types.Endpoint, error)
	ListFields(ctx context.Context, endpointID int64) ([]types.Field, error)

	SetEmbedding(ctx context.Context, endpointID int64, vector []float32) error
	FindNearest(ctx context.Context, apiID string, query []float32, k int) ([]types.RetrievedEndpoint, error)

	Close() error
}
