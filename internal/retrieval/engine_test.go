package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yourorg/apiask/internal/store"
	"github.com/yourorg/apiask/pkg/types"
)

type fixedEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fixedEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = f.vector
	}
	return out, nil
}

func newEngineStore(t *testing.T) (*store.SQLiteStore, *types.Api) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "apiask.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	api, err := s.CreateApi(ctx, "A", "", "REST", "local://x")
	if err != nil {
		t.Fatal(err)
	}
	return s, api
}

func TestRetrieveRanksByDistance(t *testing.T) {
	s, api := newEngineStore(t)
	ctx := context.Background()
	_, _ = s.CreateEndpoints(ctx, api.ID, []types.EndpointDescriptor{
		{Path: "/users", Method: "GET"},
		{Path: "/orders", Method: "GET"},
	})
	eps, _ := s.ListEndpoints(ctx, api.ID)
	_ = s.SetEmbedding(ctx, eps[0].ID, []float32{0, 1})
	_ = s.SetEmbedding(ctx, eps[1].ID, []float32{1, 0})

	eng := &Engine{Embedder: &fixedEmbedder{vector: []float32{1, 0}}, Store: s, TopK: 5}
	got, err := eng.Retrieve(ctx, api.ID, "how do I list orders?")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Endpoint.Path != "/orders" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestRetrieveEmptyWhenNothingEmbedded(t *testing.T) {
	s, api := newEngineStore(t)
	ctx := context.Background()
	_, _ = s.CreateEndpoints(ctx, api.ID, []types.EndpointDescriptor{{Path: "/users", Method: "GET"}})

	eng := &Engine{Embedder: &fixedEmbedder{vector: []float32{1, 0}}, Store: s}
	got, err := eng.Retrieve(ctx, api.ID, "anything")
	if err != nil {
		t.Fatalf("expected empty result, got error %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestRetrieveWithoutEmbedderIsConfigurationError(t *testing.T) {
	s, api := newEngineStore(t)
	eng := &Engine{Embedder: nil, Store: s}
	_, err := eng.Retrieve(context.Background(), api.ID, "q")
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRetrieveUnknownApi(t *testing.T) {
	s, _ := newEngineStore(t)
	eng := &Engine{Embedder: &fixedEmbedder{vector: []float32{1}}, Store: s}
	_, err := eng.Retrieve(context.Background(), "missing", "q")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetrievePropagatesRemoteError(t *testing.T) {
	s, api := newEngineStore(t)
	remote := &fixedEmbedder{err: types.ErrRemote}
	eng := &Engine{Embedder: remote, Store: s}
	_, err := eng.Retrieve(context.Background(), api.ID, "q")
	if !errors.Is(err, types.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}
