package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yourorg/apiask/internal/embedding"
	"github.com/yourorg/apiask/internal/store"
	"github.com/yourorg/apiask/pkg/types"
)

// DefaultTopK is the number of endpoints retrieved per question.
const DefaultTopK = 5

// Engine answers "which endpoints are relevant to this question" by
// embedding the question and running nearest-neighbor search against the
// Api's stored vectors.
type Engine struct {
	Embedder embedding.Embedder
	Store    store.Store
	TopK     int
	Logger   *slog.Logger
}

// Retrieve returns the TopK closest endpoints for the question, closest
// first, each with full field detail. Unlike indexing, a missing embedder
// is an explicit configuration error here: a question implies an
// expectation of an answer. An Api with no embedded endpoints yields an
// empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, apiID, question string) ([]types.RetrievedEndpoint, error) {
	if e.Embedder == nil {
		return nil, fmt.Errorf("%w: embedding capability required to answer questions", types.ErrConfiguration)
	}
	if _, err := e.Store.GetApi(ctx, apiID); err != nil {
		return nil, err
	}

	vectors, err := e.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", types.ErrRemote, len(vectors))
	}

	k := e.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	results, err := e.Store.FindNearest(ctx, apiID, vectors[0], k)
	if err != nil {
		return nil, err
	}
	if e.Logger != nil {
		e.Logger.Debug("retrieved context", "api_id", apiID, "results", len(results))
	}
	return results, nil
}
