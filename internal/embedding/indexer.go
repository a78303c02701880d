package embedding

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourorg/apiask/internal/store"
	"github.com/yourorg/apiask/pkg/types"
)

// DefaultBatchSize bounds the number of summaries per embeddings request.
// Any positive value produces identical stored vectors; it only limits
// request size.
const DefaultBatchSize = 10

// Embedder is the remote capability the indexer and the retrieval engine
// depend on. *Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Indexer embeds every endpoint of an Api and writes the vectors back.
// Each summary stays paired with its endpoint ID through the whole batch
// round-trip, so reordering anywhere cannot mis-assign vectors.
type Indexer struct {
	Client    Embedder
	Store     store.Store
	BatchSize int
	Logger    *slog.Logger
}

// Result reports one indexing run.
type Result struct {
	Skipped       bool
	Batches       int
	FailedBatches int
	Indexed       int
	LastErr       error
}

// Index builds a text summary for each endpoint of apiID and persists one
// vector per endpoint. A nil client means embedding is not configured;
// indexing is skipped and that is not an error. A failed batch is
// recorded and the remaining batches still run; vectors already written
// stay in place.
func (ix *Indexer) Index(ctx context.Context, apiID string) (*Result, error) {
	if ix.Client == nil {
		return &Result{Skipped: true}, nil
	}
	endpoints, err := ix.Store.ListEndpoints(ctx, apiID)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return &Result{}, nil
	}

	ids := make([]int64, 0, len(endpoints))
	summaries := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		fields, err := ix.Store.ListFields(ctx, ep.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, ep.ID)
		summaries = append(summaries, Summary(ep, fields))
	}

	size := ix.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	res := &Result{}
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		res.Batches++

		vectors, err := ix.Client.Embed(ctx, summaries[start:end])
		if err != nil {
			res.FailedBatches++
			res.LastErr = err
			if ix.Logger != nil {
				ix.Logger.Warn("embedding batch failed", "api_id", apiID, "batch", res.Batches, "error", err)
			}
			continue
		}
		for i, vec := range vectors {
			if err := ix.Store.SetEmbedding(ctx, ids[start+i], vec); err != nil {
				return res, err
			}
			res.Indexed++
		}
	}
	return res, nil
}

// Summary renders one endpoint as embedding input:
// "METHOD path description name:type:example ...".
func Summary(ep types.Endpoint, fields []types.Field) string {
	parts := []string{ep.Method, ep.Path}
	if ep.Description != "" {
		parts = append(parts, ep.Description)
	}
	for _, f := range fields {
		parts = append(parts, f.Name+":"+f.Type+":"+f.Example)
	}
	return strings.Join(parts, " ")
}
