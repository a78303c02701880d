// Package pipeline wires the upload path (extract, persist, index) and
// the question path (retrieve, synthesize) together.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourorg/apiask/internal/answer"
	"github.com/yourorg/apiask/internal/blob"
	"github.com/yourorg/apiask/internal/embedding"
	"github.com/yourorg/apiask/internal/openapi"
	"github.com/yourorg/apiask/internal/retrieval"
	"github.com/yourorg/apiask/internal/store"
	"github.com/yourorg/apiask/pkg/types"
)

type Pipeline struct {
	Store       store.Store
	Blob        blob.Blob
	Indexer     *embedding.Indexer
	Engine      *retrieval.Engine
	Synthesizer *answer.Synthesizer
	Logger      *slog.Logger
}

// NewUploadKey mints the object key handed out with a presigned upload
// URL.
func NewUploadKey(fileName string) string {
	return "uploads/" + uuid.NewString() + "-" + fileName
}

// Upload stores the raw specification bytes first, then processes them.
// Used by the CLI, which already holds the file contents.
func (p *Pipeline) Upload(ctx context.Context, fileName string, data []byte) (*types.Api, error) {
	key := NewUploadKey(fileName)
	location, err := p.Blob.Put(ctx, key, data, "application/json")
	if err != nil {
		return nil, err
	}
	return p.process(ctx, data, location)
}

// UploadFromKey processes a specification previously uploaded to the
// blob store, typically via a presigned URL.
func (p *Pipeline) UploadFromKey(ctx context.Context, fileKey string) (*types.Api, error) {
	data, err := p.Blob.Get(ctx, fileKey)
	if err != nil {
		return nil, err
	}
	return p.process(ctx, data, p.Blob.Location(fileKey))
}

// process runs extraction, persistence and indexing. Extraction happens
// before any row is written, so a parse failure persists nothing.
// Indexing failure never rolls persisted rows back; it only determines
// the Api's final status.
func (p *Pipeline) process(ctx context.Context, data []byte, sourceLocation string) (*types.Api, error) {
	spec, err := openapi.Parse(data)
	if err != nil {
		return nil, err
	}

	api, err := p.Store.CreateApi(ctx, spec.Title, spec.Description, "REST", sourceLocation)
	if err != nil {
		return nil, err
	}
	if _, err := p.Store.CreateEndpoints(ctx, api.ID, spec.Endpoints); err != nil {
		return nil, err
	}

	endpoints, err := p.Store.ListEndpoints(ctx, api.ID)
	if err != nil {
		return nil, err
	}
	// Duplicate descriptors are skipped at insert, so match fields to
	// rows by (path, method) identity rather than position.
	byKey := make(map[string]types.EndpointDescriptor, len(spec.Endpoints))
	for _, d := range spec.Endpoints {
		if _, ok := byKey[d.Method+" "+d.Path]; !ok {
			byKey[d.Method+" "+d.Path] = d
		}
	}
	for _, ep := range endpoints {
		desc, ok := byKey[ep.Method+" "+ep.Path]
		if !ok || len(desc.Fields) == 0 {
			continue
		}
		if err := p.Store.CreateFields(ctx, ep.ID, desc.Fields); err != nil {
			return nil, err
		}
	}

	status, err := p.index(ctx, api.ID)
	if err != nil {
		return nil, err
	}
	if status != types.StatusPersisted {
		if err := p.Store.UpdateApiStatus(ctx, api.ID, status); err != nil {
			return nil, err
		}
	}
	return p.loadApi(ctx, api.ID)
}

// index runs the embedding indexer and maps its outcome to the Api's
// final status.
func (p *Pipeline) index(ctx context.Context, apiID string) (string, error) {
	if p.Indexer == nil || p.Indexer.Client == nil {
		return types.StatusPersisted, nil
	}
	if err := p.Store.UpdateApiStatus(ctx, apiID, types.StatusEmbedding); err != nil {
		return "", err
	}
	res, err := p.Indexer.Index(ctx, apiID)
	if err != nil {
		return "", err
	}
	switch {
	case res.Skipped:
		return types.StatusPersisted, nil
	case res.FailedBatches == 0:
		return types.StatusEmbedded, nil
	case res.Indexed > 0:
		if p.Logger != nil {
			p.Logger.Warn("api partially embedded", "api_id", apiID, "failed_batches", res.FailedBatches, "error", res.LastErr)
		}
		return types.StatusPartiallyEmbedded, nil
	default:
		if p.Logger != nil {
			p.Logger.Warn("api embedding failed", "api_id", apiID, "error", res.LastErr)
		}
		return types.StatusEmbedFailed, nil
	}
}

// Ask retrieves the most relevant endpoints for the question and
// forwards them as completion context.
func (p *Pipeline) Ask(ctx context.Context, apiID, question string) (string, error) {
	results, err := p.Engine.Retrieve(ctx, apiID, question)
	if err != nil {
		return "", err
	}
	return p.Synthesizer.Answer(ctx, question, results)
}

// GetApi returns the Api with its endpoints and fields attached.
func (p *Pipeline) GetApi(ctx context.Context, apiID string) (*types.Api, error) {
	return p.loadApi(ctx, apiID)
}

func (p *Pipeline) loadApi(ctx context.Context, apiID string) (*types.Api, error) {
	api, err := p.Store.GetApi(ctx, apiID)
	if err != nil {
		return nil, err
	}
	endpoints, err := p.Store.ListEndpoints(ctx, apiID)
	if err != nil {
		return nil, err
	}
	for i := range endpoints {
		fields, err := p.Store.ListFields(ctx, endpoints[i].ID)
		if err != nil {
			return nil, err
		}
		endpoints[i].Fields = fields
	}
	api.Endpoints = endpoints
	return api, nil
}
