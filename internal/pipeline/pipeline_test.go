package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/yourorg/apiask/internal/answer"
	"github.com/yourorg/apiask/internal/blob"
	"github.com/yourorg/apiask/internal/embedding"
	"github.com/yourorg/apiask/internal/retrieval"
	"github.com/yourorg/apiask/internal/store"
	"github.com/yourorg/apiask/pkg/types"
)

const usersSpec = `{
	"info": {"title": "Users API", "description": "user management"},
	"paths": {
		"/users": {
			"get": {
				"parameters": [{"name": "id", "required": true}]
			}
		}
	}
}`

func embeddingServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]interface{}{"index": i, "embedding": []float32{float32(len(req.Input[i])), 1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func newPipeline(t *testing.T, embedURL, completeURL string) *Pipeline {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "apiask.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	b, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var embedder embedding.Embedder
	if embedURL != "" {
		embedder = &embedding.Client{BaseURL: embedURL, Model: "text-embedding-3-small"}
	}
	var completer answer.Completer
	if completeURL != "" {
		completer = &answer.Client{BaseURL: completeURL, Model: "gpt-4o", MaxTokens: 512}
	}
	return &Pipeline{
		Store:       s,
		Blob:        b,
		Indexer:     &embedding.Indexer{Client: embedder, Store: s, BatchSize: 10},
		Engine:      &retrieval.Engine{Embedder: embedder, Store: s, TopK: 5},
		Synthesizer: &answer.Synthesizer{Client: completer},
	}
}

func TestUploadExtractsSingleEndpoint(t *testing.T) {
	emb := embeddingServer(t, nil)
	defer emb.Close()
	p := newPipeline(t, emb.URL, "")

	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}
	if api.Name != "Users API" || api.Status != types.StatusEmbedded {
		t.Fatalf("unexpected api: %+v", api)
	}
	if len(api.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(api.Endpoints))
	}
	ep := api.Endpoints[0]
	if ep.Method != "GET" || ep.Path != "/users" {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
	if len(ep.Fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(ep.Fields))
	}
	f := ep.Fields[0]
	if f.Name != "id" || f.Type != "string" || !f.Required {
		t.Fatalf("unexpected field: %+v", f)
	}
}

func TestUploadFromKey(t *testing.T) {
	emb := embeddingServer(t, nil)
	defer emb.Close()
	p := newPipeline(t, emb.URL, "")

	key := "uploads/users.json"
	if _, err := p.Blob.Put(context.Background(), key, []byte(usersSpec), "application/json"); err != nil {
		t.Fatal(err)
	}
	api, err := p.UploadFromKey(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if api.SourceLocation != p.Blob.Location(key) {
		t.Fatalf("source location = %q", api.SourceLocation)
	}
}

func TestUploadParseFailurePersistsNothing(t *testing.T) {
	p := newPipeline(t, "", "")
	_, err := p.Upload(context.Background(), "bad.json", []byte("{broken"))
	if !errors.Is(err, types.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	apis, err := p.Store.ListApis(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(apis) != 0 {
		t.Fatalf("expected no apis, got %d", len(apis))
	}
}

func TestUploadWithoutEmbeddingConfigSkipsIndexing(t *testing.T) {
	p := newPipeline(t, "", "")
	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}
	if api.Status != types.StatusPersisted {
		t.Fatalf("status = %q, want %q", api.Status, types.StatusPersisted)
	}
}

func TestUploadEmbeddingFailureKeepsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()
	p := newPipeline(t, srv.URL, "")

	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}
	if api.Status != types.StatusEmbedFailed {
		t.Fatalf("status = %q, want %q", api.Status, types.StatusEmbedFailed)
	}
	if len(api.Endpoints) != 1 {
		t.Fatalf("rows should survive embedding failure: %+v", api)
	}
}

func TestAskEndToEnd(t *testing.T) {
	emb := embeddingServer(t, nil)
	defer emb.Close()
	comp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Use GET /users."}},
			},
		})
	}))
	defer comp.Close()
	p := newPipeline(t, emb.URL, comp.URL)

	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Ask(context.Background(), api.ID, "how do I list users?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Use GET /users." {
		t.Fatalf("answer = %q", got)
	}
}

func TestAskUnembeddedApiDoesNotFail(t *testing.T) {
	// upload without embedding config, then ask with it configured
	emb := embeddingServer(t, nil)
	defer emb.Close()
	comp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "There is no endpoint context."}},
			},
		})
	}))
	defer comp.Close()

	p := newPipeline(t, "", "")
	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}

	asker := newPipeline(t, emb.URL, comp.URL)
	asker.Store = p.Store
	asker.Engine.Store = p.Store

	got, err := asker.Ask(context.Background(), api.ID, "anything?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "There is no endpoint context." {
		t.Fatalf("answer = %q", got)
	}
}

func TestAskNoChoicesReturnsFallback(t *testing.T) {
	emb := embeddingServer(t, nil)
	defer emb.Close()
	comp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer comp.Close()
	p := newPipeline(t, emb.URL, comp.URL)

	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Ask(context.Background(), api.ID, "q")
	if err != nil {
		t.Fatal(err)
	}
	if got != answer.NoAnswerFallback {
		t.Fatalf("answer = %q, want %q", got, answer.NoAnswerFallback)
	}
}

func TestAskWithoutEmbeddingConfigFailsLoudly(t *testing.T) {
	p := newPipeline(t, "", "")
	api, err := p.Upload(context.Background(), "users.json", []byte(usersSpec))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Ask(context.Background(), api.ID, "q")
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestAskUnknownApi(t *testing.T) {
	emb := embeddingServer(t, nil)
	defer emb.Close()
	p := newPipeline(t, emb.URL, "")
	_, err := p.Ask(context.Background(), "missing", "q")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
