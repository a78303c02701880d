package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yourorg/apiask/internal/pipeline"
	"github.com/yourorg/apiask/pkg/types"
)

// Server exposes the upload and question-answering pipeline over HTTP.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New constructs a new Server with routes registered.
func New(p *pipeline.Pipeline, logger *slog.Logger) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		pipeline: p,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/upload-url", s.handleUploadURL)
	s.mux.HandleFunc("/api/apis", s.handleApis)
	s.mux.HandleFunc("/api/apis/", s.handleApiRoutes)
}

// handleUploadURL mints a presigned PUT URL so the client can upload
// the specification document straight to the blob store.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileName := strings.TrimSpace(r.URL.Query().Get("file_name"))
	if fileName == "" {
		http.Error(w, "file_name required", http.StatusBadRequest)
		return
	}
	key := pipeline.NewUploadKey(fileName)
	url, err := s.pipeline.Blob.PresignPut(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"upload_url": url,
		"file_key":   key,
	})
}

func (s *Server) handleApis(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.handleListApis(w, r)
	case http.MethodPost:
		s.handleCreateApi(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListApis(w http.ResponseWriter, r *http.Request) {
	apis, err := s.pipeline.Store.ListApis(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apis)
}

// handleCreateApi processes a previously uploaded specification: the
// document is fetched from the blob store by file_key, parsed, persisted
// and indexed before the nested Api is returned.
func (s *Server) handleCreateApi(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileKey string `json:"file_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.FileKey) == "" {
		http.Error(w, "file_key required", http.StatusBadRequest)
		return
	}
	api, err := s.pipeline.UploadFromKey(r.Context(), req.FileKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api)
}

func (s *Server) handleApiRoutes(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/api/apis/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	if tail == "ask" {
		s.handleAsk(w, r, id)
		return
	}
	if tail != "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetApi(w, r, id)
	case http.MethodDelete:
		s.handleDeleteApi(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetApi(w http.ResponseWriter, r *http.Request, id string) {
	api, err := s.pipeline.GetApi(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api)
}

func (s *Server) handleDeleteApi(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.pipeline.Store.DeleteApi(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}
	reply, err := s.pipeline.Ask(r.Context(), id, req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": reply})
}

// writeError maps pipeline errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrParse):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConfiguration):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
