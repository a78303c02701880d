package types

import "time"

// Api status values. An Api is created as StatusPersisted and moves through
// the embedding states only when an embedding client is configured.
const (
	StatusPersisted         = "persisted"
	StatusEmbedding         = "embedding"
	StatusEmbedded          = "embedded"
	StatusPartiallyEmbedded = "partially_embedded"
	StatusEmbedFailed       = "failed"
)

// Api records one uploaded specification.
type Api struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Type           string     `json:"type"`
	SourceLocation string     `json:"source_location"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Endpoints      []Endpoint `json:"endpoints,omitempty"`
}

// Endpoint is one (path, method) operation belonging to an Api.
// Embedding stays nil until the indexer populates it.
type Endpoint struct {
	ID          int64     `json:"id"`
	ApiID       string    `json:"api_id"`
	Path        string    `json:"path"`
	Method      string    `json:"method"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"-"`
	Fields      []Field   `json:"fields,omitempty"`
}

// Field is one declared parameter of an Endpoint.
type Field struct {
	ID          int64  `json:"id"`
	EndpointID  int64  `json:"endpoint_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// EndpointDescriptor is the extractor's output for one operation, before
// any store row exists.
type EndpointDescriptor struct {
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldDescriptor `json:"fields,omitempty"`
}

// FieldDescriptor is the extractor's output for one declared parameter.
type FieldDescriptor struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// RetrievedEndpoint is one nearest-neighbor result with its distance to
// the query vector. Endpoint.Fields is always populated.
type RetrievedEndpoint struct {
	Endpoint Endpoint `json:"endpoint"`
	Distance float64  `json:"distance"`
}
