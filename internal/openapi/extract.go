package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yourorg/apiask/pkg/types"
)

// Spec is the extracted view of one OpenAPI document: the info-block
// metadata plus one descriptor per (path, method) operation, in document
// order. Downstream code correlates rows to descriptors by position, so
// the order here is load-bearing.
type Spec struct {
	Title       string
	Description string
	Endpoints   []types.EndpointDescriptor
}

type document struct {
	Info struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"info"`
	Paths json.RawMessage `json:"paths"`
}

type operation struct {
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	Parameters  []parameter `json:"parameters"`
}

type parameter struct {
	Name        string          `json:"name"`
	Required    bool            `json:"required"`
	Description string          `json:"description"`
	Example     json.RawMessage `json:"example"`
	Schema      struct {
		Type string `json:"type"`
	} `json:"schema"`
}

var httpMethods = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {},
	"options": {}, "head": {}, "patch": {}, "trace": {},
}

// Parse decodes an OpenAPI JSON document. Invalid JSON fails with an
// error wrapping types.ErrParse; anything else degrades to best-effort
// defaults instead of failing. The document is not validated against the
// OpenAPI schema.
func Parse(data []byte) (*Spec, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}

	spec := &Spec{
		Title:       doc.Info.Title,
		Description: doc.Info.Description,
	}
	if spec.Title == "" {
		spec.Title = "Unnamed API"
	}

	// paths is a JSON object, and Go maps would randomize its key order.
	// Walk the raw bytes with a token decoder so endpoints come out in
	// document order.
	eachObjectKey(doc.Paths, func(path string, item json.RawMessage) {
		eachObjectKey(item, func(method string, raw json.RawMessage) {
			if _, ok := httpMethods[strings.ToLower(method)]; !ok {
				return
			}
			var op operation
			_ = json.Unmarshal(raw, &op)
			spec.Endpoints = append(spec.Endpoints, extractOperation(path, method, op))
		})
	})
	return spec, nil
}

func extractOperation(path, method string, op operation) types.EndpointDescriptor {
	desc := op.Description
	if desc == "" {
		desc = op.Summary
	}
	d := types.EndpointDescriptor{
		Path:        path,
		Method:      strings.ToUpper(method),
		Description: desc,
	}
	for _, p := range op.Parameters {
		typ := p.Schema.Type
		if typ == "" {
			typ = "string"
		}
		d.Fields = append(d.Fields, types.FieldDescriptor{
			Name:        p.Name,
			Type:        typ,
			Required:    p.Required,
			Description: p.Description,
			Example:     exampleString(p.Example),
		})
	}
	return d
}

// eachObjectKey walks the top-level keys of a JSON object in document
// order. Non-object values (including absent ones) are silently skipped.
func eachObjectKey(raw json.RawMessage, fn func(key string, value json.RawMessage)) {
	if len(raw) == 0 {
		return
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return
		}
		key, ok := keyTok.(string)
		if !ok {
			return
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return
		}
		fn(key, value)
	}
}

// exampleString renders a parameter example as text. Strings are
// unquoted; every other JSON value keeps its literal form.
func exampleString(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
