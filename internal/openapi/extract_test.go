package openapi

import (
	"errors"
	"reflect"
	"testing"

	"github.com/yourorg/apiask/pkg/types"
)

func TestParseSingleEndpoint(t *testing.T) {
	doc := `{
		"info": {"title": "Users API"},
		"paths": {
			"/users": {
				"get": {
					"parameters": [
						{"name": "id", "required": true}
					]
				}
			}
		}
	}`
	spec, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if spec.Title != "Users API" {
		t.Fatalf("title = %q", spec.Title)
	}
	if len(spec.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(spec.Endpoints))
	}
	ep := spec.Endpoints[0]
	if ep.Method != "GET" || ep.Path != "/users" {
		t.Fatalf("unexpected endpoint %s %s", ep.Method, ep.Path)
	}
	want := types.FieldDescriptor{Name: "id", Type: "string", Required: true}
	if len(ep.Fields) != 1 || ep.Fields[0] != want {
		t.Fatalf("fields = %+v, want [%+v]", ep.Fields, want)
	}
}

func TestParsePreservesDocumentOrder(t *testing.T) {
	doc := `{"paths": {
		"/c": {"post": {}, "get": {}},
		"/a": {"delete": {}},
		"/b": {"put": {}}
	}}`
	spec, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, ep := range spec.Endpoints {
		got = append(got, ep.Method+" "+ep.Path)
	}
	want := []string{"POST /c", "GET /c", "DELETE /a", "PUT /b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	doc := `{"info":{"title":"T"},"paths":{"/x":{"get":{"summary":"s"}},"/y":{"post":{}}}}`
	a, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two parses differ: %+v vs %+v", a, b)
	}
}

func TestParseDescriptionFallsBackToSummary(t *testing.T) {
	doc := `{"paths":{
		"/a": {"get": {"description": "desc", "summary": "sum"}},
		"/b": {"get": {"summary": "sum only"}},
		"/c": {"get": {}}
	}}`
	spec, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if spec.Endpoints[0].Description != "desc" {
		t.Fatalf("description = %q", spec.Endpoints[0].Description)
	}
	if spec.Endpoints[1].Description != "sum only" {
		t.Fatalf("summary fallback = %q", spec.Endpoints[1].Description)
	}
	if spec.Endpoints[2].Description != "" {
		t.Fatalf("empty fallback = %q", spec.Endpoints[2].Description)
	}
}

func TestParseFieldDefaults(t *testing.T) {
	doc := `{"paths":{"/q":{"get":{"parameters":[
		{"name": "page"},
		{"name": "limit", "schema": {"type": "integer"}, "example": 20},
		{"name": "tag", "example": "beta", "description": "tag filter"}
	]}}}}`
	spec, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	fields := spec.Endpoints[0].Fields
	if fields[0].Type != "string" || fields[0].Required {
		t.Fatalf("defaults not applied: %+v", fields[0])
	}
	if fields[1].Type != "integer" || fields[1].Example != "20" {
		t.Fatalf("typed field: %+v", fields[1])
	}
	if fields[2].Example != "beta" || fields[2].Description != "tag filter" {
		t.Fatalf("string example: %+v", fields[2])
	}
}

func TestParseSkipsNonMethodKeys(t *testing.T) {
	doc := `{"paths":{"/a":{"summary":"x","parameters":[],"get":{}}}}`
	spec, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Endpoints) != 1 || spec.Endpoints[0].Method != "GET" {
		t.Fatalf("endpoints = %+v", spec.Endpoints)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if !errors.Is(err, types.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseDegradesOnMissingPieces(t *testing.T) {
	for _, doc := range []string{`{}`, `{"paths": null}`, `{"paths": []}`, `{"paths": {"/a": {"get": null}}}`} {
		spec, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("doc %s: %v", doc, err)
		}
		if spec.Title != "Unnamed API" {
			t.Fatalf("doc %s: title = %q", doc, spec.Title)
		}
	}
}
