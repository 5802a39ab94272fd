package search

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestHitToResultPrefersFormatted(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`5`),
		"title":      json.RawMessage(`"Foo"`),
		"body":       json.RawMessage(`"Hello world"`),
		"_formatted": json.RawMessage(`{"id":"5","title":"Foo","body":"<mark>Hello</mark> world"}`),
	}
	got := hitToResult(hit)
	if got.ID != 5 || got.Title != "Foo" || got.Snippet != "<mark>Hello</mark> world" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestHitToResultWithoutFormatted(t *testing.T) {
	hit := meili.Hit{
		"id":    json.RawMessage(`"abc"`),
		"title": json.RawMessage(`"Bar"`),
		"body":  json.RawMessage(`"plain"`),
	}
	got := hitToResult(hit)
	if got.ID != 0 {
		t.Fatalf("non-numeric id should not decode, got %d", got.ID)
	}
	if got.Snippet != "plain" {
		t.Fatalf("snippet = %q", got.Snippet)
	}
}
