package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hostflow/internal/catalog"
	"hostflow/internal/domain"
	hostflowsdk "hostflow/sdk/go"
)

func entities() []hostflowsdk.Entity {
	return []hostflowsdk.Entity{
		{ID: "1", Kind: "property", Status: "draft", UpdatedAt: "2025-01-01T00:00:00Z", Fields: map[string]any{"title": "Sea View Loft", "city": "Goa"}},
		{ID: "2", Kind: "event", Status: "approved", UpdatedAt: "2025-01-03T00:00:00Z", Fields: map[string]any{"title": "Go Meetup", "city": "Pune", "description": "talks"}},
		{ID: "3", Kind: "property", Status: "draft", UpdatedAt: "2025-01-05T00:00:00Z", Fields: map[string]any{"title": "Studio", "category": "loft", "city": "pune"}},
		{ID: "4", Kind: "group", Status: "submitted", UpdatedAt: "2025-01-02T00:00:00Z", Fields: map[string]any{"title": "Runners"}},
	}
}

func ids(items []hostflowsdk.Entity) []string {
	var out []string
	for _, e := range items {
		out = append(out, e.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		q    catalog.Query
		want []string
	}{
		{"all", catalog.Query{}, []string{"1", "2", "3", "4"}},
		{"text matches title and category", catalog.Query{Text: " LOFT "}, []string{"1", "3"}},
		{"text matches description", catalog.Query{Text: "talk"}, []string{"2"}},
		{"kind", catalog.Query{Kind: domain.KindProperty}, []string{"1", "3"}},
		{"status", catalog.Query{Status: domain.StatusApproved}, []string{"2"}},
		{"city is case insensitive", catalog.Query{City: "PUNE"}, []string{"2", "3"}},
		{"combined", catalog.Query{Kind: domain.KindProperty, City: "pune"}, []string{"3"}},
		{"no match", catalog.Query{Text: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(catalog.Filter(entities(), tt.q)))
		})
	}
}

func TestOwnedDraftsNewestFirst(t *testing.T) {
	got := catalog.OwnedDrafts(entities(), domain.KindProperty)
	assert.Equal(t, []string{"3", "1"}, ids(got))
	assert.Empty(t, catalog.OwnedDrafts(entities(), domain.KindJobApplication))
}

func TestOwnedDraftsComparesTimesNotStrings(t *testing.T) {
	items := []hostflowsdk.Entity{
		{ID: "older", Kind: "event", Status: "draft", UpdatedAt: "2025-01-01T10:00:05.1Z"},
		{ID: "newer", Kind: "event", Status: "draft", UpdatedAt: "2025-01-01T10:00:05.12Z"},
		{ID: "offset", Kind: "event", Status: "draft", UpdatedAt: "2025-01-01T11:00:05+02:00"},
		{ID: "garbage", Kind: "event", Status: "draft", UpdatedAt: "yesterday"},
	}
	got := catalog.OwnedDrafts(items, domain.KindEvent)
	assert.Equal(t, []string{"newer", "older", "offset", "garbage"}, ids(got))
}
