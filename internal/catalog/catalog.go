// Package catalog filters fetched entities in memory for listing views.
package catalog

import (
	"sort"
	"strings"
	"time"

	"hostflow/internal/domain"
	hostflowsdk "hostflow/sdk/go"
)

// Query narrows a listing. Zero fields match everything.
type Query struct {
	Text   string
	Kind   domain.Kind
	Status domain.Status
	City   string
}

// searchable are the backend field names matched by Query.Text.
var searchable = []string{"title", "description", "category", "city"}

// Filter returns the entities matching q, preserving input order.
func Filter(items []hostflowsdk.Entity, q Query) []hostflowsdk.Entity {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	city := strings.TrimSpace(q.City)
	var out []hostflowsdk.Entity
	for _, e := range items {
		if q.Kind != "" && domain.Kind(e.Kind) != q.Kind {
			continue
		}
		if q.Status != "" && domain.Status(e.Status) != q.Status {
			continue
		}
		if city != "" && !strings.EqualFold(field(e, "city"), city) {
			continue
		}
		if text != "" && !matches(e, text) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// OwnedDrafts returns draft entities, newest first.
func OwnedDrafts(items []hostflowsdk.Entity, kind domain.Kind) []hostflowsdk.Entity {
	drafts := Filter(items, Query{Kind: kind, Status: domain.StatusDraft})
	sort.SliceStable(drafts, func(i, j int) bool {
		return updatedAt(drafts[i]).After(updatedAt(drafts[j]))
	})
	return drafts
}

// updatedAt parses the RFC 3339 timestamp; fractional seconds may vary in
// width, so the raw strings do not sort. Unparseable values sort last.
func updatedAt(e hostflowsdk.Entity) time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.UpdatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

func matches(e hostflowsdk.Entity, text string) bool {
	for _, f := range searchable {
		if strings.Contains(strings.ToLower(field(e, f)), text) {
			return true
		}
	}
	return false
}

func field(e hostflowsdk.Entity, name string) string {
	s, _ := e.Fields[name].(string)
	return s
}
