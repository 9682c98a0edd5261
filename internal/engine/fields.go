package engine

import (
	"fmt"

	"hostflow/internal/domain"
)

// renames maps client field names to the names the backend stores.
var renames = map[domain.Kind]map[string]string{
	domain.KindProperty: {
		"hourly_price":  "price_per_hour",
		"nightly_price": "price_per_night",
		"monthly_price": "price_per_month",
	},
	domain.KindEvent: {
		"date": "start_date",
		"time": "start_time",
	},
}

// reserved fields are owned by the backend.
var reserved = map[string]bool{
	"id": true, "owner_id": true, "kind": true, "status": true,
	"created_at": true, "updated_at": true, "submitted_at": true, "media": true,
}

// Canonical returns fields renamed to backend names.
func Canonical(kind domain.Kind, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	names := renames[kind]
	for k, v := range fields {
		if reserved[k] {
			return nil, fmt.Errorf("field %s is read-only", k)
		}
		if to, ok := names[k]; ok {
			k = to
		}
		out[k] = v
	}
	return out, nil
}

// listField is where UpdateAmenities stores its items.
func listField(kind domain.Kind) string {
	if kind == domain.KindGroup {
		return "rules"
	}
	return "amenities"
}
