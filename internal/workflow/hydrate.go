package workflow

import (
	"hostflow/internal/domain"
	"hostflow/internal/form"
	"hostflow/internal/steps"
	hostflowsdk "hostflow/sdk/go"
)

// aliases lists, per local field, the backend names to try in order.
// Fields not listed are copied under their own name.
var aliases = map[domain.Kind]map[string][]string{
	domain.KindProperty: {
		"hourly_price":  {"price_per_hour", "hourly_price"},
		"nightly_price": {"price_per_night", "nightly_price"},
		"monthly_price": {"price_per_month", "monthly_price"},
	},
	domain.KindEvent: {
		"date": {"start_date", "date"},
		"time": {"start_time", "time"},
	},
	domain.KindGroup: {
		"rules": {"rules", "amenities"},
	},
}

// Hydrate maps a fetched entity back into form fields.
func Hydrate(kind domain.Kind, e hostflowsdk.Entity) form.Record {
	rec := form.Record{}
	known := aliases[kind]
	consumed := map[string]bool{}
	for local, names := range known {
		for _, name := range names {
			v, ok := e.Fields[name]
			if !ok || !form.Present(v) {
				continue
			}
			rec[local] = normalize(v)
			break
		}
		for _, name := range names {
			consumed[name] = true
		}
	}
	for name, v := range e.Fields {
		if consumed[name] {
			continue
		}
		rec[name] = normalize(v)
	}
	if len(e.Media) > 0 {
		assets := make([]domain.MediaAsset, 0, len(e.Media))
		for _, m := range e.Media {
			assets = append(assets, domain.MediaAsset{PreviewURL: m.URL, RemoteURL: m.URL})
		}
		rec[steps.MediaField] = assets
	}
	return rec
}

// normalize turns decoded JSON string arrays into []string.
func normalize(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}
