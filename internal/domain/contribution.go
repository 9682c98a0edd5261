package domain

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Contribution is the tagged union of everything a host can submit.
// Each variant flattens itself into form fields using local field names.
type Contribution interface {
	Kind() Kind
	Record() map[string]any
}

type PropertyListing struct {
	Title           string   `yaml:"title" json:"title"`
	Category        string   `yaml:"category" json:"category"`
	Description     string   `yaml:"description" json:"description"`
	Address         string   `yaml:"address" json:"address"`
	City            string   `yaml:"city" json:"city"`
	HourlyPrice     float64  `yaml:"hourly_price,omitempty" json:"hourly_price,omitempty"`
	NightlyPrice    float64  `yaml:"nightly_price,omitempty" json:"nightly_price,omitempty"`
	MonthlyPrice    float64  `yaml:"monthly_price,omitempty" json:"monthly_price,omitempty"`
	Amenities       []string `yaml:"amenities,omitempty" json:"amenities,omitempty"`
	CustomAmenities string   `yaml:"custom_amenities,omitempty" json:"custom_amenities,omitempty"`
}

func (PropertyListing) Kind() Kind { return KindProperty }

func (p PropertyListing) Record() map[string]any {
	rec := map[string]any{
		"title":       p.Title,
		"category":    p.Category,
		"description": p.Description,
		"address":     p.Address,
		"city":        p.City,
	}
	setNonZero(rec, "hourly_price", p.HourlyPrice)
	setNonZero(rec, "nightly_price", p.NightlyPrice)
	setNonZero(rec, "monthly_price", p.MonthlyPrice)
	if len(p.Amenities) > 0 {
		rec["amenities"] = append([]string(nil), p.Amenities...)
	}
	if p.CustomAmenities != "" {
		rec["custom_amenities"] = p.CustomAmenities
	}
	return rec
}

type Event struct {
	Title       string  `yaml:"title" json:"title"`
	Date        string  `yaml:"date" json:"date"`
	Time        string  `yaml:"time" json:"time"`
	EventType   string  `yaml:"event_type,omitempty" json:"event_type,omitempty"`
	EventMode   string  `yaml:"event_mode,omitempty" json:"event_mode,omitempty"`
	Category    string  `yaml:"category" json:"category"`
	Description string  `yaml:"description" json:"description"`
	Address     string  `yaml:"address" json:"address"`
	City        string  `yaml:"city" json:"city"`
	EventPrice  string  `yaml:"event_price,omitempty" json:"event_price,omitempty"`
	TicketPrice float64 `yaml:"ticket_price,omitempty" json:"ticket_price,omitempty"`
}

func (Event) Kind() Kind { return KindEvent }

func (e Event) Record() map[string]any {
	rec := map[string]any{
		"title":       e.Title,
		"date":        e.Date,
		"time":        e.Time,
		"category":    e.Category,
		"description": e.Description,
		"address":     e.Address,
		"city":        e.City,
	}
	// Empty optionals keep the workflow defaults.
	if e.EventType != "" {
		rec["event_type"] = e.EventType
	}
	if e.EventMode != "" {
		rec["event_mode"] = e.EventMode
	}
	if e.EventPrice != "" {
		rec["event_price"] = e.EventPrice
	}
	setNonZero(rec, "ticket_price", e.TicketPrice)
	return rec
}

type Group struct {
	Title       string   `yaml:"title" json:"title"`
	Category    string   `yaml:"category" json:"category"`
	Description string   `yaml:"description" json:"description"`
	City        string   `yaml:"city" json:"city"`
	Rules       []string `yaml:"rules,omitempty" json:"rules,omitempty"`
	CustomRules string   `yaml:"custom_rules,omitempty" json:"custom_rules,omitempty"`
}

func (Group) Kind() Kind { return KindGroup }

func (g Group) Record() map[string]any {
	rec := map[string]any{
		"title":       g.Title,
		"category":    g.Category,
		"description": g.Description,
		"city":        g.City,
	}
	if len(g.Rules) > 0 {
		rec["rules"] = append([]string(nil), g.Rules...)
	}
	if g.CustomRules != "" {
		rec["custom_rules"] = g.CustomRules
	}
	return rec
}

type JobApplication struct {
	JobID       string `yaml:"job_id" json:"job_id"`
	FullName    string `yaml:"full_name" json:"full_name"`
	Email       string `yaml:"email" json:"email"`
	Phone       string `yaml:"phone" json:"phone"`
	CoverLetter string `yaml:"cover_letter" json:"cover_letter"`
}

func (JobApplication) Kind() Kind { return KindJobApplication }

func (j JobApplication) Record() map[string]any {
	rec := map[string]any{}
	for k, v := range map[string]string{
		"job_id":       j.JobID,
		"full_name":    j.FullName,
		"email":        j.Email,
		"phone":        j.Phone,
		"cover_letter": j.CoverLetter,
	} {
		// Blank fields leave session prefill in place.
		if v != "" {
			rec[k] = v
		}
	}
	return rec
}

// DecodeContribution reads a YAML document carrying a kind discriminator.
func DecodeContribution(data []byte) (Contribution, error) {
	var head struct {
		Kind string `yaml:"kind"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid contribution yaml: %w", err)
	}
	if head.Kind == "" {
		return nil, errors.New("contribution kind is required")
	}
	kind, err := ParseKind(head.Kind)
	if err != nil {
		return nil, err
	}
	var c Contribution
	switch kind {
	case KindProperty:
		var v PropertyListing
		err = yaml.Unmarshal(data, &v)
		c = v
	case KindEvent:
		var v Event
		err = yaml.Unmarshal(data, &v)
		c = v
	case KindGroup:
		var v Group
		err = yaml.Unmarshal(data, &v)
		c = v
	case KindJobApplication:
		var v JobApplication
		err = yaml.Unmarshal(data, &v)
		c = v
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return c, nil
}

func setNonZero(rec map[string]any, key string, v float64) {
	if v != 0 {
		rec[key] = v
	}
}
