// Package steps holds the static per-step rules of every contribution form.
package steps

import (
	"fmt"

	"hostflow/internal/domain"
	"hostflow/internal/form"
)

// Rule names a required-field rule.
type Rule string

const (
	RuleBasics      Rule = "basics"
	RuleEventBasics Rule = "event_basics"
	RuleDetails     Rule = "details"
	RuleLocation    Rule = "location"
	RuleCity        Rule = "city"
	RulePricing     Rule = "pricing"
	RuleAmenities   Rule = "amenities"
	RuleRules       Rule = "rules"
	RuleMedia       Rule = "media"
	RuleApplicant   Rule = "applicant"
	RuleCover       Rule = "cover"
)

// Section names the remote update sent when leaving a step.
type Section string

const (
	SectionNone         Section = ""
	SectionBasic        Section = "basic"
	SectionLocation     Section = "location"
	SectionVenuePricing Section = "venue_pricing"
	SectionAmenities    Section = "amenities"
	SectionMedia        Section = "media"
)

// Deferred reports sections applied by the final submit rather than on advance.
func (s Section) Deferred() bool {
	return s == SectionVenuePricing || s == SectionMedia
}

// MediaField is the record key holding []domain.MediaAsset.
const MediaField = "media"

// FreeEntry is the event_price value that waives pricing.
const FreeEntry = "free"

type Step struct {
	Name    string
	Rule    Rule
	Section Section
	// Fields the section call carries, in local names.
	Fields []string
}

type Plan struct {
	Kind     domain.Kind
	Steps    []Step
	defaults form.Record
}

// For returns the plan of a contribution kind.
func For(kind domain.Kind) (Plan, error) {
	p, ok := plans[kind]
	if !ok {
		return Plan{}, fmt.Errorf("no form plan for kind %q", kind)
	}
	return p, nil
}

// MustFor is For for statically known kinds.
func MustFor(kind domain.Kind) Plan {
	p, err := For(kind)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Plan) Len() int { return len(p.Steps) }

// Step returns the 1-based step.
func (p Plan) Step(index int) (Step, bool) {
	if index < 1 || index > len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[index-1], true
}

// Defaults returns a fresh copy of the initial record.
func (p Plan) Defaults() form.Record { return p.defaults.Clone() }

// IsStepValid reports whether every required field of the step is present.
func (p Plan) IsStepValid(index int, rec form.Record) bool {
	st, ok := p.Step(index)
	if !ok {
		return false
	}
	return Check(st.Rule, rec)
}

// SectionIndex returns the 1-based index of the first step with the section, or 0.
func (p Plan) SectionIndex(section Section) int {
	for i, st := range p.Steps {
		if st.Section == section {
			return i + 1
		}
	}
	return 0
}

// Check evaluates a rule against a record.
func Check(rule Rule, rec form.Record) bool {
	switch rule {
	case RuleBasics, RuleDetails:
		fields := []string{"category", "description"}
		if rule == RuleBasics {
			fields = append(fields, "title")
		}
		return allFilled(rec, fields...)
	case RuleEventBasics:
		return allFilled(rec, "title", "date", "time")
	case RuleLocation:
		return allFilled(rec, "address", "city")
	case RuleCity:
		return rec.Filled("city")
	case RulePricing:
		if rec.String("event_price") == FreeEntry {
			return true
		}
		return anyFilled(rec, "hourly_price", "nightly_price", "monthly_price", "ticket_price")
	case RuleAmenities:
		return anyFilled(rec, "amenities", "custom_amenities")
	case RuleRules:
		return anyFilled(rec, "rules", "custom_rules")
	case RuleMedia:
		return rec.Filled(MediaField)
	case RuleApplicant:
		return allFilled(rec, "full_name", "email", "phone")
	case RuleCover:
		return rec.Filled("cover_letter")
	default:
		return false
	}
}

func allFilled(rec form.Record, fields ...string) bool {
	for _, f := range fields {
		if !rec.Filled(f) {
			return false
		}
	}
	return true
}

func anyFilled(rec form.Record, fields ...string) bool {
	for _, f := range fields {
		if rec.Filled(f) {
			return true
		}
	}
	return false
}

var pricingFields = []string{"hourly_price", "nightly_price", "monthly_price"}

var plans = map[domain.Kind]Plan{
	domain.KindProperty: {
		Kind: domain.KindProperty,
		Steps: []Step{
			{Name: "Basics", Rule: RuleBasics, Section: SectionBasic, Fields: []string{"title", "category", "description"}},
			{Name: "Location", Rule: RuleLocation, Section: SectionLocation, Fields: []string{"address", "city"}},
			{Name: "Pricing", Rule: RulePricing, Section: SectionVenuePricing, Fields: pricingFields},
			{Name: "Amenities", Rule: RuleAmenities, Section: SectionAmenities, Fields: []string{"amenities", "custom_amenities"}},
			{Name: "Media", Rule: RuleMedia, Section: SectionMedia},
		},
		defaults: form.Record{},
	},
	domain.KindEvent: {
		Kind: domain.KindEvent,
		Steps: []Step{
			{Name: "Basics", Rule: RuleEventBasics, Section: SectionBasic, Fields: []string{"title", "date", "time", "event_type", "event_mode"}},
			{Name: "Details", Rule: RuleDetails, Section: SectionBasic, Fields: []string{"category", "description"}},
			{Name: "Venue", Rule: RuleLocation, Section: SectionLocation, Fields: []string{"address", "city"}},
			{Name: "Pricing", Rule: RulePricing, Section: SectionVenuePricing, Fields: []string{"event_price", "ticket_price"}},
			{Name: "Media", Rule: RuleMedia, Section: SectionMedia},
		},
		defaults: form.Record{
			"event_type":  "public",
			"event_mode":  "in_person",
			"event_price": "paid",
		},
	},
	domain.KindGroup: {
		Kind: domain.KindGroup,
		Steps: []Step{
			{Name: "Basics", Rule: RuleBasics, Section: SectionBasic, Fields: []string{"title", "category", "description"}},
			{Name: "Location", Rule: RuleCity, Section: SectionLocation, Fields: []string{"city"}},
			{Name: "Rules", Rule: RuleRules, Section: SectionAmenities, Fields: []string{"rules", "custom_rules"}},
			{Name: "Media", Rule: RuleMedia, Section: SectionMedia},
		},
		defaults: form.Record{},
	},
	domain.KindJobApplication: {
		Kind: domain.KindJobApplication,
		Steps: []Step{
			{Name: "Applicant", Rule: RuleApplicant, Section: SectionBasic, Fields: []string{"job_id", "full_name", "email", "phone", "phone_code", "phone_number"}},
			{Name: "Cover", Rule: RuleCover, Section: SectionBasic, Fields: []string{"cover_letter"}},
		},
		defaults: form.Record{},
	},
}
