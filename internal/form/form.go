package form

import (
	"maps"
	"reflect"
	"strings"
)

// Record maps field names to values: strings, numbers, file references or slices.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	maps.Copy(out, r)
	return out
}

// String returns the field as a trimmed string, or "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return strings.TrimSpace(s)
}

// Filled reports whether a field holds a non-blank value.
// Whitespace strings, zero numbers and empty slices count as blank.
func (r Record) Filled(field string) bool {
	return Present(r[field])
}

// Pick returns a new record holding only the named fields that are set.
func (r Record) Pick(fields ...string) Record {
	out := Record{}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Present is the blank check used by step rules.
func Present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case bool:
		return x
	case []string:
		for _, s := range x {
			if strings.TrimSpace(s) != "" {
				return true
			}
		}
		return false
	case []any:
		for _, it := range x {
			if Present(it) {
				return true
			}
		}
		return false
	default:
		return lenOf(v) != 0
	}
}

// Store holds the record of the entity being created. It accepts any value;
// validation is left to step rules.
type Store struct {
	rec Record
}

func NewStore(defaults Record) *Store {
	s := &Store{}
	s.Reset(defaults)
	return s
}

// Get returns a copy of the current record.
func (s *Store) Get() Record { return s.rec.Clone() }

// Value returns a single field.
func (s *Store) Value(field string) any { return s.rec[field] }

func (s *Store) Set(field string, value any) {
	s.rec[field] = value
}

// Merge applies every field of patch over the record.
func (s *Store) Merge(patch Record) {
	maps.Copy(s.rec, patch)
}

// Reset discards all values and starts again from defaults.
func (s *Store) Reset(defaults Record) {
	s.rec = defaults.Clone()
}

type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// StepState tracks the 1-based position in an N-step form.
type StepState struct {
	Index     int
	Total     int
	Direction Direction
}

func NewStepState(total int) StepState {
	return StepState{Index: 1, Total: total, Direction: Forward}
}

// Forward advances one step; callers gate it on validation. Returns false on the last step.
func (s *StepState) Forward() bool {
	if s.Index >= s.Total {
		return false
	}
	s.Index++
	s.Direction = Forward
	return true
}

// Back retreats one step, stopping at the first.
func (s *StepState) Back() bool {
	if s.Index <= 1 {
		return false
	}
	s.Index--
	s.Direction = Backward
	return true
}

func (s StepState) Last() bool { return s.Index >= s.Total }

func lenOf(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	case reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
		return 1
	default:
		return 1
	}
}
