// Package phone splits stored phone numbers into country code and subscriber number.
package phone

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultCode is applied to numbers stored without a leading "+".
// It mirrors the marketplace's historical behaviour and is a known quirk.
const DefaultCode = "+91"

// nationalLength is the subscriber length assumed for unknown country codes.
const nationalLength = 10

// knownCodes are matched longest first.
var knownCodes = func() []string {
	codes := []string{
		"+1", "+7", "+20", "+27", "+30", "+31", "+32", "+33", "+34", "+39", "+41", "+44",
		"+45", "+46", "+47", "+48", "+49", "+52", "+55", "+61", "+62", "+63", "+64", "+65",
		"+66", "+81", "+82", "+84", "+86", "+90", "+91", "+92", "+94", "+234", "+254",
		"+351", "+353", "+880", "+966", "+971", "+972", "+977",
	}
	sort.Slice(codes, func(i, j int) bool { return len(codes[i]) > len(codes[j]) })
	return codes
}()

type Parts struct {
	Code   string `json:"code"`
	Number string `json:"number"`
}

func (p Parts) String() string {
	if p.Number == "" {
		return ""
	}
	return p.Code + p.Number
}

// Split separates s using DefaultCode as the fallback.
func Split(s string) Parts {
	return SplitWithDefault(s, DefaultCode)
}

// SplitWithDefault separates s into code and number; numbers without a leading
// "+" are assigned defaultCode unchanged.
func SplitWithDefault(s, defaultCode string) Parts {
	s = strings.TrimSpace(s)
	if s == "" {
		return Parts{Code: defaultCode}
	}
	digits := digitsOf(s)
	if !strings.HasPrefix(s, "+") {
		return Parts{Code: defaultCode, Number: digits}
	}
	full := "+" + digits
	for _, code := range knownCodes {
		if strings.HasPrefix(full, code) && len(full) > len(code) {
			return Parts{Code: code, Number: full[len(code):]}
		}
	}
	if len(digits) > nationalLength {
		cut := len(digits) - nationalLength
		return Parts{Code: "+" + digits[:cut], Number: digits[cut:]}
	}
	return Parts{Code: defaultCode, Number: digits}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
