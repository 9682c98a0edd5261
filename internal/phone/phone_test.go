package phone_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hostflow/internal/phone"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want phone.Parts
	}{
		{"+14155551234", phone.Parts{Code: "+1", Number: "4155551234"}},
		{"4155551234", phone.Parts{Code: "+91", Number: "4155551234"}},
		{"+44 20 7946 0958", phone.Parts{Code: "+44", Number: "2079460958"}},
		{"+919876543210", phone.Parts{Code: "+91", Number: "9876543210"}},
		{"+9715012345678", phone.Parts{Code: "+971", Number: "5012345678"}},
		{"+3591234567890", phone.Parts{Code: "+359", Number: "1234567890"}},
		{"", phone.Parts{Code: "+91"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, phone.Split(tt.in))
		})
	}
}

func TestSplitWithDefault(t *testing.T) {
	got := phone.SplitWithDefault("(415) 555-1234", "+1")
	assert.Equal(t, phone.Parts{Code: "+1", Number: "4155551234"}, got)
	assert.Equal(t, "+14155551234", got.String())
	assert.Equal(t, "", phone.Parts{Code: "+1"}.String())
}
