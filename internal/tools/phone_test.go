package tools

import (
	"errors"
	"testing"
)

func TestValidatePhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+1 555-123-4567", "+15551234567", true},
		{"15551234567", "15551234567", true},
		{"+44 20 7946 0958", "+442079460958", true},
		{"Alex", "", false},
		{"", "", false},
		{"+0123456", "", false},
		{"+1234567890123456", "", false},
		{"(555) 123-4567", "", false},
	}
	for _, tc := range cases {
		got, err := ValidatePhoneNumber(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("ValidatePhoneNumber(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
			}
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("ValidatePhoneNumber(%q) error = %v, want *ValidationError", tc.in, err)
		}
		want := "Invalid Phone Number: '" + tc.in + "'. You MUST ask the user for the correct phone number before calling. Do not guess."
		if verr.Message != want {
			t.Fatalf("message = %q, want %q", verr.Message, want)
		}
	}
}
