package policy

import "testing"

func TestDecideToolCallBlocked(t *testing.T) {
	got := DecideToolCall("sendEmail", `{"body":"here is the api_key: sk-1234567890abcdef","to":"x@y.com"}`)
	if !got.Blocked {
		t.Fatalf("Blocked = false, want true")
	}
	if got.Risk != RiskBlocked {
		t.Fatalf("Risk = %q, want %q", got.Risk, RiskBlocked)
	}
}

func TestDecideToolCallRisk(t *testing.T) {
	cases := []struct {
		name string
		want Risk
	}{
		{"sendEmail", RiskHigh},
		{"makePhoneCall", RiskHigh},
		{"bookAppointment", RiskMedium},
		{"listEmails", RiskLow},
		{"unknown", RiskLow},
	}
	for _, tc := range cases {
		got := DecideToolCall(tc.name, `{"subject":"Lunch"}`)
		if got.Blocked || got.Risk != tc.want {
			t.Fatalf("DecideToolCall(%q) = %+v, want risk %q", tc.name, got, tc.want)
		}
	}
}
