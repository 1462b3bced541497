package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestConnectionStatus(t *testing.T) {
	cases := []struct {
		code   int
		detail string
		want   string
	}{
		{401, "", StatusInvalidAPIKey},
		{403, "", StatusInvalidAPIKey},
		{503, "", StatusServiceOverloaded},
		{500, "", StatusConnectionError},
		{0, "websocket: close 1008 (policy violation): API key not valid. Please pass a valid API key.", StatusInvalidAPIKey},
		{0, "unexpected status 503 from upstream", StatusServiceOverloaded},
		{0, "The service is currently unavailable.", StatusServiceOverloaded},
		{0, "read tcp: connection reset by peer", StatusConnectionError},
	}
	for _, tc := range cases {
		if got := ConnectionStatus(tc.code, tc.detail); got != tc.want {
			t.Fatalf("ConnectionStatus(%d, %q) = %q, want %q", tc.code, tc.detail, got, tc.want)
		}
	}
}

func TestIsRetryableConnectionFailure(t *testing.T) {
	if IsRetryableConnectionFailure("websocket: close 1008 (policy violation): API key not valid.") {
		t.Fatalf("invalid key should not be retryable")
	}
	if !IsRetryableConnectionFailure("dial tcp: i/o timeout") {
		t.Fatalf("network failure should be retryable")
	}
	if !IsRetryableConnectionFailure("status 503") {
		t.Fatalf("overload should be retryable")
	}
}
