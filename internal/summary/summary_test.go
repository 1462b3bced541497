package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestHTTPSummarizerRetriesRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Transcript != "User: hi\n" || !strings.HasSuffix(req.Prompt, "Transcript:\nUser: hi\n") {
			t.Errorf("request = %+v", req)
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"  The user said hi. "}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL)
	h.sleep = noSleep
	got, err := h.Summarize(context.Background(), "User: hi\n")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "The user said hi." {
		t.Fatalf("Summarize() = %q", got)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits = %d, want 3", hits.Load())
	}
}

func TestHTTPSummarizerDoesNotRetryClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad transcript", http.StatusBadRequest)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL)
	h.sleep = noSleep
	_, err := h.Summarize(context.Background(), "User: hi\n")
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("Summarize() error = %v, want 400 HTTPStatusError", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestHTTPSummarizerPlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Short chat.\n"))
	}))
	defer srv.Close()

	got, err := NewHTTP(srv.URL).Summarize(context.Background(), "User: hi\n")
	if err != nil || got != "Short chat." {
		t.Fatalf("Summarize() = %q, %v", got, err)
	}
}

type stubSummarizer struct {
	text  string
	err   error
	calls int
}

func (s *stubSummarizer) Summarize(context.Context, string) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestBestEffortWrapsFailures(t *testing.T) {
	cases := []struct {
		name  string
		inner *stubSummarizer
	}{
		{"error", &stubSummarizer{err: errors.New("quota")}},
		{"empty", &stubSummarizer{text: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBestEffort(tc.inner, "test", time.Second).Summarize(context.Background(), "User: hi\n")
			var se *Error
			if !errors.As(err, &se) || se.Mode != "test" {
				t.Fatalf("Summarize() error = %v, want *Error", err)
			}
		})
	}

	got, err := NewBestEffort(&stubSummarizer{text: " ok "}, "test", 0).Summarize(context.Background(), "x")
	if err != nil || got != "ok" {
		t.Fatalf("Summarize() = %q, %v", got, err)
	}
}

func TestFallbackUsesSecondaryOnError(t *testing.T) {
	primary := &stubSummarizer{err: errors.New("down")}
	secondary := &stubSummarizer{text: "from fallback"}
	got, err := NewFallback(primary, secondary).Summarize(context.Background(), "User: hi\n")
	if err != nil || got != "from fallback" {
		t.Fatalf("Summarize() = %q, %v", got, err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestMockSummarizer(t *testing.T) {
	got, err := NewMock().Summarize(context.Background(), "User: Check my email\nMr. Smart: You have three.\n")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	want := "Conversation of 2 exchanges (1 from the user). Last: Mr. Smart: You have three."
	if got != want {
		t.Fatalf("Summarize() = %q, want %q", got, want)
	}
}

func TestNewSelectsMode(t *testing.T) {
	if _, err := New(context.Background(), Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without url accepted")
	}
	if _, err := New(context.Background(), Config{Mode: "gemini"}); err == nil {
		t.Fatalf("gemini mode without key accepted")
	}
	if _, err := New(context.Background(), Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown mode accepted")
	}

	s, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New(auto) error = %v", err)
	}
	be, ok := s.(*BestEffort)
	if !ok {
		t.Fatalf("New() = %T, want *BestEffort", s)
	}
	if _, ok := be.inner.(*Mock); !ok {
		t.Fatalf("auto without credentials = %T, want *Mock", be.inner)
	}

	s, _ = New(context.Background(), Config{HTTPURL: "http://localhost:9/summarize"})
	if _, ok := s.(*BestEffort).inner.(*HTTP); !ok {
		t.Fatalf("auto with url = %T, want *HTTP", s.(*BestEffort).inner)
	}
}
