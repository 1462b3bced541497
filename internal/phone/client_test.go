package phone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateCallSendsPayload(t *testing.T) {
	var got createCallPayload
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"call_id": "call_123"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	settings := Settings{APIKey: "key_abc", AgentID: "agent_1", FromNumber: "+15550001111", CompanyName: "Nexus"}
	id, err := c.CreateCall(context.Background(), settings, CallRequest{ToNumber: "+15551234567", Context: "Book a table"})
	if err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}
	if id != "call_123" {
		t.Fatalf("CreateCall() = %q, want call_123", id)
	}
	if auth != "Bearer key_abc" {
		t.Fatalf("Authorization = %q", auth)
	}
	if path != "/v2/create-phone-call" {
		t.Fatalf("path = %q", path)
	}
	if got.FromNumber != "+15550001111" || got.ToNumber != "+15551234567" || got.OverrideAgentID != "agent_1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.DynamicVariables["company_name"] != "Nexus" || got.DynamicVariables["context"] != "Book a table" {
		t.Fatalf("unexpected dynamic variables: %+v", got.DynamicVariables)
	}
}

func TestCreateCallNotConfigured(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateCall(context.Background(), Settings{APIKey: "k", AgentID: "a"}, CallRequest{ToNumber: "+15551234567"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CreateCall() error = %v, want ErrNotConfigured", err)
	}
	if hits != 0 {
		t.Fatalf("provider called %d times without credentials", hits)
	}
}

func TestCreateCallStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateCall(context.Background(), Settings{APIKey: "k", AgentID: "a", FromNumber: "+1555"}, CallRequest{ToNumber: "+15551234567"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("CreateCall() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable || !se.Retryable {
		t.Fatalf("StatusError = %+v", se)
	}
}

func TestSettingsStoreUpdateKeepsMaskedKey(t *testing.T) {
	s := NewSettingsStore(Settings{APIKey: "secret-key-1234", AgentID: "agent"})
	masked := s.Get().Masked()
	if masked.APIKey != "***********1234" {
		t.Fatalf("Masked().APIKey = %q", masked.APIKey)
	}
	s.Update(Settings{APIKey: masked.APIKey, FromNumber: " +15550001111 "})
	got := s.Get()
	if got.APIKey != "secret-key-1234" {
		t.Fatalf("APIKey = %q, want original", got.APIKey)
	}
	if got.FromNumber != "+15550001111" || !got.Configured() {
		t.Fatalf("settings = %+v, want configured", got)
	}
}
