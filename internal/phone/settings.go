package phone

import (
	"strings"
	"sync"
)

// Settings are the phone-agent credentials the user configures at runtime.
type Settings struct {
	APIKey       string `json:"api_key"`
	AgentID      string `json:"agent_id"`
	FromNumber   string `json:"from_number"`
	CompanyName  string `json:"company_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

// Configured reports whether an outbound call can be placed.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.APIKey) != "" &&
		strings.TrimSpace(s.AgentID) != "" &&
		strings.TrimSpace(s.FromNumber) != ""
}

// Masked hides the API key for display.
func (s Settings) Masked() Settings {
	s.APIKey = maskSecret(s.APIKey)
	return s
}

func maskSecret(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// SettingsStore holds the current settings. Safe for concurrent use.
type SettingsStore struct {
	mu       sync.RWMutex
	settings Settings
}

func NewSettingsStore(initial Settings) *SettingsStore {
	return &SettingsStore{settings: normalize(initial)}
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update merges non-empty fields into the stored settings. A masked API key
// (as returned by Masked) leaves the stored key untouched.
func (s *SettingsStore) Update(in Settings) Settings {
	in = normalize(in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.APIKey != "" && !strings.HasPrefix(in.APIKey, "*") {
		s.settings.APIKey = in.APIKey
	}
	if in.AgentID != "" {
		s.settings.AgentID = in.AgentID
	}
	if in.FromNumber != "" {
		s.settings.FromNumber = in.FromNumber
	}
	if in.CompanyName != "" {
		s.settings.CompanyName = in.CompanyName
	}
	if in.EmailAddress != "" {
		s.settings.EmailAddress = in.EmailAddress
	}
	return s.settings
}

func normalize(s Settings) Settings {
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.AgentID = strings.TrimSpace(s.AgentID)
	s.FromNumber = strings.TrimSpace(s.FromNumber)
	s.CompanyName = strings.TrimSpace(s.CompanyName)
	s.EmailAddress = strings.TrimSpace(s.EmailAddress)
	return s
}
