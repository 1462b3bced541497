package workspace

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixtures seeds the store. Loaded from YAML when a path is configured.
type Fixtures struct {
	Emails []Email         `yaml:"emails"`
	Events []CalendarEvent `yaml:"events"`
}

// LoadFixtures reads a YAML fixture file, or returns the defaults when path is empty.
func LoadFixtures(path string, now time.Time) (Fixtures, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultFixtures(now), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read workspace fixtures: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse workspace fixtures %s: %w", path, err)
	}
	for i := range f.Emails {
		if f.Emails[i].Labels == nil {
			f.Emails[i].Labels = []string{}
		}
	}
	return f, nil
}

// NewStoreFromFixtures builds a store seeded with f.
func NewStoreFromFixtures(f Fixtures) *Store {
	return NewStore(f.Emails, f.Events)
}

func DefaultFixtures(now time.Time) Fixtures {
	at := func(h, m int) time.Time {
		return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	}
	return Fixtures{
		Emails: []Email{
			{
				ID:        "1",
				From:      "ceo@techcorp.com",
				Subject:   "Q4 Strategy Meeting",
				Body:      "We need to discuss the roadmap for Q4. Please find a slot.",
				Labels:    []string{"Work", "Important"},
				Timestamp: now.Add(-2 * time.Hour),
			},
			{
				ID:        "2",
				From:      "newsletter@daily.ai",
				Subject:   "The future of LLMs",
				Body:      "Here are the top trends in AI this week...",
				Read:      true,
				Labels:    []string{"Newsletter"},
				Timestamp: now.Add(-24 * time.Hour),
			},
			{
				ID:        "3",
				From:      "mom@family.com",
				Subject:   "Dinner on Sunday?",
				Body:      "Let me know if you can make it.",
				Labels:    []string{"Personal"},
				Timestamp: now.Add(-48 * time.Hour),
			},
		},
		Events: []CalendarEvent{
			{
				ID:        "101",
				Title:     "Team Standup",
				Start:     at(10, 0),
				End:       at(10, 30),
				Attendees: []string{"team@techcorp.com"},
			},
			{
				ID:        "102",
				Title:     "Lunch with Client",
				Start:     at(12, 30),
				End:       at(13, 30),
				Attendees: []string{"client@bigbiz.com"},
			},
		},
	}
}
