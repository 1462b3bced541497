package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/mrsmart/internal/tools"
)

// Mock answers locally when no model is configured. Messages about the inbox
// or the calendar trigger the matching read-only tool so the action path can
// be exercised offline.
type Mock struct {
	assistantName string
}

func NewMock(assistantName string) *Mock {
	if strings.TrimSpace(assistantName) == "" {
		assistantName = "Mr. Smart"
	}
	return &Mock{assistantName: assistantName}
}

func (m *Mock) Send(ctx context.Context, req Request, decls []tools.Declaration) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	text := strings.ToLower(req.Message)
	switch {
	case containsAny(text, "email", "inbox") && declared(decls, "listEmails"):
		return Turn{
			Text:  "Checking your inbox.",
			Calls: []tools.Call{{Name: "listEmails", Args: tools.Args{}}},
		}, nil
	case containsAny(text, "calendar", "schedule") && declared(decls, "getCalendarEvents"):
		return Turn{
			Text:  "Looking at your calendar.",
			Calls: []tools.Call{{Name: "getCalendarEvents", Args: tools.Args{"dateInfo": "today"}}},
		}, nil
	}
	return Turn{Text: fmt.Sprintf("%s here. You said: %s", m.assistantName, strings.TrimSpace(req.Message))}, nil
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func declared(decls []tools.Declaration, name string) bool {
	for _, d := range decls {
		if d.Name == name {
			return true
		}
	}
	return false
}
