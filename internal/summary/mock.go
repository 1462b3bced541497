package summary

import (
	"context"
	"fmt"
	"strings"
)

// Mock produces a deterministic local summary when no model is configured.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) Summarize(ctx context.Context, transcript string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	lines := nonEmptyLines(transcript)
	if len(lines) == 0 {
		return "", nil
	}
	var user int
	for _, l := range lines {
		if strings.HasPrefix(l, "User:") {
			user++
		}
	}
	return fmt.Sprintf("Conversation of %d exchanges (%d from the user). Last: %s", len(lines), user, lines[len(lines)-1]), nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
