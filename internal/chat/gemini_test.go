package chat

import (
	"testing"

	"google.golang.org/genai"

	"github.com/antoniostano/mrsmart/internal/tools"
)

func TestGenerateConfigTools(t *testing.T) {
	cfg := GeminiConfig{Model: DefaultModel, ThinkingModel: DefaultThinkingModel}
	decls := []tools.Declaration{{Name: "listEmails"}}
	cases := []struct {
		name            string
		thinking        bool
		search          bool
		wantModel       string
		wantTools       int
		wantThinkBudget bool
	}{
		{"default", false, false, DefaultModel, 3, false},
		{"search", false, true, DefaultModel, 3, false},
		{"thinking", true, false, DefaultThinkingModel, 1, true},
		{"thinking with search", true, true, DefaultThinkingModel, 3, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model, config := generateConfig(cfg, Request{Message: "hi", Thinking: tc.thinking, Search: tc.search}, decls)
			if model != tc.wantModel {
				t.Fatalf("model = %q, want %q", model, tc.wantModel)
			}
			if len(config.Tools) != tc.wantTools {
				t.Fatalf("tools = %d, want %d", len(config.Tools), tc.wantTools)
			}
			if fd := config.Tools[0].FunctionDeclarations; len(fd) != 1 || fd[0].Name != "listEmails" {
				t.Fatalf("function declarations = %+v", fd)
			}
			if tc.wantTools == 3 && (config.Tools[1].GoogleSearch == nil || config.Tools[2].GoogleMaps == nil) {
				t.Fatalf("grounding tools = %+v", config.Tools[1:])
			}
			if got := config.ThinkingConfig != nil; got != tc.wantThinkBudget {
				t.Fatalf("thinking config set = %v, want %v", got, tc.wantThinkBudget)
			}
			if tc.wantThinkBudget && *config.ThinkingConfig.ThinkingBudget != thinkingBudget {
				t.Fatalf("thinking budget = %d", *config.ThinkingConfig.ThinkingBudget)
			}
		})
	}
}

func TestHistorySkipsBlankTurns(t *testing.T) {
	got := history([]Message{
		{Role: RoleModel, Text: Greeting},
		{Role: RoleUser, Text: "  "},
		{Role: RoleUser, Text: "book lunch"},
	})
	if len(got) != 2 {
		t.Fatalf("history() = %d contents, want 2", len(got))
	}
	if got[0].Role != genai.RoleModel || got[1].Role != genai.RoleUser {
		t.Fatalf("roles = %q, %q", got[0].Role, got[1].Role)
	}
	if got[1].Parts[0].Text != "book lunch" {
		t.Fatalf("text = %q", got[1].Parts[0].Text)
	}
}

func TestTurnFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
			{Text: "weighing options", Thought: true},
			{Text: "Booking it now."},
			{FunctionCall: &genai.FunctionCall{Name: "bookAppointment", Args: map[string]any{"title": "Lunch"}}},
		}},
		GroundingMetadata: &genai.GroundingMetadata{GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://news.example"}},
			{Maps: &genai.GroundingChunkMaps{URI: "https://maps.example/place"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://news.example"}},
			nil,
		}},
	}}}

	turn := turnFromResponse(resp)
	if turn.Text != "Booking it now." {
		t.Fatalf("Text = %q", turn.Text)
	}
	if len(turn.Calls) != 1 || turn.Calls[0].Name != "bookAppointment" || turn.Calls[0].Args.String("title") != "Lunch" {
		t.Fatalf("Calls = %+v", turn.Calls)
	}
	want := []string{"https://news.example", "https://maps.example/place"}
	if len(turn.GroundingURLs) != len(want) {
		t.Fatalf("GroundingURLs = %v, want %v", turn.GroundingURLs, want)
	}
	for i := range want {
		if turn.GroundingURLs[i] != want[i] {
			t.Fatalf("GroundingURLs = %v, want %v", turn.GroundingURLs, want)
		}
	}

	if got := turnFromResponse(nil); got.Text != "" || got.Calls != nil {
		t.Fatalf("turnFromResponse(nil) = %+v", got)
	}
}
