package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/antoniostano/mrsmart/internal/tools"
)

const (
	DefaultModel         = "gemini-2.5-flash"
	DefaultThinkingModel = "gemini-3-pro-preview"
	thinkingBudget       = 32768

	SystemInstruction = "You are Mr. Smart, a highly intelligent executive AI assistant. You have access to the user's email and calendar. You can browse the web using Google Search and find locations using Google Maps. When asked about current events, places, or websites, YOU MUST use the googleSearch or googleMaps tools. Be concise, professional, and proactive. If you need to perform an action, use the available tools. Before executing a tool, briefly narrate what you are doing. CRITICAL: Do not guess user intent. If a request is ambiguous or unclear, ASK for clarification. Respond exactly to what is asked."
)

type GeminiConfig struct {
	APIKey        string
	Model         string
	ThinkingModel string
}

// Gemini runs each turn as a fresh chat seeded with the caller's history.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if strings.TrimSpace(cfg.ThinkingModel) == "" {
		cfg.ThinkingModel = DefaultThinkingModel
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

func (g *Gemini) Send(ctx context.Context, req Request, decls []tools.Declaration) (Turn, error) {
	model, config := generateConfig(g.cfg, req, decls)
	chat, err := g.client.Chats.Create(ctx, model, config, history(req.History))
	if err != nil {
		return Turn{}, fmt.Errorf("create chat: %w", err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: req.Message})
	if err != nil {
		return Turn{}, fmt.Errorf("send message: %w", err)
	}
	return turnFromResponse(resp), nil
}

// generateConfig picks the model and tools for a turn. Grounding tools are
// offered unless the turn asks for thinking without search.
func generateConfig(cfg GeminiConfig, req Request, decls []tools.Declaration) (string, *genai.GenerateContentConfig) {
	model := cfg.Model
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: tools.GenAIDeclarations(decls)}},
	}
	if req.Thinking {
		model = cfg.ThinkingModel
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](thinkingBudget)}
	}
	if req.Search || !req.Thinking {
		config.Tools = append(config.Tools,
			&genai.Tool{GoogleSearch: &genai.GoogleSearch{}},
			&genai.Tool{GoogleMaps: &genai.GoogleMaps{}},
		)
	}
	return model, config
}

func history(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := genai.RoleModel
		if m.Role == RoleUser {
			role = genai.RoleUser
		}
		out = append(out, genai.NewContentFromText(m.Text, genai.Role(role)))
	}
	return out
}

func turnFromResponse(resp *genai.GenerateContentResponse) Turn {
	if resp == nil {
		return Turn{}
	}
	var turn Turn
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				b.WriteString(part.Text)
			}
		}
		turn.Text = b.String()
	}
	for _, fc := range resp.FunctionCalls() {
		if fc != nil {
			turn.Calls = append(turn.Calls, tools.CallFromGenAI(fc))
		}
	}
	turn.GroundingURLs = groundingURLs(resp)
	return turn
}

func groundingURLs(resp *genai.GenerateContentResponse) []string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	add := func(uri string) {
		if uri == "" {
			return
		}
		if _, ok := seen[uri]; ok {
			return
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		if chunk.Web != nil {
			add(chunk.Web.URI)
		}
		if chunk.Maps != nil {
			add(chunk.Maps.URI)
		}
	}
	return out
}
