package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/mrsmart/internal/tools"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	// Greeting is the first model message of a new conversation.
	Greeting = "Hello. I am Mr. Smart. How can I help you organize your day?"
	// ErrorText is shown in place of a reply when the model fails.
	ErrorText = "I encountered an error processing your request. Please check your connection."

	MaxHistory     = 100
	defaultTimeout = 90 * time.Second
)

var (
	ErrEmptyMessage   = errors.New("message is required")
	ErrInvalidRole    = errors.New("history role must be user or model")
	ErrHistoryTooLong = fmt.Errorf("history exceeds %d messages", MaxHistory)
)

// Message is one turn of a text conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type Request struct {
	History  []Message `json:"history"`
	Message  string    `json:"message"`
	Thinking bool      `json:"thinking"`
	Search   bool      `json:"search"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.History) > MaxHistory {
		return ErrHistoryTooLong
	}
	for _, m := range r.History {
		if m.Role != RoleUser && m.Role != RoleModel {
			return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
	}
	return nil
}

// IsInvalidRequest reports whether err came from Request.Validate.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrInvalidRole) || errors.Is(err, ErrHistoryTooLong)
}

// Turn is what the model produced for one message, before any of its
// function calls run.
type Turn struct {
	Text          string
	Calls         []tools.Call
	GroundingURLs []string
}

// Model answers one message given the prior history and the tools it may call.
type Model interface {
	Send(ctx context.Context, req Request, decls []tools.Declaration) (Turn, error)
}

type Reply struct {
	Text          string         `json:"text"`
	GroundingURLs []string       `json:"grounding_urls,omitempty"`
	Actions       []tools.Result `json:"actions,omitempty"`
}

// Service runs text chat turns. Function calls requested by the model run
// locally and are reported in the reply; their results are not sent back to
// the model.
type Service struct {
	model    Model
	registry *tools.Registry
	timeout  time.Duration
}

func NewService(model Model, registry *tools.Registry) *Service {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Service{model: model, registry: registry, timeout: defaultTimeout}
}

func (s *Service) Send(ctx context.Context, req Request) (Reply, error) {
	if err := req.Validate(); err != nil {
		return Reply{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	turn, err := s.model.Send(ctx, req, s.registry.Declarations())
	if err != nil {
		log.Printf("chat: model failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return Reply{}, fmt.Errorf("chat model: %w", err)
	}
	reply := Reply{Text: turn.Text, GroundingURLs: turn.GroundingURLs}
	if len(turn.Calls) == 0 {
		return reply, nil
	}

	d := tools.NewDispatcher(ctx, s.registry, nil, tools.Hooks{})
	defer d.Close()

	var b strings.Builder
	b.WriteString(turn.Text)
	b.WriteString("\n\n[Processing Actions]:\n")
	for _, call := range turn.Calls {
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		res, _ := d.Execute(ctx, call)
		reply.Actions = append(reply.Actions, res)
		fmt.Fprintf(&b, "- Action: %s\n", call.Name)
		if res.Status == tools.StatusError {
			fmt.Fprintf(&b, "  (Error: %s)\n", res.Message)
		} else {
			fmt.Fprintf(&b, "  (%s)\n", res.Message)
		}
	}
	reply.Text = b.String()
	return reply, nil
}

type Config struct {
	Mode          string
	APIKey        string
	Model         string
	ThinkingModel string
	AssistantName string
}

// NewModel builds the chat model for mode auto, gemini or mock. Auto uses
// Gemini when a key is present. It returns the resolved mode.
func NewModel(ctx context.Context, cfg Config) (Model, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	gemini := func() (Model, string, error) {
		g, err := NewGemini(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model, ThinkingModel: cfg.ThinkingModel})
		if err != nil {
			return nil, "", err
		}
		return g, "gemini", nil
	}
	switch mode {
	case "gemini":
		return gemini()
	case "mock":
		return NewMock(cfg.AssistantName), "mock", nil
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return NewMock(cfg.AssistantName), "mock", nil
		}
		m, resolved, err := gemini()
		if err != nil {
			log.Printf("chat: gemini unavailable, using mock: %v", err)
			return NewMock(cfg.AssistantName), "mock", nil
		}
		return m, resolved, nil
	default:
		return nil, "", fmt.Errorf("unsupported chat mode %q", cfg.Mode)
	}
}
