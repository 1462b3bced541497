package summary

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	DefaultModel   = "gemini-2.5-flash"
	defaultTimeout = 45 * time.Second
)

var ErrEmptySummary = errors.New("summarizer returned no text")

// Summarizer condenses a conversation transcript into a short paragraph.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Error wraps any failure to produce a summary. It is never shown to the
// user; the recording keeps a placeholder instead.
type Error struct {
	Mode string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("summary (%s): %v", e.Mode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config controls summarizer construction.
type Config struct {
	Mode    string
	APIKey  string
	Model   string
	HTTPURL string
	Timeout time.Duration
}

// Prompt builds the instruction sent to the model for a transcript.
func Prompt(transcript string) string {
	return "Summarize the following conversation between 'Mr. Smart' (AI Executive Assistant) and the 'User' in 1-2 paragraphs. Highlight key actions taken or information requested. \n\nTranscript:\n" + transcript
}

func New(ctx context.Context, cfg Config) (Summarizer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	var (
		s   Summarizer
		err error
	)
	switch mode {
	case "auto":
		s, err = newAuto(ctx, cfg)
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("gemini API key is required for gemini summary mode")
		}
		s, err = NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("summary HTTP url is required for http mode")
		}
		s = NewHTTP(cfg.HTTPURL)
	case "mock":
		s = NewMock()
	default:
		return nil, fmt.Errorf("unsupported summary mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return NewBestEffort(s, mode, cfg.Timeout), nil
}

func newAuto(ctx context.Context, cfg Config) (Summarizer, error) {
	var secondary Summarizer = NewMock()
	if url := strings.TrimSpace(cfg.HTTPURL); url != "" {
		secondary = NewHTTP(url)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return secondary, nil
	}
	gem, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		log.Printf("summary: gemini unavailable, using fallback: %v", err)
		return secondary, nil
	}
	return NewFallback(gem, secondary), nil
}

// BestEffort bounds every call with a timeout and normalizes failures into
// *Error so callers can substitute a placeholder.
type BestEffort struct {
	inner   Summarizer
	mode    string
	timeout time.Duration
}

func NewBestEffort(inner Summarizer, mode string, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &BestEffort{inner: inner, mode: mode, timeout: timeout}
}

func (b *BestEffort) Summarize(ctx context.Context, transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	text, err := b.inner.Summarize(ctx, transcript)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptySummary
	}
	if err != nil {
		log.Printf("summary: mode=%s failed after %s: %v", b.mode, time.Since(start).Round(time.Millisecond), err)
		return "", &Error{Mode: b.mode, Err: err}
	}
	return strings.TrimSpace(text), nil
}
