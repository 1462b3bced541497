package summary

import (
	"context"
	"log"
	"strings"
)

// Fallback tries the primary summarizer and falls back on error or empty text.
type Fallback struct {
	primary  Summarizer
	fallback Summarizer
}

func NewFallback(primary, fallback Summarizer) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

func (f *Fallback) Summarize(ctx context.Context, transcript string) (string, error) {
	text, err := f.primary.Summarize(ctx, transcript)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		log.Printf("summary: primary failed, using fallback: %v", err)
	}
	return f.fallback.Summarize(ctx, transcript)
}
