package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/mrsmart/internal/reliability"
)

const (
	httpMaxAttempts = 3
	httpBackoffBase = 200 * time.Millisecond
	httpBackoffCap  = 2 * time.Second
)

type httpRequest struct {
	Transcript string `json:"transcript"`
	Prompt     string `json:"prompt"`
}

// HTTPStatusError is a non-2xx reply from the summary endpoint.
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("summary http status %d: %s", e.Code, e.Body)
}

// HTTP posts transcripts to an external summarization endpoint. Retryable
// statuses are retried with capped exponential backoff.
type HTTP struct {
	url    string
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewHTTP(url string) *HTTP {
	return &HTTP{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		sleep: sleepContext,
	}
}

func (h *HTTP) Summarize(ctx context.Context, transcript string) (string, error) {
	payload, err := json.Marshal(httpRequest{Transcript: transcript, Prompt: Prompt(transcript)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < httpMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := h.sleep(ctx, reliability.ExponentialBackoff(attempt-1, httpBackoffBase, httpBackoffCap)); err != nil {
				return "", err
			}
		}
		text, err := h.post(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		var se *HTTPStatusError
		if !errors.As(err, &se) || !reliability.IsRetryableHTTPStatus(se.Code) {
			return "", err
		}
	}
	return "", lastErr
}

func (h *HTTP) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &HTTPStatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return strings.TrimSpace(string(body)), nil
	}
	return extractText(obj), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"summary", "text", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
