package phone

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

const DefaultBaseURL = "https://api.retellai.com"

var ErrNotConfigured = errors.New("phone agent is not configured")

// StatusError is a non-2xx reply from the call provider.
type StatusError struct {
	Code      int
	Body      string
	Retryable bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retell http status %d: %s", e.Code, e.Body)
}

// CallRequest describes one outbound call.
type CallRequest struct {
	ToNumber     string
	Context      string
	CompanyName  string
	EmailAddress string
}

// Client places outbound calls through the Retell API.
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		now: time.Now,
	}
}

type createCallPayload struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables"`
}

type createCallResponse struct {
	CallID string `json:"call_id"`
}

// CreateCall deploys the phone agent and returns the provider's call id.
// Calls are not retried; a duplicate dial is worse than a failed one.
func (c *Client) CreateCall(ctx context.Context, settings Settings, req CallRequest) (string, error) {
	if !settings.Configured() {
		return "", ErrNotConfigured
	}
	company := firstNonEmpty(req.CompanyName, settings.CompanyName)
	email := firstNonEmpty(req.EmailAddress, settings.EmailAddress)
	payload, err := json.Marshal(createCallPayload{
		FromNumber:      settings.FromNumber,
		ToNumber:        req.ToNumber,
		OverrideAgentID: settings.AgentID,
		DynamicVariables: map[string]string{
			"company_name":  company,
			"email_address": email,
			"location":      "Miami",
			"context":       req.Context,
			"current_time":  c.now().Format(time.RFC1123),
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/create-phone-call", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+settings.APIKey)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &StatusError{
			Code:      res.StatusCode,
			Body:      strings.TrimSpace(string(body)),
			Retryable: reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	var out createCallResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.CallID == "" {
		return "", errors.New("retell response missing call_id")
	}
	return out.CallID, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
