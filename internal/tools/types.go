package tools

import (
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Call is one function invocation requested by the model.
type Call struct {
	ID   string
	Name string
	Args Args
}

// Result is returned to the model for exactly one Call.
type Result struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Payload is the response body the model receives.
func (r Result) Payload() map[string]any {
	return map[string]any{
		"result": map[string]any{
			"status":  string(r.Status),
			"message": r.Message,
		},
	}
}

var ErrUnknownTool = errors.New("unknown tool")

// ValidationError rejects a call before it has side effects. Its message is
// returned to the model verbatim so it can ask the user to correct the input.
type ValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ExecutionError wraps a handler failure.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Args are the decoded JSON arguments of a call.
type Args map[string]any

func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Number returns a numeric argument, or def when absent or not numeric.
func (a Args) Number(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
