package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the Mr. Smart voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	SessionRetention time.Duration

	GeminiAPIKey       string
	GeminiLiveModel    string
	GeminiSummaryModel string
	GeminiVoiceName    string
	GeminiChatModel    string
	// Used for text chat requests that ask for extended reasoning.
	GeminiThinkingModel string

	TransportMode  string
	SummaryMode    string
	SummaryHTTPURL string
	ChatMode       string

	AssistantName       string
	InactivityThreshold time.Duration
	InactivityPeriod    time.Duration
	GreetingDelay       time.Duration
	FinalizeSettle      time.Duration
	RecordingLimit      time.Duration
	VADThreshold        float64

	RetellAPIKey     string
	RetellAgentID    string
	RetellFromNumber string
	RetellBaseURL    string

	WorkspaceFixturesPath string
	DatabaseURL           string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mrsmart"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,
		SessionRetention: 30 * time.Minute,

		GeminiAPIKey:        stringsTrimSpace("GEMINI_API_KEY"),
		GeminiLiveModel:     envOrDefault("GEMINI_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		GeminiSummaryModel:  envOrDefault("GEMINI_SUMMARY_MODEL", "gemini-2.5-flash"),
		GeminiVoiceName:     envOrDefault("GEMINI_VOICE_NAME", "Puck"),
		GeminiChatModel:     envOrDefault("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
		GeminiThinkingModel: envOrDefault("GEMINI_THINKING_MODEL", "gemini-3-pro-preview"),

		TransportMode:  strings.ToLower(envOrDefault("TRANSPORT_MODE", "auto")),
		SummaryMode:    strings.ToLower(envOrDefault("SUMMARY_MODE", "auto")),
		SummaryHTTPURL: stringsTrimSpace("SUMMARY_HTTP_URL"),
		ChatMode:       strings.ToLower(envOrDefault("CHAT_MODE", "auto")),

		AssistantName:       envOrDefault("ASSISTANT_NAME", "Mr. Smart"),
		InactivityThreshold: 15 * time.Second,
		InactivityPeriod:    time.Second,
		GreetingDelay:       500 * time.Millisecond,
		FinalizeSettle:      500 * time.Millisecond,
		RecordingLimit:      time.Hour,
		VADThreshold:        0.01,

		RetellAPIKey:     stringsTrimSpace("RETELL_API_KEY"),
		RetellAgentID:    stringsTrimSpace("RETELL_AGENT_ID"),
		RetellFromNumber: stringsTrimSpace("RETELL_FROM_NUMBER"),
		RetellBaseURL:    envOrDefault("RETELL_BASE_URL", "https://api.retellai.com"),

		WorkspaceFixturesPath: stringsTrimSpace("WORKSPACE_FIXTURES_PATH"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
	}
	// Older deployments export the key as API_KEY.
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = stringsTrimSpace("API_KEY")
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_SESSION_RETENTION", &cfg.SessionRetention},
		{"VOICE_INACTIVITY_THRESHOLD", &cfg.InactivityThreshold},
		{"VOICE_INACTIVITY_PERIOD", &cfg.InactivityPeriod},
		{"VOICE_GREETING_DELAY", &cfg.GreetingDelay},
		{"VOICE_FINALIZE_SETTLE", &cfg.FinalizeSettle},
		{"VOICE_RECORDING_LIMIT", &cfg.RecordingLimit},
	}
	for _, d := range durations {
		*d.dst, err = durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.VADThreshold, err = floatFromEnv("VOICE_VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}

	switch cfg.TransportMode {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("TRANSPORT_MODE must be one of auto, gemini, mock")
	}
	switch cfg.SummaryMode {
	case "auto", "gemini", "http", "mock":
	default:
		return Config{}, fmt.Errorf("SUMMARY_MODE must be one of auto, gemini, http, mock")
	}
	switch cfg.ChatMode {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("CHAT_MODE must be one of auto, gemini, mock")
	}
	if cfg.TransportMode == "gemini" && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required when TRANSPORT_MODE=gemini")
	}
	if cfg.ChatMode == "gemini" && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required when CHAT_MODE=gemini")
	}
	if cfg.SummaryMode == "http" && cfg.SummaryHTTPURL == "" {
		return Config{}, fmt.Errorf("SUMMARY_HTTP_URL is required when SUMMARY_MODE=http")
	}
	if cfg.InactivityThreshold < time.Second {
		return Config{}, fmt.Errorf("VOICE_INACTIVITY_THRESHOLD must be at least 1s")
	}
	if cfg.InactivityPeriod <= 0 || cfg.InactivityPeriod > cfg.InactivityThreshold {
		return Config{}, fmt.Errorf("VOICE_INACTIVITY_PERIOD must be positive and not exceed the threshold")
	}
	if cfg.GreetingDelay < 0 || cfg.FinalizeSettle < 0 {
		return Config{}, fmt.Errorf("VOICE_GREETING_DELAY and VOICE_FINALIZE_SETTLE must not be negative")
	}
	if cfg.RecordingLimit < time.Minute {
		return Config{}, fmt.Errorf("VOICE_RECORDING_LIMIT must be at least 1m")
	}
	if cfg.VADThreshold <= 0 || cfg.VADThreshold >= 1 {
		return Config{}, fmt.Errorf("VOICE_VAD_THRESHOLD must be between 0 and 1")
	}
	if cfg.SessionRetention < time.Minute {
		return Config{}, fmt.Errorf("APP_SESSION_RETENTION must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
