package app

import (
	"fmt"
	"strings"

	"github.com/antoniostano/mrsmart/internal/config"
	"github.com/antoniostano/mrsmart/internal/tools"
	"github.com/antoniostano/mrsmart/internal/voice"
)

type transportSetup struct {
	factory      voice.TransportFactory
	resolvedMode string
	detail       string
}

func resolveTransport(cfg config.Config, registry *tools.Registry) (transportSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.TransportMode))
	if mode == "" {
		mode = "auto"
	}

	gemini := func() transportSetup {
		model := strings.TrimSpace(cfg.GeminiLiveModel)
		if model == "" {
			model = voice.DefaultLiveModel
		}
		return transportSetup{
			factory: voice.NewGeminiTransportFactory(voice.GeminiConfig{
				APIKey:            cfg.GeminiAPIKey,
				Model:             model,
				VoiceName:         cfg.GeminiVoiceName,
				SystemInstruction: voice.DefaultSystemInstruction,
				Declarations:      registry.Declarations(),
				GoogleSearch:      true,
				GoogleMaps:        true,
			}),
			resolvedMode: "gemini",
			detail:       "gemini live (" + model + ")",
		}
	}
	demo := func(detail string) transportSetup {
		return transportSetup{
			factory:      voice.NewDemoTransportFactory(cfg.AssistantName),
			resolvedMode: "mock",
			detail:       detail,
		}
	}

	switch mode {
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return transportSetup{}, fmt.Errorf("TRANSPORT_MODE=gemini but GEMINI_API_KEY is not set")
		}
		return gemini(), nil
	case "mock":
		return demo("mock"), nil
	case "auto":
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return gemini(), nil
		}
		return demo("mock (no gemini api key)"), nil
	default:
		return transportSetup{}, fmt.Errorf("invalid TRANSPORT_MODE: %q (expected auto|gemini|mock)", cfg.TransportMode)
	}
}
