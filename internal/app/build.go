package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/mrsmart/internal/chat"
	"github.com/antoniostano/mrsmart/internal/config"
	"github.com/antoniostano/mrsmart/internal/httpapi"
	"github.com/antoniostano/mrsmart/internal/observability"
	"github.com/antoniostano/mrsmart/internal/phone"
	"github.com/antoniostano/mrsmart/internal/recordings"
	"github.com/antoniostano/mrsmart/internal/session"
	"github.com/antoniostano/mrsmart/internal/summary"
	"github.com/antoniostano/mrsmart/internal/tools"
	"github.com/antoniostano/mrsmart/internal/voice"
	"github.com/antoniostano/mrsmart/internal/workspace"
)

type TransportInfo struct {
	Mode   string
	Detail string
}

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Sessions   *session.Manager
	Engine     *voice.Engine
	Recordings recordings.Store
	Metrics    *observability.Metrics
	Transport  TransportInfo
	ChatMode   string

	// Cleanup should be called on shutdown, after the HTTP server has stopped.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := recordings.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("recording store init failed: %w", err)
	}

	fixtures, err := workspace.LoadFixtures(cfg.WorkspaceFixturesPath, time.Now())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("workspace fixtures: %w", err)
	}
	ws := workspace.NewStoreFromFixtures(fixtures)

	phoneSettings := phone.NewSettingsStore(phone.Settings{
		APIKey:     cfg.RetellAPIKey,
		AgentID:    cfg.RetellAgentID,
		FromNumber: cfg.RetellFromNumber,
	})

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.BuiltinDeps{
		Workspace:     ws,
		Caller:        phone.NewClient(cfg.RetellBaseURL),
		PhoneSettings: phoneSettings,
	}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register capabilities: %w", err)
	}

	transport, err := resolveTransport(cfg, registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	summarizer, err := summary.New(ctx, summary.Config{
		Mode:    cfg.SummaryMode,
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiSummaryModel,
		HTTPURL: cfg.SummaryHTTPURL,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("summarizer init failed: %w", err)
	}

	chatModel, chatMode, err := chat.NewModel(ctx, chat.Config{
		Mode:          cfg.ChatMode,
		APIKey:        cfg.GeminiAPIKey,
		Model:         cfg.GeminiChatModel,
		ThinkingModel: cfg.GeminiThinkingModel,
		AssistantName: cfg.AssistantName,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("chat model init failed: %w", err)
	}

	sessions := session.NewManager(cfg.SessionRetention)
	sessions.SetEndHook(func(s session.Snapshot) {
		log.Printf("session: ended id=%s reason=%s after %s", s.ID, s.EndReason, s.EndedAt.Sub(s.CreatedAt).Round(time.Millisecond))
	})

	engine, err := voice.NewEngine(voice.Options{
		Transports:          transport.factory,
		Registry:            registry,
		Summarizer:          summarizer,
		Sink:                store,
		Sessions:            sessions,
		Metrics:             metrics,
		AssistantName:       cfg.AssistantName,
		VADThreshold:        cfg.VADThreshold,
		InactivityPeriod:    cfg.InactivityPeriod,
		InactivityThreshold: cfg.InactivityThreshold,
		GreetingDelay:       cfg.GreetingDelay,
		FinalizeSettle:      cfg.FinalizeSettle,
		RecordingLimit:      cfg.RecordingLimit,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("voice engine init failed: %w", err)
	}

	// Report which backend is actually serving sessions.
	cfg.TransportMode = transport.resolvedMode
	cfg.ChatMode = chatMode

	api := httpapi.New(cfg, httpapi.Deps{
		Engine:     engine,
		Sessions:   sessions,
		Recordings: store,
		Phone:      phoneSettings,
		Workspace:  ws,
		Metrics:    metrics,
		Chat:       chat.NewService(chatModel, registry),
	})

	cleanup := func() error {
		var errs []string
		engine.Disconnect()
		// Pending recordings are saved before the store goes away.
		engine.Wait()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Sessions:   sessions,
		Engine:     engine,
		Recordings: store,
		Metrics:    metrics,
		Transport: TransportInfo{
			Mode:   transport.resolvedMode,
			Detail: transport.detail,
		},
		ChatMode: chatMode,
		Cleanup:  cleanup,
	}, nil
}
