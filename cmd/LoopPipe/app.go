package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BTreeMap/LoopPipe/internal/actions"
	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/api"
	"github.com/BTreeMap/LoopPipe/internal/config"
	"github.com/BTreeMap/LoopPipe/internal/events"
	"github.com/BTreeMap/LoopPipe/internal/genai"
	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/messaging"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/pipeline"
	"github.com/BTreeMap/LoopPipe/internal/smartlink"
	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/BTreeMap/LoopPipe/internal/twilio"
	"github.com/BTreeMap/LoopPipe/internal/whatsapp"
)

// app is the wired pipeline shared by serve and trigger.
type app struct {
	store        store.Store
	bus          *events.Bus
	links        *smartlink.Service
	personalizer *agent.PersonalizationAgent
	safety       *agent.TrustSafetyAgent
	pipeline     *pipeline.Pipeline
}

// ensureDirectoriesExist creates the parent directory of a file-based store.
func ensureDirectoriesExist(dsn string) error {
	if store.DetectKind(dsn) != store.KindSQLite {
		return nil
	}
	dir := filepath.Dir(dsn)
	slog.Debug("ensureDirectoriesExist: creating state directory", "state_dir", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return nil
}

func buildApp(cfg *config.Config, st store.Store, logger *slog.Logger) (*app, error) {
	bus := events.NewBus(events.WithMaxHistory(cfg.Events.MaxHistory), events.WithLogger(logger))
	if cfg.Events.Persist {
		bus.Subscribe(models.EventWildcard, store.NewEventSink(st))
	}

	pOpts, err := buildPersonalizationOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	personalizer, err := agent.NewPersonalizationAgent(pOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build personalization agent: %w", err)
	}
	safety := agent.NewTrustSafetyAgent(buildSafetyOptions(cfg, logger)...)

	links := smartlink.NewService(st, smartlink.WithBaseURL(cfg.Server.BaseURL), smartlink.WithPublisher(bus))
	p := pipeline.New(bus,
		loops.NewDefaultRegistry(links, personalizer, loops.WithLogger(logger)),
		actions.NewDefaultOrchestrator(actions.WithLogger(logger)),
		safety,
		pipeline.WithLogger(logger),
	)
	return &app{
		store:        st,
		bus:          bus,
		links:        links,
		personalizer: personalizer,
		safety:       safety,
		pipeline:     p,
	}, nil
}

// buildPersonalizationOptions attaches a GenAI copywriter when a provider is configured.
func buildPersonalizationOptions(cfg *config.Config, logger *slog.Logger) ([]agent.PersonalizationOption, error) {
	opts := []agent.PersonalizationOption{
		agent.WithPersonalizationSLA(cfg.Agents.PersonalizationSLA),
		agent.WithPersonalizationLogger(logger),
	}
	if cfg.GenAI.Provider == "" {
		return opts, nil
	}
	gen, err := genai.NewTextGenerator(cfg.GenAI.Provider, buildGenAIOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s copywriter: %w", cfg.GenAI.Provider, err)
	}
	slog.Info("buildPersonalizationOptions: GenAI copywriter enabled", "provider", gen.Provider())
	return append(opts, agent.WithCopywriter(genai.NewCopywriter(gen, cfg.GenAI.MaxCopyLength))), nil
}

func buildGenAIOptions(cfg *config.Config) []genai.Option {
	var opts []genai.Option
	if cfg.GenAI.APIKey != "" {
		opts = append(opts, genai.WithAPIKey(cfg.GenAI.APIKey))
	}
	if cfg.GenAI.Model != "" {
		opts = append(opts, genai.WithModel(cfg.GenAI.Model))
	}
	if cfg.GenAI.MaxTokens > 0 {
		opts = append(opts, genai.WithMaxTokens(int64(cfg.GenAI.MaxTokens)))
	}
	return append(opts, genai.WithTemperature(cfg.GenAI.Temperature))
}

func buildSafetyOptions(cfg *config.Config, logger *slog.Logger) []agent.SafetyOption {
	return []agent.SafetyOption{
		agent.WithLedger(agent.NewMemoryLedger(cfg.Safety.RateWindow)),
		agent.WithMaxAccountsPerDevice(cfg.Safety.MaxAccountsPerDevice),
		agent.WithInviteRateLimit(cfg.Safety.InviteRateLimit, cfg.Safety.RateWindow),
		agent.WithDisposableDomains(cfg.Safety.DisposableDomains),
		agent.WithSafetySLA(cfg.Agents.TrustSafetySLA),
		agent.WithSafetyLogger(logger),
	}
}

func buildTwilioOptions(cfg *config.Config) []twilio.Option {
	var opts []twilio.Option
	if cfg.Delivery.Twilio.AccountSID != "" {
		opts = append(opts, twilio.WithAccountSID(cfg.Delivery.Twilio.AccountSID))
	}
	if cfg.Delivery.Twilio.AuthToken != "" {
		opts = append(opts, twilio.WithAuthToken(cfg.Delivery.Twilio.AuthToken))
	}
	if cfg.Delivery.Twilio.From != "" {
		opts = append(opts, twilio.WithFrom(cfg.Delivery.Twilio.From))
	}
	return opts
}

func buildWhatsAppOptions(cfg *config.Config) []whatsapp.Option {
	var opts []whatsapp.Option
	if cfg.Delivery.WhatsApp.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(cfg.Delivery.WhatsApp.QROutput))
	}
	if cfg.Delivery.WhatsApp.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	if cfg.Delivery.WhatsApp.DBDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(cfg.Delivery.WhatsApp.DBDSN))
	}
	return opts
}

// buildRouter maps delivery channels onto the configured backend. Channels without a backend,
// and everything under the log service, are written to the log.
func buildRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*messaging.Router, error) {
	router := messaging.NewRouter(messaging.NewLogService(logger))
	switch cfg.Delivery.Service {
	case "twilio":
		client, err := twilio.NewClient(buildTwilioOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		router.Register(messaging.ChannelSMS, messaging.NewTwilioService(client, messaging.ChannelSMS))
		router.Register(messaging.ChannelWhatsApp, messaging.NewTwilioService(client, messaging.ChannelWhatsApp))
	case "whatsapp":
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		router.Register(messaging.ChannelWhatsApp, messaging.NewWhatsAppService(client))
	}
	return router, nil
}

func buildAPIOptions(cfg *config.Config, a *app, logger *slog.Logger) []api.Option {
	return []api.Option{
		api.WithAddr(cfg.Server.Addr),
		api.WithDedup(a.store),
		api.WithEventLog(a.store),
		api.WithHealthCheckers(a.personalizer, a.safety),
		api.WithLogger(logger),
	}
}

func buildOutboxOptions(cfg *config.Config) []store.SenderOption {
	return []store.SenderOption{
		store.WithPollInterval(cfg.Delivery.PollInterval),
		store.WithMaxAttempts(cfg.Delivery.MaxAttempts),
	}
}
