// Package app assembles the orchestrator and its collaborators from
// configuration for the command binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"support-orchestrator/internal/agent"
	"support-orchestrator/internal/analytics"
	"support-orchestrator/internal/auth"
	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/config"
	"support-orchestrator/internal/events"
	"support-orchestrator/internal/gmail"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/letta"
	"support-orchestrator/internal/llm"
	"support-orchestrator/internal/memory"
	"support-orchestrator/internal/scheduler"
	"support-orchestrator/internal/storage"
	"support-orchestrator/internal/telegram"
)

type reporter interface {
	SendReport(ctx context.Context, text string) error
}

type App struct {
	Config       *config.Config
	Orchestrator *agent.Orchestrator
	Knowledge    *knowledge.Client
	// Store is nil for a stateless build.
	Store   *storage.SQLiteStore
	Journal *storage.FileJournal

	reporter reporter
	now      func() time.Time
	closers  []func() error
}

// Build wires every configured collaborator. Optional sinks that fail to
// initialize are logged and skipped.
func Build(cfg *config.Config, stateful bool) (*App, error) {
	a := &App{Config: cfg, now: time.Now}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	lc := letta.NewClient(cfg.LettaBaseURL, cfg.LettaAPIKey, cfg.LettaAgentID)
	if !lc.Configured() {
		log.Printf("⚠️ LETTA_API_KEY is not set: memory and knowledge stages will degrade")
	}

	var opts []knowledge.Option
	deps := agent.Deps{
		Classifier: classifier.New(llmClient),
		Memory:     memory.New(lc),
	}
	if stateful {
		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
		deps.Store = store
		opts = append(opts, knowledge.WithCatalog(store))
		log.Printf("💾 Ticket database: %s", cfg.DBPath)
	}
	a.Knowledge = knowledge.New(lc, opts...)
	deps.Knowledge = a.Knowledge
	deps.Sinks = a.sinks()

	a.Orchestrator, err = agent.New(deps,
		agent.WithRetries(cfg.LLMMaxRetries),
		agent.WithInsightSummaries(cfg.SummarizeInsights),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) sinks() []agent.Sink {
	cfg := a.Config
	var sinks []agent.Sink

	if len(cfg.KafkaBrokers) > 0 {
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTicketsTopic)
		a.closers = append(a.closers, p.Close)
		sinks = append(sinks, p)
		log.Printf("📨 Publishing ticket events to kafka topic %s", cfg.KafkaTicketsTopic)
	}

	if cfg.TelegramBotToken != "" {
		n, err := telegram.NewNotifier(cfg.TelegramBotToken, cfg.TelegramEscalationChatID)
		if err != nil {
			log.Printf("failed to init telegram notifier: %v", err)
		} else {
			a.reporter = n
			sinks = append(sinks, n)
		}
	}

	if cfg.AuditLogPath != "" {
		j, err := storage.NewFileJournal(cfg.AuditLogPath)
		if err != nil {
			log.Printf("failed to init ticket journal: %v", err)
		} else {
			a.Journal = j
			sinks = append(sinks, j)
		}
	}
	return sinks
}

// APIAuth loads the REST API key allowlist from API_KEYS_FILE and API_KEYS.
func (a *App) APIAuth() (*auth.Service, error) {
	var repo auth.Repository
	if a.Config.APIKeysFile != "" {
		r, err := auth.NewFileRepository(a.Config.APIKeysFile)
		if err != nil {
			return nil, err
		}
		repo = r
	}
	svc, err := auth.NewWithRepo(repo, a.Config.APIKeys)
	if err != nil {
		return nil, err
	}
	if !svc.Enabled() {
		log.Printf("⚠️ No API keys configured: the REST API is open")
	}
	return svc, nil
}

// Schedule registers the daily report and, when configured, Gmail intake.
func (a *App) Schedule(ctx context.Context, s *scheduler.Scheduler) error {
	if a.Journal != nil {
		if err := s.Add(a.Config.ReportSchedule, "daily-report", a.DailyReport); err != nil {
			return err
		}
	} else {
		log.Printf("ℹ️ AUDIT_LOG_PATH is not set: daily report disabled")
	}

	if !a.Config.GmailEnabled() {
		return nil
	}
	svc, err := gmail.NewService(ctx, a.Config.GmailClientID, a.Config.GmailClientSecret, a.Config.GmailRefreshToken)
	if err != nil {
		return err
	}
	poller := gmail.NewInboxPoller(svc, a.Orchestrator, a.Config.GmailQuery)
	return s.Add(a.Config.GmailPollSchedule, "gmail-poll", func(ctx context.Context) error {
		n, err := poller.Poll(ctx)
		if n > 0 {
			log.Printf("📥 Gmail intake created %d tickets", n)
		}
		return err
	})
}

// DailyReport summarizes today's journaled tickets and sends the summary to
// Telegram, or logs it when no notifier is configured.
func (a *App) DailyReport(ctx context.Context) error {
	if a.Journal == nil {
		return errors.New("daily report needs a ticket journal")
	}
	evs, err := a.Journal.Load()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	summary := analytics.AnalyzeDay(evs, a.now().UTC()).Summary()
	if a.reporter == nil {
		log.Printf("📊 %s", summary)
		return nil
	}
	return a.reporter.SendReport(ctx, summary)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
