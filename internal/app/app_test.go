package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"support-orchestrator/internal/config"
	"support-orchestrator/internal/events"
	"support-orchestrator/internal/scheduler"
)

type fakeReporter struct{ sent []string }

func (f *fakeReporter) SendReport(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DBPath:         filepath.Join(dir, "support.db"),
		LLMProvider:    config.ProviderOpenAI,
		OpenAIAPIKey:   "sk-test",
		OpenAIModel:    "gpt-4o-mini",
		LettaBaseURL:   "http://127.0.0.1:1",
		AuditLogPath:   filepath.Join(dir, "tickets.jsonl"),
		ReportSchedule: "0 21 * * *",
	}
}

func TestBuild_Stateful(t *testing.T) {
	a, err := Build(testConfig(t), true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if a.Store == nil || a.Journal == nil || !a.Orchestrator.Stateful() {
		t.Fatalf("stateful build missing store or journal: %+v", a)
	}
}

func TestBuild_Stateless(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditLogPath = ""
	a, err := Build(cfg, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if a.Store != nil || a.Orchestrator.Stateful() {
		t.Fatalf("stateless build must not open a store")
	}
	if err := a.DailyReport(context.Background()); err == nil {
		t.Fatalf("report without a journal should fail")
	}
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = "acme"
	if _, err := Build(cfg, false); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestDailyReport(t *testing.T) {
	a, err := Build(testConfig(t), false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	day := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return day }
	rep := &fakeReporter{}
	a.reporter = rep

	evs := []events.TicketEvent{
		{TicketID: "t-1", CustomerEmail: "a@example.com", Category: "billing", Urgency: "critical", ProcessedAt: day.Add(-time.Hour)},
		{TicketID: "t-0", CustomerEmail: "b@example.com", Category: "technical", Urgency: "low", ProcessedAt: day.Add(-48 * time.Hour)},
	}
	for _, ev := range evs {
		if err := a.Journal.Publish(context.Background(), ev); err != nil {
			t.Fatalf("journal: %v", err)
		}
	}

	if err := a.DailyReport(context.Background()); err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.sent) != 1 {
		t.Fatalf("want one report, got %d", len(rep.sent))
	}
	if !strings.Contains(rep.sent[0], "Tickets processed: 1") || !strings.Contains(rep.sent[0], "Escalated (high/critical): 1") {
		t.Fatalf("unexpected report:\n%s", rep.sent[0])
	}
}

func TestSchedule(t *testing.T) {
	a, err := Build(testConfig(t), false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if err := a.Schedule(context.Background(), scheduler.New()); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	a.Config.ReportSchedule = "whenever"
	if err := a.Schedule(context.Background(), scheduler.New()); err == nil {
		t.Fatalf("expected error for a bad report schedule")
	}
}

func TestAPIAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKeys = []string{"env-key"}
	cfg.APIKeysFile = filepath.Join(t.TempDir(), "api_keys.json")
	a, err := Build(cfg, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	svc, err := a.APIAuth()
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if _, ok := svc.Lookup("env-key"); !ok || !svc.Enabled() {
		t.Fatalf("env key not loaded")
	}
}
