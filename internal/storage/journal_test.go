package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"support-orchestrator/internal/events"
)

func TestFileJournal_PublishAndLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "audit", "tickets.jsonl")
	j, err := NewFileJournal(p)
	if err != nil {
		t.Fatalf("init journal: %v", err)
	}

	ev1 := events.TicketEvent{TicketID: "1", CustomerEmail: "a@b.com", Category: "billing", ProcessedAt: time.Unix(1, 0).UTC()}
	ev2 := events.TicketEvent{TicketID: "2", CustomerEmail: "c@d.com", Category: "technical", ProcessedAt: time.Unix(2, 0).UTC()}
	for _, ev := range []events.TicketEvent{ev1, ev2} {
		if err := j.Publish(context.Background(), ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	// a corrupt line is skipped
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()

	got, err := j.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].TicketID != "1" || got[1].Category != "technical" || !got[1].ProcessedAt.Equal(ev2.ProcessedAt) {
		t.Fatalf("unexpected events: %+v", got)
	}
}
