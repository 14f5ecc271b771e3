package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/storage"
)

type harness struct {
	classifier *fakeClassifier
	memory     *fakeMemory
	knowledge  *fakeKnowledge
	store      *storage.SQLiteStore
}

func newHarness(t *testing.T, stateful bool) *harness {
	t.Helper()
	h := &harness{
		classifier: newFakeClassifier(),
		memory:     &fakeMemory{},
		knowledge:  &fakeKnowledge{result: "Relevant Product Knowledge:\n[Knowledge 1]\nRefunds take 3-5 days."},
	}
	if stateful {
		s, err := storage.Open(filepath.Join(t.TempDir(), "support.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		h.store = s
	}
	return h
}

func (h *harness) orchestrator(t *testing.T, sinks []Sink, opts ...Option) *Orchestrator {
	t.Helper()
	deps := Deps{Classifier: h.classifier, Memory: h.memory, Knowledge: h.knowledge, Sinks: sinks}
	if h.store != nil {
		deps.Store = h.store
	}
	n := 0
	base := []Option{
		WithClock(steppingClock()),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("ticket-%d", n) }),
	}
	base = append(base, fastRetries(2)...)
	o, err := New(deps, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

var example = Input{Message: "I was charged twice this month", CustomerEmail: "jane@acme.com"}

func stepNames(steps []ProcessingStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Step
	}
	return out
}

func findStep(t *testing.T, steps []ProcessingStep, name string) ProcessingStep {
	t.Helper()
	for _, s := range steps {
		if s.Step == name {
			return s
		}
	}
	t.Fatalf("step %s not recorded in %v", name, stepNames(steps))
	return ProcessingStep{}
}

func TestProcess_StatelessExample(t *testing.T) {
	h := newHarness(t, false)
	res, err := h.orchestrator(t, nil).Process(context.Background(), example)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if res.Classification.Category != classifier.CategoryBilling || !res.Classification.Urgency.Valid() {
		t.Fatalf("classification = %+v", res.Classification)
	}
	if res.Response.Text == "" || res.Response.SuggestedActions == nil {
		t.Fatalf("response = %+v", res.Response)
	}
	if res.Context.CustomerHistory != NewCustomer {
		t.Fatalf("customer history = %q", res.Context.CustomerHistory)
	}
	if res.Context.KnowledgeUsed != KnowledgeReferenced {
		t.Fatalf("knowledge used = %q", res.Context.KnowledgeUsed)
	}
	if res.Ticket != nil {
		t.Fatal("stateless run must not return a ticket record")
	}

	want := []string{stageSearchKnowledge, stageRetrieveMemory, stageClassify, stageGenerate, stageStoreMemory}
	if got := stepNames(res.ProcessingSteps); !reflect.DeepEqual(got, want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
	for _, s := range res.ProcessingSteps {
		if s.Status != StepCompleted {
			t.Fatalf("step %s = %s", s.Step, s.Status)
		}
	}

	if got := h.knowledge.queries[0].Text; got != example.Message {
		t.Fatalf("knowledge query = %q", got)
	}
	if bg := h.classifier.backgrounds[0]; !strings.Contains(bg, NewCustomer) || !strings.Contains(bg, "Refunds take") {
		t.Fatalf("classification background = %q", bg)
	}
	if p := h.classifier.params[0]; p.AdditionalContext != h.knowledge.result || p.Classification.Category != classifier.CategoryBilling {
		t.Fatalf("response params = %+v", p)
	}
	if len(h.memory.stored) != 1 || h.memory.metadata[0]["customer_email"] != "jane@acme.com" {
		t.Fatalf("memory write-back = %v %v", h.memory.stored, h.memory.metadata)
	}
}

func TestProcess_KnowledgeQueryTruncated(t *testing.T) {
	h := newHarness(t, false)
	in := Input{Subject: "Billing", Message: strings.Repeat("x", 300), CustomerEmail: "a@b.com"}
	if _, err := h.orchestrator(t, nil).Process(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	q := h.knowledge.queries[0].Text
	if len([]rune(q)) != queryLimit || !strings.HasPrefix(q, "Billing x") {
		t.Fatalf("query = %q (%d)", q, len(q))
	}
}

func TestProcess_NoKnowledgeMatch(t *testing.T) {
	h := newHarness(t, false)
	h.knowledge.result = ""
	res, err := h.orchestrator(t, nil).Process(context.Background(), example)
	if err != nil {
		t.Fatal(err)
	}
	if res.Context.KnowledgeUsed != NoKnowledgeMatch {
		t.Fatalf("knowledge used = %q", res.Context.KnowledgeUsed)
	}
	if s := findStep(t, res.ProcessingSteps, stageSearchKnowledge); s.Status != StepCompleted || s.Details != "No matching knowledge found" {
		t.Fatalf("step = %+v", s)
	}
}

func TestProcess_DegradedDependencies(t *testing.T) {
	tests := []struct {
		name  string
		fail  func(*harness)
		stage string
	}{
		{"memory read", func(h *harness) { h.memory.contextErr = errDown }, stageRetrieveMemory},
		{"knowledge", func(h *harness) { h.knowledge.err = errDown }, stageSearchKnowledge},
		{"memory write", func(h *harness) { h.memory.storeErr = errDown }, stageStoreMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var details []string
			for i := 0; i < 2; i++ {
				h := newHarness(t, false)
				tt.fail(h)
				res, err := h.orchestrator(t, nil).Process(context.Background(), Input{Message: "My invoice is wrong", CustomerEmail: "a@b.com"})
				if err != nil {
					t.Fatalf("degradable failure must not abort: %v", err)
				}
				if res.Response.Text == "" {
					t.Fatal("expected a complete result")
				}
				s := findStep(t, res.ProcessingSteps, tt.stage)
				if s.Status != StepDegraded {
					t.Fatalf("status = %s", s.Status)
				}
				details = append(details, s.Details)
				if len(res.ProcessingSteps) != 5 {
					t.Fatalf("expected one entry per stage, got %v", stepNames(res.ProcessingSteps))
				}
				if tt.stage == stageRetrieveMemory && res.Context.CustomerHistory != NewCustomer {
					t.Fatalf("customer history = %q", res.Context.CustomerHistory)
				}
				if tt.stage == stageSearchKnowledge && res.Context.KnowledgeUsed != NoKnowledgeMatch {
					t.Fatalf("knowledge used = %q", res.Context.KnowledgeUsed)
				}
			}
			if details[0] != details[1] || details[0] == "" {
				t.Fatalf("degraded detail should be stable, got %q", details)
			}
		})
	}
}

func TestProcess_ClassifierFailureLeavesTicketPending(t *testing.T) {
	h := newHarness(t, true)
	h.classifier.classifyErrs = []error{errDown, errDown, errDown}
	o := h.orchestrator(t, nil)

	_, err := o.Process(context.Background(), example)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != stageClassify || !errors.Is(err, errDown) {
		t.Fatalf("expected classify stage error, got %v", err)
	}
	if h.classifier.classifyCalls != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", h.classifier.classifyCalls)
	}
	if h.classifier.replyCalls != 0 || len(h.memory.stored) != 0 {
		t.Fatal("pipeline must stop at the failed mandatory stage")
	}

	ticket, err := h.store.GetTicket(context.Background(), "ticket-1")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Status != storage.StatusPending {
		t.Fatalf("status = %s", ticket.Status)
	}

	logs, err := o.TicketLogs(context.Background(), "ticket-1")
	if err != nil {
		t.Fatal(err)
	}
	last := logs[len(logs)-1]
	if last.Step != stageClassify || last.Status != string(StepFailed) {
		t.Fatalf("last log = %+v", last)
	}
	if logs[0].Step != stageCreateTicket {
		t.Fatalf("first log = %+v", logs[0])
	}
}

func TestProcess_ResponseFailureLeavesTicketClassified(t *testing.T) {
	h := newHarness(t, true)
	h.classifier.replyErr = errDown
	_, err := h.orchestrator(t, nil, WithRetries(0)).Process(context.Background(), example)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != stageGenerate {
		t.Fatalf("expected generate stage error, got %v", err)
	}
	if h.classifier.replyCalls != 1 {
		t.Fatalf("retries disabled, got %d calls", h.classifier.replyCalls)
	}
	ticket, _ := h.store.GetTicket(context.Background(), "ticket-1")
	if ticket.Status != storage.StatusClassified || ticket.AIResponse != "" {
		t.Fatalf("ticket = %+v", ticket)
	}
}

func TestProcess_InvalidClassificationIsSurfaced(t *testing.T) {
	h := newHarness(t, false)
	bad := fmt.Errorf("%w: category %q", classifier.ErrInvalidClassification, "shipping")
	h.classifier.classifyErrs = []error{bad, bad, bad}
	_, err := h.orchestrator(t, nil).Process(context.Background(), example)
	if !errors.Is(err, classifier.ErrInvalidClassification) {
		t.Fatalf("expected invalid classification, got %v", err)
	}
}

func TestProcess_RetryRecovers(t *testing.T) {
	h := newHarness(t, false)
	h.classifier.classifyErrs = []error{errDown}
	res, err := h.orchestrator(t, nil).Process(context.Background(), example)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.classifier.classifyCalls != 2 {
		t.Fatalf("calls = %d", h.classifier.classifyCalls)
	}
	if s := findStep(t, res.ProcessingSteps, stageClassify); s.Status != StepCompleted {
		t.Fatalf("step = %+v", s)
	}
}

func TestProcess_ContextErrorsAreNotRetried(t *testing.T) {
	h := newHarness(t, false)
	h.classifier.classifyErrs = []error{context.DeadlineExceeded, context.DeadlineExceeded}
	_, err := h.orchestrator(t, nil).Process(context.Background(), example)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if h.classifier.classifyCalls != 1 {
		t.Fatalf("calls = %d", h.classifier.classifyCalls)
	}
}

func TestProcess_StatefulPersistsAndLocalHistoryWins(t *testing.T) {
	h := newHarness(t, true)
	h.memory.context = "Previous customer interactions (1 found):\n[1] remote note"
	o := h.orchestrator(t, nil)
	ctx := context.Background()

	first, err := o.Process(ctx, Input{Subject: "Invoice", Message: "Wrong amount", CustomerEmail: "jane@acme.com"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Context.CustomerHistory != h.memory.context {
		t.Fatalf("first ticket should fall back to remote memory, got %q", first.Context.CustomerHistory)
	}
	if first.Ticket == nil || first.Ticket.Status != storage.StatusProcessed || first.Ticket.AIResponse == "" {
		t.Fatalf("ticket = %+v", first.Ticket)
	}

	second, err := o.Process(ctx, example)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.memory.contextCalls) != 1 {
		t.Fatalf("remote memory should not be queried when local history exists, calls=%v", h.memory.contextCalls)
	}
	hist := second.Context.CustomerHistory
	if !strings.HasPrefix(hist, "Previous interactions (1 found):") || strings.Contains(hist, "remote note") {
		t.Fatalf("history = %q", hist)
	}
	if !strings.Contains(hist, "billing issue (high urgency)") || !strings.Contains(hist, "Profile: Last interaction: billing ticket (high urgency)") {
		t.Fatalf("history = %q", hist)
	}
	if s := findStep(t, second.ProcessingSteps, stageRetrieveMemory); s.Details != "Found 1 previous tickets" {
		t.Fatalf("detail = %q", s.Details)
	}

	want := []string{stageCreateTicket, stageSearchKnowledge, stageRetrieveMemory, stageClassify, stageGenerate, stageStoreMemory, stageUpdateInsights}
	if got := stepNames(second.ProcessingSteps); !reflect.DeepEqual(got, want) {
		t.Fatalf("steps = %v", got)
	}
	logs, err := o.TicketLogs(ctx, second.TicketID)
	if err != nil || len(logs) != len(want) {
		t.Fatalf("logs = %v, %v", logs, err)
	}

	insight, err := h.store.GetInsight(ctx, "jane@acme.com")
	if err != nil || insight.InteractionCount != 2 {
		t.Fatalf("insight = %+v, %v", insight, err)
	}
}

func TestProcess_EmailIsNormalized(t *testing.T) {
	h := newHarness(t, true)
	o := h.orchestrator(t, nil)
	ctx := context.Background()
	if _, err := o.Process(ctx, Input{Message: "hi", CustomerEmail: "  Jane@ACME.com "}); err != nil {
		t.Fatal(err)
	}
	res, err := o.Process(ctx, Input{Message: "hello again", CustomerEmail: "jane@acme.com"})
	if err != nil {
		t.Fatal(err)
	}
	if h.memory.contextCalls[0] != "jane@acme.com" {
		t.Fatalf("memory lookup = %q", h.memory.contextCalls[0])
	}
	if !strings.HasPrefix(res.Context.CustomerHistory, "Previous interactions (1 found)") {
		t.Fatalf("differently cased email should be the same customer: %q", res.Context.CustomerHistory)
	}
}

func TestProcess_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"empty message", Input{Message: "  ", CustomerEmail: "a@b.com"}, "message"},
		{"missing email", Input{Message: "hi"}, "customer_email"},
		{"bad email", Input{Message: "hi", CustomerEmail: "not-an-email"}, "customer_email"},
		{"display name", Input{Message: "hi", CustomerEmail: "Jane <jane@acme.com>"}, "customer_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			_, err := h.orchestrator(t, nil).Process(context.Background(), tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
			if h.classifier.classifyCalls != 0 || len(h.knowledge.queries) != 0 {
				t.Fatal("no external call may happen before validation")
			}
			tickets, _ := h.store.ListTickets(context.Background(), 10)
			if len(tickets) != 0 {
				t.Fatal("no ticket may be created for invalid input")
			}
		})
	}
}

func TestProcess_StepTimestampsNeverDecrease(t *testing.T) {
	h := newHarness(t, false)
	base := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	ticks := []time.Duration{0, 3, 1, 5, 2, 9, 0}
	i := 0
	clock := func() time.Time {
		d := ticks[i%len(ticks)]
		i++
		return base.Add(d * time.Second)
	}
	res, err := h.orchestrator(t, nil, WithClock(clock)).Process(context.Background(), example)
	if err != nil {
		t.Fatal(err)
	}
	for j := 1; j < len(res.ProcessingSteps); j++ {
		if res.ProcessingSteps[j].Timestamp.Before(res.ProcessingSteps[j-1].Timestamp) {
			t.Fatalf("step %d went back in time: %v", j, res.ProcessingSteps)
		}
	}
}

func TestProcess_PublishesToSinks(t *testing.T) {
	h := newHarness(t, true)
	h.knowledge.err = errDown
	ok := &fakeSink{name: "journal"}
	broken := &fakeSink{name: "kafka", err: errDown}

	res, err := h.orchestrator(t, []Sink{broken, ok}).Process(context.Background(), example)
	if err != nil {
		t.Fatal(err)
	}
	s := findStep(t, res.ProcessingSteps, stagePublishEvent)
	if s.Status != StepDegraded || s.Details != "Event delivery incomplete" {
		t.Fatalf("publish step = %+v", s)
	}
	if len(ok.events) != 1 {
		t.Fatalf("healthy sink should still receive the event, got %d", len(ok.events))
	}
	ev := ok.events[0]
	if ev.TicketID != res.TicketID || ev.Category != "billing" || !ev.Stateful || !ev.Escalated() {
		t.Fatalf("event = %+v", ev)
	}
	if !reflect.DeepEqual(ev.DegradedStages, []string{stageSearchKnowledge}) {
		t.Fatalf("degraded stages = %v", ev.DegradedStages)
	}
}

func TestProcess_InsightSummaries(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.orchestrator(t, nil, WithInsightSummaries(true)).Process(context.Background(), example)
	if err != nil {
		t.Fatal(err)
	}
	if h.classifier.summarizeCalls != 1 || len(h.memory.interactions) != 1 {
		t.Fatalf("summaries=%d interactions=%d", h.classifier.summarizeCalls, len(h.memory.interactions))
	}
	in := h.memory.interactions[0]
	if in.Summary != h.classifier.summary || in.CustomerEmail != "jane@acme.com" || in.Classification != "billing" {
		t.Fatalf("interaction = %+v", in)
	}
}

func TestClassify(t *testing.T) {
	h := newHarness(t, false)
	h.knowledge.err = errDown
	c, err := h.orchestrator(t, nil).Classify(context.Background(), "Where is my invoice?")
	if err != nil {
		t.Fatalf("knowledge failure must not fail classification: %v", err)
	}
	if c.Category != classifier.CategoryBilling || h.classifier.backgrounds[0] != "" {
		t.Fatalf("classification = %+v, background = %q", c, h.classifier.backgrounds[0])
	}

	var verr *ValidationError
	if _, err := h.orchestrator(t, nil).Classify(context.Background(), ""); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCustomerInsights(t *testing.T) {
	h := newHarness(t, true)
	o := h.orchestrator(t, nil)
	ctx := context.Background()
	if _, err := o.Process(ctx, example); err != nil {
		t.Fatal(err)
	}
	h.memory.contextErr = errDown

	got, err := o.CustomerInsights(ctx, "JANE@acme.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.Local == nil || got.Local.InteractionCount != 1 {
		t.Fatalf("local = %+v", got.Local)
	}
	if len(got.TicketHistory) != 1 || got.Memories == "" {
		t.Fatalf("insights = %+v", got)
	}
}

func TestStatelessHasNoLogs(t *testing.T) {
	h := newHarness(t, false)
	if _, err := h.orchestrator(t, nil).TicketLogs(context.Background(), "x"); !errors.Is(err, ErrStateless) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{Memory: &fakeMemory{}, Knowledge: &fakeKnowledge{}}); err == nil {
		t.Fatal("expected error without classifier")
	}
}
