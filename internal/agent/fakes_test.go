package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/events"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/memory"
)

var errDown = errors.New("service unavailable")

type fakeClassifier struct {
	classification classifier.Classification
	reply          classifier.Reply

	// classifyErrs is consumed one entry per call; then calls succeed.
	classifyErrs []error
	replyErr     error
	summary      string

	classifyCalls  int
	replyCalls     int
	summarizeCalls int
	backgrounds    []string
	params         []classifier.ResponseParams
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		classification: classifier.Classification{
			Category:    classifier.CategoryBilling,
			Urgency:     classifier.UrgencyHigh,
			Sentiment:   classifier.SentimentNegative,
			Reasoning:   "customer reports a duplicate charge",
			KeyEntities: []string{"charge"},
		},
		reply: classifier.Reply{
			Text:             "Sorry about the double charge, we have started a refund.",
			Tone:             "empathetic",
			SuggestedActions: []string{"issue refund"},
		},
		summary: "Customer had a duplicate charge refunded.",
	}
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, background string) (classifier.Classification, error) {
	f.classifyCalls++
	f.backgrounds = append(f.backgrounds, background)
	if len(f.classifyErrs) > 0 {
		err := f.classifyErrs[0]
		f.classifyErrs = f.classifyErrs[1:]
		if err != nil {
			return classifier.Classification{}, err
		}
	}
	return f.classification, nil
}

func (f *fakeClassifier) GenerateResponse(_ context.Context, p classifier.ResponseParams) (classifier.Reply, error) {
	f.replyCalls++
	f.params = append(f.params, p)
	if f.replyErr != nil {
		return classifier.Reply{}, f.replyErr
	}
	return f.reply, nil
}

func (f *fakeClassifier) SummarizeInsight(context.Context, string, string, string) (string, error) {
	f.summarizeCalls++
	return f.summary, nil
}

type fakeMemory struct {
	context    string
	contextErr error
	storeErr   error

	contextCalls []string
	stored       []string
	metadata     []map[string]string
	interactions []memory.Interaction
}

func (f *fakeMemory) ContextFor(_ context.Context, email string) (string, error) {
	f.contextCalls = append(f.contextCalls, email)
	if f.contextErr != nil {
		return "", f.contextErr
	}
	if f.context == "" {
		return memory.NoHistory, nil
	}
	return f.context, nil
}

func (f *fakeMemory) Store(_ context.Context, text string, metadata map[string]string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.stored = append(f.stored, text)
	f.metadata = append(f.metadata, metadata)
	return "mem-1", nil
}

func (f *fakeMemory) StoreInteraction(_ context.Context, in memory.Interaction) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.interactions = append(f.interactions, in)
	return "mem-2", nil
}

type fakeKnowledge struct {
	result  string
	err     error
	queries []knowledge.Query
}

func (f *fakeKnowledge) Search(_ context.Context, q knowledge.Query) (string, error) {
	f.queries = append(f.queries, q)
	return f.result, f.err
}

type fakeSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []events.TicketEvent
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, ev events.TicketEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// steppingClock advances by one millisecond per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func fastRetries(n int) []Option {
	return []Option{
		WithRetries(n),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
	}
}
