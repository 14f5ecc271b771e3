// Package agent runs the ticket-processing pipeline: knowledge and memory
// lookups, classification, response generation and write-back, with an
// audit trail of every attempted stage.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/memory"
	"support-orchestrator/internal/storage"
)

const (
	// NewCustomer replaces the customer context when nothing is known.
	NewCustomer = "This appears to be a new customer with no previous interactions."
	// NoKnowledgeMatch is the knowledge indicator when no document matched.
	NoKnowledgeMatch    = "No knowledge base match"
	KnowledgeReferenced = "Yes - product documentation referenced"

	queryLimit      = 200
	historyLimit    = 100
	historyShown    = 5
	resolutionLimit = 200
	memoryLimit     = 500

	defaultMaxRetries = 2
)

// ErrStateless is returned by operations that need persistence.
var ErrStateless = errors.New("orchestrator has no persistence configured")

// Deps are the collaborators of an Orchestrator. Store and Sinks are optional.
type Deps struct {
	Classifier Classifier
	Memory     Memory
	Knowledge  Knowledge
	Store      Store
	Sinks      []Sink
}

type Orchestrator struct {
	deps       Deps
	now        func() time.Time
	newID      func() string
	maxRetries uint64
	newBackOff func() backoff.BackOff
	summarize  bool
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithRetries sets how many times a failed classification or response call
// is retried. Zero disables retries.
func WithRetries(n int) Option {
	return func(o *Orchestrator) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = uint64(n)
	}
}

func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(o *Orchestrator) { o.newBackOff = newBackOff }
}

// WithInsightSummaries makes memory write-back store an LLM-written summary.
func WithInsightSummaries(enabled bool) Option {
	return func(o *Orchestrator) { o.summarize = enabled }
}

func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("agent: classifier is required")
	case deps.Memory == nil:
		return nil, errors.New("agent: memory is required")
	case deps.Knowledge == nil:
		return nil, errors.New("agent: knowledge is required")
	}
	o := &Orchestrator{
		deps:       deps,
		now:        time.Now,
		newID:      uuid.NewString,
		maxRetries: defaultMaxRetries,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// Stateful reports whether tickets are persisted.
func (o *Orchestrator) Stateful() bool { return o.deps.Store != nil }

// Process handles one ticket end to end. Only validation errors and failures
// of mandatory stages are returned; every other failure degrades its stage.
func (o *Orchestrator) Process(ctx context.Context, in Input) (Result, error) {
	in, err := normalize(in)
	if err != nil {
		return Result{}, err
	}

	r := &ticketRun{in: in, id: o.newID()}
	log.Printf("🎫 [%s] processing ticket from %s", r.id, in.CustomerEmail)

	for _, s := range o.stages() {
		detail, err := o.runStage(ctx, s, r)
		switch {
		case err == nil:
			o.record(ctx, r, s.name, StepCompleted, detail)
		case s.policy == degradable:
			log.Printf("⚠️ [%s] %s degraded: %v", r.id, s.name, err)
			if s.onDegrade != nil {
				s.onDegrade(r)
			}
			r.degraded = append(r.degraded, s.name)
			o.record(ctx, r, s.name, StepDegraded, s.fallback)
		default:
			log.Printf("❌ [%s] %s failed: %v", r.id, s.name, err)
			o.record(ctx, r, s.name, StepFailed, s.fallback)
			return Result{}, &StageError{Stage: s.name, Err: err}
		}
	}

	if o.deps.Store != nil {
		if t, err := o.deps.Store.GetTicket(ctx, r.id); err != nil {
			log.Printf("⚠️ [%s] reload ticket: %v", r.id, err)
		} else {
			r.ticket = &t
		}
	}
	log.Printf("✅ [%s] ticket processed (%s, %s)", r.id, r.classification.Category, r.classification.Urgency)
	return r.result(), nil
}

// Classify classifies a message without processing it as a ticket. Knowledge
// is used as context when available.
func (o *Orchestrator) Classify(ctx context.Context, message string) (classifier.Classification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return classifier.Classification{}, &ValidationError{Field: "message", Reason: "is required"}
	}
	background, err := o.deps.Knowledge.Search(ctx, knowledge.Query{Text: truncate(message, queryLimit)})
	if err != nil {
		log.Printf("⚠️ classify: knowledge search skipped: %v", err)
		background = ""
	}

	var c classifier.Classification
	_, err = o.attempt(ctx, stageClassify, func() (string, error) {
		var err error
		c, err = o.deps.Classifier.Classify(ctx, message, background)
		return "", err
	})
	if err != nil {
		return classifier.Classification{}, &StageError{Stage: stageClassify, Err: err}
	}
	return c, nil
}

// CustomerInsights returns what is known about a customer locally and in memory.
func (o *Orchestrator) CustomerInsights(ctx context.Context, email string) (CustomerInsights, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return CustomerInsights{}, err
	}
	out := CustomerInsights{Email: email, TicketHistory: []storage.Ticket{}}

	if o.deps.Store != nil {
		in, err := o.deps.Store.GetInsight(ctx, email)
		switch {
		case err == nil:
			out.Local = &in
		case !errors.Is(err, storage.ErrNotFound):
			return CustomerInsights{}, err
		}
		if out.TicketHistory, err = o.deps.Store.CustomerTickets(ctx, email, "", historyLimit); err != nil {
			return CustomerInsights{}, err
		}
	}

	out.Memories, err = o.deps.Memory.ContextFor(ctx, email)
	if err != nil {
		log.Printf("⚠️ insights for %s: memory unavailable: %v", email, err)
		out.Memories = memory.NoHistory
	}
	return out, nil
}

// TicketLogs returns the persisted processing log of a ticket.
func (o *Orchestrator) TicketLogs(ctx context.Context, ticketID string) ([]storage.ProcessingLog, error) {
	if o.deps.Store == nil {
		return nil, ErrStateless
	}
	return o.deps.Store.Logs(ctx, ticketID)
}

// record appends a step. Timestamps never go backwards within a ticket.
func (o *Orchestrator) record(ctx context.Context, r *ticketRun, step string, status StepStatus, details string) {
	ts := o.now().UTC()
	if n := len(r.steps); n > 0 && ts.Before(r.steps[n-1].Timestamp) {
		ts = r.steps[n-1].Timestamp
	}
	r.steps = append(r.steps, ProcessingStep{Step: step, Status: status, Details: details, Timestamp: ts})
	log.Printf("[%s] %s: %s - %s", r.id, step, status, details)

	if o.deps.Store == nil {
		return
	}
	err := o.deps.Store.AppendLog(ctx, storage.ProcessingLog{
		TicketID:  r.id,
		Step:      step,
		Status:    string(status),
		Details:   details,
		Timestamp: ts,
	})
	if err != nil {
		log.Printf("⚠️ [%s] processing log not persisted: %v", r.id, err)
	}
}

func normalize(in Input) (Input, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return Input{}, &ValidationError{Field: "message", Reason: "is required"}
	}
	email, err := normalizeEmail(in.CustomerEmail)
	if err != nil {
		return Input{}, err
	}
	in.CustomerEmail = email
	in.Subject = strings.TrimSpace(in.Subject)
	in.WorkspaceID = strings.TrimSpace(in.WorkspaceID)
	return in, nil
}

// normalizeEmail trims and lower-cases a bare address so that local history
// and remote memory see the same customer key.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &ValidationError{Field: "customer_email", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", &ValidationError{Field: "customer_email", Reason: fmt.Sprintf("%q is not a valid email address", email)}
	}
	return strings.ToLower(addr.Address), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
