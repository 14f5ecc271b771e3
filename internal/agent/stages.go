package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/events"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/memory"
	"support-orchestrator/internal/storage"
)

const (
	stageCreateTicket    = "create_ticket"
	stageSearchKnowledge = "search_knowledge"
	stageRetrieveMemory  = "retrieve_memory"
	stageClassify        = "classify_message"
	stageGenerate        = "generate_response"
	stageStoreMemory     = "store_memory"
	stageUpdateInsights  = "update_insights"
	stagePublishEvent    = "publish_event"
)

type policy int

const (
	// degradable stages log a fixed fallback detail and let processing continue.
	degradable policy = iota
	// mandatory stages abort processing on failure.
	mandatory
)

// stage is one pipeline step. fallback is the fixed detail logged when the
// stage fails; onDegrade resets run state a degraded stage left behind.
type stage struct {
	name      string
	policy    policy
	retry     bool
	fallback  string
	onDegrade func(*ticketRun)
	run       func(context.Context, *ticketRun) (string, error)
}

// ticketRun is the state of one Process call.
type ticketRun struct {
	in             Input
	id             string
	knowledgeCtx   string
	customerCtx    string
	preferences    string
	classification classifier.Classification
	reply          classifier.Reply
	ticket         *storage.Ticket
	steps          []ProcessingStep
	degraded       []string
}

// stages lists the pipeline in order. Each stage feeds the next prompt.
func (o *Orchestrator) stages() []stage {
	var out []stage
	if o.deps.Store != nil {
		out = append(out, stage{
			name:     stageCreateTicket,
			policy:   mandatory,
			fallback: "Ticket record could not be created",
			run:      o.createTicket,
		})
	}
	out = append(out,
		stage{
			name:      stageSearchKnowledge,
			policy:    degradable,
			fallback:  "Knowledge search unavailable",
			onDegrade: clearKnowledge,
			run:       o.searchKnowledge,
		},
		stage{
			name:      stageRetrieveMemory,
			policy:    degradable,
			fallback:  "Memory unavailable (new customer)",
			onDegrade: assumeNewCustomer,
			run:       o.retrieveMemory,
		},
		stage{
			name:     stageClassify,
			policy:   mandatory,
			retry:    true,
			fallback: "Classification failed",
			run:      o.classify,
		},
		stage{
			name:     stageGenerate,
			policy:   mandatory,
			retry:    true,
			fallback: "Response generation failed",
			run:      o.generate,
		},
		stage{
			name:     stageStoreMemory,
			policy:   degradable,
			fallback: "Memory storage skipped",
			run:      o.storeMemory,
		},
	)
	if o.deps.Store != nil {
		out = append(out, stage{
			name:     stageUpdateInsights,
			policy:   degradable,
			fallback: "Local profile update skipped",
			run:      o.updateInsights,
		})
	}
	if len(o.deps.Sinks) > 0 {
		out = append(out, stage{
			name:     stagePublishEvent,
			policy:   degradable,
			fallback: "Event delivery incomplete",
			run:      o.publishEvent,
		})
	}
	return out
}

func clearKnowledge(r *ticketRun) { r.knowledgeCtx = "" }

func assumeNewCustomer(r *ticketRun) { r.customerCtx = NewCustomer }

func (o *Orchestrator) runStage(ctx context.Context, s stage, r *ticketRun) (string, error) {
	fn := func() (string, error) { return s.run(ctx, r) }
	if s.retry {
		return o.attempt(ctx, s.name, fn)
	}
	detail, err := fn()
	return detail, unwrapPermanent(err)
}

// attempt retries fn with backoff. Context errors and errors wrapped with
// backoff.Permanent are returned immediately.
func (o *Orchestrator) attempt(ctx context.Context, name string, fn func() (string, error)) (string, error) {
	if o.maxRetries == 0 {
		detail, err := fn()
		return detail, unwrapPermanent(err)
	}
	var detail string
	op := func() error {
		d, err := fn()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		detail = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logRetry(name, err, wait)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), o.maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", unwrapPermanent(err)
	}
	return detail, nil
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (o *Orchestrator) createTicket(ctx context.Context, r *ticketRun) (string, error) {
	t, err := o.deps.Store.CreateTicket(ctx, r.id, r.in.CustomerEmail, r.in.Subject, r.in.Message)
	if err != nil {
		return "", err
	}
	r.ticket = &t
	return fmt.Sprintf("Ticket %s created", r.id), nil
}

func (o *Orchestrator) searchKnowledge(ctx context.Context, r *ticketRun) (string, error) {
	query := truncate(strings.TrimSpace(r.in.Subject+" "+r.in.Message), queryLimit)
	found, err := o.deps.Knowledge.Search(ctx, knowledge.Query{Text: query})
	if err != nil {
		return "", err
	}
	r.knowledgeCtx = found
	if found == "" {
		return "No matching knowledge found", nil
	}
	return "Found relevant product documentation", nil
}

// retrieveMemory prefers local ticket history; remote memory is only asked
// about customers without a local record.
func (o *Orchestrator) retrieveMemory(ctx context.Context, r *ticketRun) (string, error) {
	if o.deps.Store != nil {
		if history, n := o.localHistory(ctx, r); n > 0 {
			r.customerCtx = history
			return fmt.Sprintf("Found %d previous tickets", n), nil
		}
	}

	remote, err := o.deps.Memory.ContextFor(ctx, r.in.CustomerEmail)
	if err != nil {
		return "", err
	}
	if remote == "" || remote == memory.NoHistory {
		r.customerCtx = NewCustomer
		return "No previous history found (new customer)", nil
	}
	r.customerCtx = remote
	return "Found customer history in memory", nil
}

func (o *Orchestrator) localHistory(ctx context.Context, r *ticketRun) (string, int) {
	tickets, err := o.deps.Store.CustomerTickets(ctx, r.in.CustomerEmail, r.id, historyLimit)
	if err != nil {
		logStoreError(r.id, "local history", err)
		return "", 0
	}
	if len(tickets) == 0 {
		return "", 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous interactions (%d found):", len(tickets))
	for i, t := range tickets {
		if i == historyShown {
			break
		}
		category := t.Category
		if category == "" {
			category = "unclassified"
		}
		title := t.Subject
		if title == "" {
			title = truncate(t.Message, 50)
		}
		fmt.Fprintf(&b, "\n- %s: %s issue (%s urgency) - %q", t.CreatedAt.Format(time.RFC3339), category, orNA(t.Urgency), title)
	}

	insight, err := o.deps.Store.GetInsight(ctx, r.in.CustomerEmail)
	switch {
	case err == nil:
		if insight.HistorySummary != "" {
			b.WriteString("\n\nProfile: " + insight.HistorySummary)
		}
		r.preferences = insight.Preferences
	case !errors.Is(err, storage.ErrNotFound):
		logStoreError(r.id, "insight", err)
	}
	return b.String(), len(tickets)
}

func (o *Orchestrator) classify(ctx context.Context, r *ticketRun) (string, error) {
	c, err := o.deps.Classifier.Classify(ctx, r.in.Message, r.customerCtx+"\n\n"+r.knowledgeCtx)
	if err != nil {
		return "", err
	}
	if o.deps.Store != nil {
		err := o.deps.Store.MarkClassified(ctx, r.id, storage.Classified{
			Category:  string(c.Category),
			Urgency:   string(c.Urgency),
			Sentiment: string(c.Sentiment),
			Reasoning: c.Reasoning,
		})
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("persist classification: %w", err))
		}
	}
	r.classification = c
	return fmt.Sprintf("Category: %s, Urgency: %s, Sentiment: %s", c.Category, c.Urgency, c.Sentiment), nil
}

func (o *Orchestrator) generate(ctx context.Context, r *ticketRun) (string, error) {
	reply, err := o.deps.Classifier.GenerateResponse(ctx, classifier.ResponseParams{
		Message:             r.in.Message,
		Classification:      r.classification,
		CustomerHistory:     r.customerCtx,
		CustomerPreferences: r.preferences,
		AdditionalContext:   r.knowledgeCtx,
	})
	if err != nil {
		return "", err
	}
	if o.deps.Store != nil {
		if err := o.deps.Store.MarkProcessed(ctx, r.id, reply.Text, reply.SuggestedActions); err != nil {
			return "", backoff.Permanent(fmt.Errorf("persist response: %w", err))
		}
	}
	r.reply = reply
	return "Tone: " + reply.Tone, nil
}

func (o *Orchestrator) storeMemory(ctx context.Context, r *ticketRun) (string, error) {
	c := r.classification
	if o.summarize {
		previous := r.customerCtx
		if previous == NewCustomer {
			previous = ""
		}
		interaction := fmt.Sprintf("Subject: %s\nMessage: %s\nClassification: %s\nResolution: %s",
			orNA(r.in.Subject), r.in.Message, c.Category, truncate(r.reply.Text, resolutionLimit))
		summary, err := o.deps.Classifier.SummarizeInsight(ctx, r.in.CustomerEmail, interaction, previous)
		if err != nil {
			return "", fmt.Errorf("summarize insight: %w", err)
		}
		_, err = o.deps.Memory.StoreInteraction(ctx, memory.Interaction{
			TicketID:       r.id,
			CustomerEmail:  r.in.CustomerEmail,
			Summary:        summary,
			Classification: string(c.Category),
			Resolution:     truncate(r.reply.Text, memoryLimit),
		})
		if err != nil {
			return "", err
		}
		return "Customer insights stored for future interactions", nil
	}

	subject := r.in.Subject
	if subject == "" {
		subject = "Support ticket"
	}
	summary := fmt.Sprintf("Customer: %s\n%s: %s issue (%s). Resolution: %s...",
		r.in.CustomerEmail, subject, c.Category, c.Urgency, truncate(r.reply.Text, resolutionLimit))
	_, err := o.deps.Memory.Store(ctx, summary, map[string]string{
		"customer_email": r.in.CustomerEmail,
		"classification": string(c.Category),
		"urgency":        string(c.Urgency),
		"ticket_id":      r.id,
		"workspace_id":   r.in.WorkspaceID,
	})
	if err != nil {
		return "", err
	}
	return "Interaction saved for future reference", nil
}

func (o *Orchestrator) updateInsights(ctx context.Context, r *ticketRun) (string, error) {
	_, err := o.deps.Store.UpsertInsight(ctx, storage.InsightUpdate{
		Email:          r.in.CustomerEmail,
		HistorySummary: fmt.Sprintf("Last interaction: %s ticket (%s urgency)", r.classification.Category, r.classification.Urgency),
	})
	if err != nil {
		return "", err
	}
	return "Local profile updated", nil
}

// publishEvent delivers to every sink even if one fails.
func (o *Orchestrator) publishEvent(ctx context.Context, r *ticketRun) (string, error) {
	ev := r.event(o.now().UTC(), o.deps.Store != nil)
	var (
		delivered []string
		errs      []error
	)
	for _, s := range o.deps.Sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		delivered = append(delivered, s.Name())
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "Published to " + strings.Join(delivered, ", "), nil
}

func (r *ticketRun) event(at time.Time, stateful bool) events.TicketEvent {
	return events.TicketEvent{
		TicketID:         r.id,
		CustomerEmail:    r.in.CustomerEmail,
		Subject:          r.in.Subject,
		Message:          r.in.Message,
		Category:         string(r.classification.Category),
		Urgency:          string(r.classification.Urgency),
		Sentiment:        string(r.classification.Sentiment),
		Response:         r.reply.Text,
		Tone:             r.reply.Tone,
		SuggestedActions: r.reply.SuggestedActions,
		DegradedStages:   append([]string(nil), r.degraded...),
		Stateful:         stateful,
		ProcessedAt:      at,
	}
}

func (r *ticketRun) result() Result {
	used := NoKnowledgeMatch
	if r.knowledgeCtx != "" {
		used = KnowledgeReferenced
	}
	actions := r.reply.SuggestedActions
	if actions == nil {
		actions = []string{}
	}
	return Result{
		TicketID:       r.id,
		Ticket:         r.ticket,
		Classification: r.classification,
		Response: ResponseDetails{
			Text:             r.reply.Text,
			Tone:             r.reply.Tone,
			SuggestedActions: actions,
		},
		Context: ContextDetails{
			CustomerHistory:  r.customerCtx,
			KnowledgeUsed:    used,
			KnowledgeContext: r.knowledgeCtx,
		},
		ProcessingSteps: r.steps,
	}
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}
