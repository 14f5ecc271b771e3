package agent

import (
	"context"
	"time"

	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/events"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/memory"
	"support-orchestrator/internal/storage"
)

// Classifier produces classifications and replies.
type Classifier interface {
	Classify(ctx context.Context, message, background string) (classifier.Classification, error)
	GenerateResponse(ctx context.Context, p classifier.ResponseParams) (classifier.Reply, error)
	SummarizeInsight(ctx context.Context, email, interaction, previous string) (string, error)
}

// Memory recalls and records customer interactions.
type Memory interface {
	ContextFor(ctx context.Context, email string) (string, error)
	Store(ctx context.Context, text string, metadata map[string]string) (string, error)
	StoreInteraction(ctx context.Context, in memory.Interaction) (string, error)
}

// Knowledge finds product documentation for a query.
type Knowledge interface {
	Search(ctx context.Context, q knowledge.Query) (string, error)
}

// Store is the persistence used by the stateful orchestrator.
type Store interface {
	CreateTicket(ctx context.Context, id, email, subject, message string) (storage.Ticket, error)
	GetTicket(ctx context.Context, id string) (storage.Ticket, error)
	MarkClassified(ctx context.Context, id string, c storage.Classified) error
	MarkProcessed(ctx context.Context, id, response string, actions []string) error
	CustomerTickets(ctx context.Context, email, excludeID string, limit int) ([]storage.Ticket, error)
	GetInsight(ctx context.Context, email string) (storage.CustomerInsight, error)
	UpsertInsight(ctx context.Context, u storage.InsightUpdate) (storage.CustomerInsight, error)
	AppendLog(ctx context.Context, l storage.ProcessingLog) error
	Logs(ctx context.Context, ticketID string) ([]storage.ProcessingLog, error)
}

// Sink receives every successfully processed ticket.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev events.TicketEvent) error
}

type Input struct {
	Message       string `json:"message"`
	CustomerEmail string `json:"customer_email"`
	Subject       string `json:"subject,omitempty"`
	// WorkspaceID tags memory write-back for multi-tenant isolation.
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepDegraded  StepStatus = "degraded"
	StepFailed    StepStatus = "failed"
)

type ProcessingStep struct {
	Step      string     `json:"step"`
	Status    StepStatus `json:"status"`
	Details   string     `json:"details,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type ResponseDetails struct {
	Text             string   `json:"text"`
	Tone             string   `json:"tone"`
	SuggestedActions []string `json:"suggested_actions"`
}

type ContextDetails struct {
	CustomerHistory  string `json:"customer_history"`
	KnowledgeUsed    string `json:"knowledge_used"`
	KnowledgeContext string `json:"knowledge_context,omitempty"`
}

// Result is the outcome of one processed ticket.
type Result struct {
	TicketID        string                    `json:"ticket_id"`
	Ticket          *storage.Ticket           `json:"ticket,omitempty"`
	Classification  classifier.Classification `json:"classification"`
	Response        ResponseDetails           `json:"response"`
	Context         ContextDetails            `json:"context"`
	ProcessingSteps []ProcessingStep          `json:"processing_steps"`
}

// CustomerInsights combines the local profile with remote memory.
type CustomerInsights struct {
	Email         string                   `json:"email"`
	Local         *storage.CustomerInsight `json:"local"`
	Memories      string                   `json:"memories"`
	TicketHistory []storage.Ticket         `json:"ticket_history"`
}
