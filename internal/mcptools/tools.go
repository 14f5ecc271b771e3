// Package mcptools exposes the support orchestrator as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"support-orchestrator/internal/agent"
	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/knowledge"
)

type TicketService interface {
	Process(ctx context.Context, in agent.Input) (agent.Result, error)
	Classify(ctx context.Context, message string) (classifier.Classification, error)
	CustomerInsights(ctx context.Context, email string) (agent.CustomerInsights, error)
}

type KnowledgeBase interface {
	Store(ctx context.Context, doc knowledge.Document) (string, error)
	Search(ctx context.Context, q knowledge.Query) (string, error)
	List(ctx context.Context) ([]knowledge.Document, error)
}

type ProcessTicketParams struct {
	Message       string `json:"message" mcp:"the customer support message to process"`
	CustomerEmail string `json:"customer_email" mcp:"the customer email address"`
	Subject       string `json:"subject,omitempty" mcp:"optional subject line"`
	WorkspaceID   string `json:"workspace_id,omitempty" mcp:"optional workspace ID for multi-tenant isolation"`
}

type ClassifyParams struct {
	Message string `json:"message" mcp:"the message to classify"`
}

type InsightsParams struct {
	Email string `json:"email" mcp:"customer email to look up"`
}

type AddKnowledgeParams struct {
	Title    string   `json:"title" mcp:"title of the document"`
	Content  string   `json:"content" mcp:"the content of the document"`
	Category string   `json:"category" mcp:"one of: faq, pricing, features, policies, troubleshooting, general"`
	Tags     []string `json:"tags,omitempty" mcp:"optional tags for search"`
}

type SearchKnowledgeParams struct {
	Query    string `json:"query" mcp:"search query"`
	Category string `json:"category,omitempty" mcp:"optional category filter"`
	Limit    int    `json:"limit,omitempty" mcp:"maximum number of documents (default: 5)"`
}

type NoParams struct{}

type Tools struct {
	tickets   TicketService
	knowledge KnowledgeBase
}

func New(tickets TicketService, kb KnowledgeBase) *Tools {
	return &Tools{tickets: tickets, knowledge: kb}
}

// Register adds every tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_support_ticket",
		Description: "Process a customer support ticket through the full AI pipeline: knowledge search, customer history, classification and a contextual response. Tickets are not stored locally.",
	}, t.ProcessTicket)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_message",
		Description: "Classify a support message without generating a response. Returns category, urgency, sentiment and reasoning.",
	}, t.ClassifyMessage)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_customer_insights",
		Description: "Retrieve customer history and insights from memory.",
	}, t.CustomerInsights)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_knowledge",
		Description: "Add a product knowledge document so replies can reference product-specific facts.",
	}, t.AddKnowledge)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the product knowledge base for relevant information.",
	}, t.SearchKnowledge)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_knowledge",
		Description: "List all documents in the knowledge base.",
	}, t.ListKnowledge)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_knowledge_templates",
		Description: "Get pre-built knowledge document templates for quick setup.",
	}, t.KnowledgeTemplates)

	log.Printf("📋 Registered support MCP tools: process_support_ticket, classify_message, get_customer_insights, add_knowledge, search_knowledge, list_knowledge, get_knowledge_templates")
}

func (t *Tools) ProcessTicket(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ProcessTicketParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	res, err := t.tickets.Process(ctx, agent.Input{
		Message:       args.Message,
		CustomerEmail: args.CustomerEmail,
		Subject:       args.Subject,
		WorkspaceID:   args.WorkspaceID,
	})
	if err != nil {
		return failure("process_support_ticket", err), nil
	}
	return success(struct {
		Success bool `json:"success"`
		agent.Result
	}{true, res}), nil
}

func (t *Tools) ClassifyMessage(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ClassifyParams]) (*mcp.CallToolResultFor[any], error) {
	c, err := t.tickets.Classify(ctx, params.Arguments.Message)
	if err != nil {
		return failure("classify_message", err), nil
	}
	return success(map[string]any{"success": true, "classification": c}), nil
}

func (t *Tools) CustomerInsights(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[InsightsParams]) (*mcp.CallToolResultFor[any], error) {
	insights, err := t.tickets.CustomerInsights(ctx, params.Arguments.Email)
	if err != nil {
		return failure("get_customer_insights", err), nil
	}
	return success(map[string]any{"success": true, "insights": insights}), nil
}

func (t *Tools) AddKnowledge(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[AddKnowledgeParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	id, err := t.knowledge.Store(ctx, knowledge.Document{
		Title:    args.Title,
		Content:  args.Content,
		Category: knowledge.Category(args.Category),
		Tags:     args.Tags,
	})
	if err != nil {
		return failure("add_knowledge", err), nil
	}
	return success(map[string]any{
		"success":     true,
		"message":     "Knowledge document added successfully",
		"document_id": id,
	}), nil
}

func (t *Tools) SearchKnowledge(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[SearchKnowledgeParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if strings.TrimSpace(args.Query) == "" {
		return failure("search_knowledge", fmt.Errorf("query is required")), nil
	}
	category := knowledge.Category(args.Category)
	if category != "" && !category.Valid() {
		return failure("search_knowledge", fmt.Errorf("invalid category %q", args.Category)), nil
	}
	results, err := t.knowledge.Search(ctx, knowledge.Query{Text: args.Query, Limit: args.Limit, Category: category})
	if err != nil {
		return failure("search_knowledge", err), nil
	}
	if results == "" {
		results = "No matching documents found"
	}
	return success(map[string]any{"success": true, "results": results}), nil
}

func (t *Tools) ListKnowledge(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[NoParams]) (*mcp.CallToolResultFor[any], error) {
	docs, err := t.knowledge.List(ctx)
	if err != nil {
		return failure("list_knowledge", err), nil
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	return success(map[string]any{"success": true, "documents": docs, "total": len(docs)}), nil
}

func (t *Tools) KnowledgeTemplates(_ context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[NoParams]) (*mcp.CallToolResultFor[any], error) {
	templates, err := knowledge.Templates()
	if err != nil {
		return failure("get_knowledge_templates", err), nil
	}
	return success(map[string]any{"success": true, "templates": templates, "total": len(templates)}), nil
}

func success(v any) *mcp.CallToolResultFor[any] {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return failure("encode result", err)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// failure reports err to the caller. Stage failures are logged in full and
// reported generically.
func failure(tool string, err error) *mcp.CallToolResultFor[any] {
	log.Printf("❌ %s: %v", tool, err)
	msg := err.Error()
	var stageErr *agent.StageError
	if errors.As(err, &stageErr) {
		msg = "Ticket processing failed, please try again later"
	}
	data, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
