package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"support-orchestrator/internal/agent"
	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/letta/lettatest"
)

type fakeTickets struct {
	err  error
	last agent.Input
}

func (f *fakeTickets) Process(_ context.Context, in agent.Input) (agent.Result, error) {
	f.last = in
	if f.err != nil {
		return agent.Result{}, f.err
	}
	return agent.Result{
		TicketID:       "t-1",
		Classification: classifier.Classification{Category: classifier.CategoryBilling, Urgency: classifier.UrgencyHigh, Sentiment: classifier.SentimentNegative},
		Response:       agent.ResponseDetails{Text: "Refund issued.", Tone: "empathetic"},
	}, nil
}

func (f *fakeTickets) Classify(context.Context, string) (classifier.Classification, error) {
	return classifier.Classification{Category: classifier.CategoryTechnical}, f.err
}

func (f *fakeTickets) CustomerInsights(_ context.Context, email string) (agent.CustomerInsights, error) {
	return agent.CustomerInsights{Email: email, Memories: agent.NewCustomer}, f.err
}

func decode(t *testing.T, res *mcp.CallToolResultFor[any]) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("want one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("decode %q: %v", text.Text, err)
	}
	return out
}

func newTools() (*Tools, *fakeTickets, *lettatest.Archive) {
	tickets := &fakeTickets{}
	archive := lettatest.New()
	return New(tickets, knowledge.New(archive)), tickets, archive
}

func TestProcessTicket(t *testing.T) {
	tools, tickets, _ := newTools()
	res, err := tools.ProcessTicket(context.Background(), nil, &mcp.CallToolParamsFor[ProcessTicketParams]{
		Arguments: ProcessTicketParams{Message: "charged twice", CustomerEmail: "a@example.com", WorkspaceID: "ws-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := decode(t, res)
	if out["success"] != true || out["ticket_id"] != "t-1" {
		t.Fatalf("unexpected result: %v", out)
	}
	if out["response"].(map[string]any)["text"] != "Refund issued." {
		t.Fatalf("response missing: %v", out)
	}
	if tickets.last.WorkspaceID != "ws-1" {
		t.Fatalf("workspace not forwarded: %+v", tickets.last)
	}
}

func TestProcessTicket_Failure(t *testing.T) {
	tools, tickets, _ := newTools()
	tickets.err = &agent.ValidationError{Field: "customer_email", Reason: "required"}
	res, err := tools.ProcessTicket(context.Background(), nil, &mcp.CallToolParamsFor[ProcessTicketParams]{})
	if err != nil {
		t.Fatalf("tool failures are reported in the result, got %v", err)
	}
	out := decode(t, res)
	if !res.IsError || out["success"] != false || out["error"] != "invalid customer_email: required" {
		t.Fatalf("unexpected failure result: %v", out)
	}
}

func TestProcessTicket_StageFailureIsGeneric(t *testing.T) {
	tools, tickets, _ := newTools()
	tickets.err = &agent.StageError{Stage: "classify_message", Err: errors.New("openai: 401 invalid api key sk-live-123")}
	res, _ := tools.ProcessTicket(context.Background(), nil, &mcp.CallToolParamsFor[ProcessTicketParams]{
		Arguments: ProcessTicketParams{Message: "hi", CustomerEmail: "a@example.com"},
	})
	out := decode(t, res)
	msg, _ := out["error"].(string)
	if !res.IsError || out["success"] != false || msg == "" {
		t.Fatalf("unexpected failure result: %v", out)
	}
	if strings.Contains(msg, "classify_message") || strings.Contains(msg, "sk-live") {
		t.Fatalf("internal error leaked to caller: %q", msg)
	}
}

func TestClassifyAndInsights(t *testing.T) {
	tools, tickets, _ := newTools()
	ctx := context.Background()

	res, _ := tools.ClassifyMessage(ctx, nil, &mcp.CallToolParamsFor[ClassifyParams]{Arguments: ClassifyParams{Message: "app crashes"}})
	if out := decode(t, res); out["classification"].(map[string]any)["category"] != "technical" {
		t.Fatalf("unexpected classification: %v", out)
	}

	res, _ = tools.CustomerInsights(ctx, nil, &mcp.CallToolParamsFor[InsightsParams]{Arguments: InsightsParams{Email: "a@example.com"}})
	if out := decode(t, res); out["insights"].(map[string]any)["memories"] != agent.NewCustomer {
		t.Fatalf("unexpected insights: %v", out)
	}

	tickets.err = errors.New("llm down")
	res, _ = tools.ClassifyMessage(ctx, nil, &mcp.CallToolParamsFor[ClassifyParams]{Arguments: ClassifyParams{Message: "x"}})
	if !res.IsError {
		t.Fatalf("expected error result")
	}
}

func TestKnowledgeTools(t *testing.T) {
	tools, _, _ := newTools()
	ctx := context.Background()

	res, _ := tools.AddKnowledge(ctx, nil, &mcp.CallToolParamsFor[AddKnowledgeParams]{Arguments: AddKnowledgeParams{
		Title: "Reset password", Content: "Use the forgot password link", Category: "troubleshooting", Tags: []string{"password"},
	}})
	out := decode(t, res)
	if out["success"] != true || out["document_id"] != "passage-1" {
		t.Fatalf("add: %v", out)
	}

	res, _ = tools.SearchKnowledge(ctx, nil, &mcp.CallToolParamsFor[SearchKnowledgeParams]{Arguments: SearchKnowledgeParams{Query: "password"}})
	if results := decode(t, res)["results"].(string); !strings.Contains(results, "forgot password link") {
		t.Fatalf("search results: %q", results)
	}

	res, _ = tools.SearchKnowledge(ctx, nil, &mcp.CallToolParamsFor[SearchKnowledgeParams]{Arguments: SearchKnowledgeParams{Query: "password", Category: "pricing"}})
	if results := decode(t, res)["results"]; results != "No matching documents found" {
		t.Fatalf("filtered search: %v", results)
	}

	res, _ = tools.ListKnowledge(ctx, nil, &mcp.CallToolParamsFor[NoParams]{})
	if out := decode(t, res); out["total"] != float64(1) {
		t.Fatalf("list: %v", out)
	}

	res, _ = tools.KnowledgeTemplates(ctx, nil, &mcp.CallToolParamsFor[NoParams]{})
	if out := decode(t, res); out["total"] != float64(4) {
		t.Fatalf("templates: %v", out)
	}
}

func TestKnowledgeTools_Invalid(t *testing.T) {
	tools, _, archive := newTools()
	ctx := context.Background()

	res, _ := tools.AddKnowledge(ctx, nil, &mcp.CallToolParamsFor[AddKnowledgeParams]{Arguments: AddKnowledgeParams{Title: "x", Content: "y", Category: "secret"}})
	if !res.IsError || len(archive.Texts()) != 0 {
		t.Fatalf("invalid category must not be stored")
	}

	for _, args := range []SearchKnowledgeParams{{Query: "  "}, {Query: "x", Category: "secret"}} {
		res, _ := tools.SearchKnowledge(ctx, nil, &mcp.CallToolParamsFor[SearchKnowledgeParams]{Arguments: args})
		if !res.IsError {
			t.Fatalf("expected error for %+v", args)
		}
	}

	archive.Err = errors.New("letta offline")
	res, _ = tools.ListKnowledge(ctx, nil, &mcp.CallToolParamsFor[NoParams]{})
	if out := decode(t, res); out["success"] != false || !strings.Contains(out["error"].(string), "letta offline") {
		t.Fatalf("list failure: %v", out)
	}
}
