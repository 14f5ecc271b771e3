package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"support-orchestrator/internal/agent"
	"support-orchestrator/internal/auth"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/letta"
	"support-orchestrator/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 1 << 20
)

type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Total     *int   `json:"total,omitempty"`
	Installed *int   `json:"installed,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeProcessError maps orchestrator failures to HTTP statuses. Stage
// failures are logged in full and reported generically.
func writeProcessError(w http.ResponseWriter, action string, err error) {
	var verr *agent.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	log.Printf("❌ %s: %v", action, err)
	writeError(w, http.StatusInternalServerError, "Failed to "+action)
}

type ticketResponse struct {
	Ticket           *storage.Ticket        `json:"ticket,omitempty"`
	TicketID         string                 `json:"ticket_id"`
	Classification   any                    `json:"classification"`
	AIResponse       string                 `json:"ai_response"`
	Tone             string                 `json:"tone"`
	SuggestedActions []string               `json:"suggested_actions"`
	CustomerContext  string                 `json:"customer_context"`
	KnowledgeUsed    string                 `json:"knowledge_used"`
	KnowledgeContext string                 `json:"knowledge_context"`
	ProcessingSteps  []agent.ProcessingStep `json:"processing_steps"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var in agent.Input
	if !decodeBody(w, r, &in) {
		return
	}
	if c, ok := auth.FromContext(r.Context()); ok && in.WorkspaceID == "" {
		in.WorkspaceID = c.WorkspaceID
	}
	res, err := s.tickets.Process(r.Context(), in)
	if err != nil {
		writeProcessError(w, "process ticket", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: ticketResponse{
		Ticket:           res.Ticket,
		TicketID:         res.TicketID,
		Classification:   res.Classification,
		AIResponse:       res.Response.Text,
		Tone:             res.Response.Tone,
		SuggestedActions: res.Response.SuggestedActions,
		CustomerContext:  res.Context.CustomerHistory,
		KnowledgeUsed:    res.Context.KnowledgeUsed,
		KnowledgeContext: res.Context.KnowledgeContext,
		ProcessingSteps:  res.ProcessingSteps,
	}})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var tickets []storage.Ticket
	switch status := storage.Status(r.URL.Query().Get("status")); status {
	case "":
		tickets, err = s.store.ListTickets(r.Context(), limit)
	case storage.StatusPending, storage.StatusClassified, storage.StatusProcessed:
		tickets, err = s.store.ListTicketsByStatus(r.Context(), status, limit)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
		return
	}
	if err != nil {
		log.Printf("❌ List tickets: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list tickets")
		return
	}
	if tickets == nil {
		tickets = []storage.Ticket{}
	}
	total := len(tickets)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: tickets, Total: &total})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, maxListLimit), nil
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.GetTicket(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		log.Printf("❌ Get ticket %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to load ticket")
		return
	}
	logs, err := s.tickets.TicketLogs(r.Context(), id)
	if err != nil {
		log.Printf("⚠️ Processing logs for %s unavailable: %v", id, err)
	}
	if logs == nil {
		logs = []storage.ProcessingLog{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: struct {
		storage.Ticket
		ProcessingLogs []storage.ProcessingLog `json:"processing_logs"`
	}{t, logs}})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.tickets.Classify(r.Context(), req.Message)
	if err != nil {
		writeProcessError(w, "classify message", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: c})
}

func (s *Server) handleCustomerInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.tickets.CustomerInsights(r.Context(), r.PathValue("email"))
	if err != nil {
		writeProcessError(w, "load customer insights", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: insights})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.Analytics(r.Context())
	if err != nil {
		log.Printf("❌ Analytics: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: a})
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	docs, err := s.knowledge.List(r.Context())
	if err != nil {
		log.Printf("❌ List knowledge: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list knowledge documents")
		return
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	total := len(docs)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: docs, Total: &total})
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var doc knowledge.Document
	if !decodeBody(w, r, &doc) {
		return
	}
	if doc.Category == "" {
		doc.Category = knowledge.CategoryGeneral
	}
	if err := doc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.knowledge.Store(r.Context(), doc)
	if err != nil {
		log.Printf("❌ Add knowledge %q: %v", doc.Title, err)
		writeError(w, http.StatusInternalServerError, "Failed to add knowledge document")
		return
	}
	doc.ID = id
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: doc, Message: "Knowledge document added successfully"})
}

func (s *Server) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string             `json:"query"`
		Category knowledge.Category `json:"category,omitempty"`
		Limit    int                `json:"limit,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Category != "" && !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid category %q", req.Category))
		return
	}
	results, err := s.knowledge.Search(r.Context(), knowledge.Query{Text: req.Query, Limit: req.Limit, Category: req.Category})
	if err != nil {
		log.Printf("❌ Search knowledge: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to search knowledge base")
		return
	}
	if results == "" {
		results = "No matching documents found"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"query": req.Query, "results": results}})
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.knowledge.Delete(r.Context(), id)
	var apiErr *letta.APIError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Knowledge document deleted"})
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "Knowledge document not found")
	default:
		log.Printf("❌ Delete knowledge %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete knowledge document")
	}
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := knowledge.Templates()
	if err != nil {
		log.Printf("❌ Load templates: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load templates")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: templates})
}

func (s *Server) handleInstallTemplates(w http.ResponseWriter, r *http.Request) {
	installed, total, err := s.knowledge.InstallTemplates(r.Context())
	if err != nil {
		log.Printf("❌ Install templates: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to install templates")
		return
	}
	msg := fmt.Sprintf("Installed %d of %d templates", installed, total)
	if installed == 0 && total > 0 {
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "Failed to install templates", Message: msg, Installed: &installed})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Installed: &installed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}
