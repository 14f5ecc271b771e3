// Package api serves the REST interface of the support orchestrator.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"support-orchestrator/internal/agent"
	"support-orchestrator/internal/auth"
	"support-orchestrator/internal/classifier"
	"support-orchestrator/internal/knowledge"
	"support-orchestrator/internal/storage"
)

type TicketService interface {
	Process(ctx context.Context, in agent.Input) (agent.Result, error)
	Classify(ctx context.Context, message string) (classifier.Classification, error)
	CustomerInsights(ctx context.Context, email string) (agent.CustomerInsights, error)
	TicketLogs(ctx context.Context, ticketID string) ([]storage.ProcessingLog, error)
}

type TicketStore interface {
	GetTicket(ctx context.Context, id string) (storage.Ticket, error)
	ListTickets(ctx context.Context, limit int) ([]storage.Ticket, error)
	ListTicketsByStatus(ctx context.Context, status storage.Status, limit int) ([]storage.Ticket, error)
	Analytics(ctx context.Context) (storage.Analytics, error)
}

type KnowledgeBase interface {
	Store(ctx context.Context, doc knowledge.Document) (string, error)
	Search(ctx context.Context, q knowledge.Query) (string, error)
	List(ctx context.Context) ([]knowledge.Document, error)
	Delete(ctx context.Context, id string) error
	InstallTemplates(ctx context.Context) (installed, total int, err error)
}

type Server struct {
	tickets    TicketService
	store      TicketStore
	knowledge  KnowledgeBase
	corsOrigin string
	auth       *auth.Service
	now        func() time.Time

	server *http.Server
}

func NewServer(tickets TicketService, store TicketStore, kb KnowledgeBase, corsOrigin string) *Server {
	return &Server{
		tickets:    tickets,
		store:      store,
		knowledge:  kb,
		corsOrigin: corsOrigin,
		now:        time.Now,
	}
}

// WithAuth requires an allowlisted API key on every route except health.
func (s *Server) WithAuth(a *auth.Service) *Server {
	s.auth = a
	return s
}

// Handler returns the routed handler with CORS, API key checks and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tickets", s.handleCreateTicket)
	mux.HandleFunc("GET /api/tickets", s.handleListTickets)
	mux.HandleFunc("GET /api/tickets/{id}", s.handleGetTicket)
	mux.HandleFunc("POST /api/classify", s.handleClassify)
	mux.HandleFunc("GET /api/customers/{email}/insights", s.handleCustomerInsights)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)

	mux.HandleFunc("GET /api/knowledge", s.handleListKnowledge)
	mux.HandleFunc("POST /api/knowledge", s.handleAddKnowledge)
	mux.HandleFunc("POST /api/knowledge/search", s.handleSearchKnowledge)
	mux.HandleFunc("DELETE /api/knowledge/{id}", s.handleDeleteKnowledge)
	mux.HandleFunc("GET /api/knowledge/templates", s.handleTemplates)
	mux.HandleFunc("POST /api/knowledge/templates/install", s.handleInstallTemplates)

	mux.HandleFunc("GET /api/health", s.handleHealth)

	return withLogging(withCORS(s.corsOrigin, withAuth(s.auth, mux)))
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("🌐 Support API listening on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
