package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"support-orchestrator/internal/app"
	"support-orchestrator/internal/config"
	"support-orchestrator/internal/mcptools"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	// Tickets are never stored locally; the journal sink still records them
	// when AUDIT_LOG_PATH is set.
	a, err := app.Build(cfg, false)
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}
	defer a.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "support-orchestrator",
		Version: "1.0.0",
	}, nil)
	mcptools.New(a.Orchestrator, a.Knowledge).Register(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("🔗 Starting support MCP server on stdin/stdout...")
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		log.Printf("❌ Support MCP server failed: %v", err)
	}
}
