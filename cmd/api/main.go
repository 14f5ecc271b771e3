package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"support-orchestrator/internal/api"
	"support-orchestrator/internal/app"
	"support-orchestrator/internal/config"
	"support-orchestrator/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	a, err := app.Build(cfg, true)
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New()
	if err := a.Schedule(ctx, sched); err != nil {
		log.Printf("failed to schedule background jobs: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	keys, err := a.APIAuth()
	if err != nil {
		log.Fatalf("failed to load api keys: %v", err)
	}

	srv := api.NewServer(a.Orchestrator, a.Store, a.Knowledge, cfg.CORSOrigin).WithAuth(keys)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("HTTP server close error: %v", err)
	}
}
