/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fiscal document engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and optional YAML config
  2. Initialize SQLite store
  3. Seed tenants from config
  4. Wire lifecycle, queue, worker pool, status poller and HTTP handlers
  5. Recover jobs for documents left in queued
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: fiscal.db)
            Use ":memory:" for an in-memory database
  -config   YAML config path (default: fiscal-engine.yml, optional)
  -workers  Submission worker count (default: 4)
  -poll     Status poll interval (default: 30s)

  The config file's server section supplies defaults; a flag passed
  explicitly on the command line wins over the file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the poller and drain the worker pool
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/fiscal.db"

  # Run with in-memory database and 8 workers
  ./server -db=":memory:" -workers=8

SEE ALSO:
  - api/server.go: Router configuration
  - submit/worker.go: Worker pool
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arvo/fiscal-engine/api"
	"github.com/arvo/fiscal-engine/authority"
	"github.com/arvo/fiscal-engine/config"
	"github.com/arvo/fiscal-engine/fiscal"
	"github.com/arvo/fiscal-engine/store/sqlite"
	"github.com/arvo/fiscal-engine/submit"
)

func main() {
	port := flag.Int("port", config.DefaultPort, "HTTP server port")
	dbPath := flag.String("db", config.DefaultDBPath, "SQLite database path")
	configPath := flag.String("config", "fiscal-engine.yml", "YAML config path")
	workers := flag.Int("workers", config.DefaultWorkers, "submission worker count")
	pollInterval := flag.Duration("poll", config.DefaultPollInterval, "authority status poll interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The server section of the config file supplies defaults; flags set
	// explicitly on the command line take precedence.
	settings := cfg.ServerSettings()
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			settings.Port = *port
		case "db":
			settings.DBPath = *dbPath
		case "workers":
			settings.Workers = *workers
		case "poll":
			settings.PollInterval = *pollInterval
		}
	})

	store, err := sqlite.New(settings.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Seed tenants declared in the config file.
	for _, t := range cfg.Tenants {
		if err := store.SaveTenant(ctx, t.TenantConfig()); err != nil {
			log.Fatalf("Failed to seed tenant %s: %v", t.ID, err)
		}
	}

	// Wire the engine. The store implements every persistence contract.
	clients := authority.Selector{
		Simulated: authority.NewSimulated(),
		Live:      authority.NewLive(),
	}
	lifecycle := fiscal.NewLifecycle(store, store, store, store, fiscal.HashSigner{})

	queue := submit.NewMemoryQueue(0)
	svc := submit.NewService(store, store, store, lifecycle, queue, clients, submit.LogAlerter{})

	pool := submit.NewPool(svc, settings.Workers)
	pool.Start(ctx)
	defer pool.Stop()

	poller := submit.NewStatusPoller(store, store, lifecycle, clients)
	poller.Interval = settings.PollInterval
	poller.Start()
	defer poller.Stop()

	// Re-enqueue documents left in queued by a previous run.
	if n, err := svc.Recover(ctx); err != nil {
		log.Printf("Warning: job recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("Recovered %d pending submission(s)", n)
	}

	handler := &api.Handler{
		Documents:   store,
		Attempts:    store,
		Tenants:     store,
		Audit:       store,
		Lifecycle:   lifecycle,
		Submissions: svc,
		Clients:     clients,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", settings.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
