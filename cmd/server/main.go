/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the parking booking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and read config from the environment
  2. Parse command-line flags (override the environment)
  3. Initialize the SQLite store (catalog, settings, lookups)
  4. Initialize the capacity store (SQLite or PostgreSQL)
  5. Wire the engine, purge scheduler and API handler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: $PORT or 8080)
  -db        SQLite database path (default: $SQLITE_PATH or parking.db)
             Use ":memory:" for in-memory database
  -driver    Capacity store: sqlite3 or postgres (default: $DATABASE_DRIVER)
  -scenario  Load a demo scenario on startup

ENVIRONMENT:
  See config/config.go. DATABASE_URL is the PostgreSQL DSN when the
  driver is postgres.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the purge scheduler
  4. Close database connections

EXAMPLES:
  # Run with file database
  ./server -db="./data/parking.db"

  # Demo with in-memory database
  ./server -db=":memory:" -scenario=city-center

  # Capacity in PostgreSQL
  DATABASE_URL=postgres://localhost/parking ./server -driver=postgres

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Stores
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/parking-engine/api"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/config"
	"github.com/warp/parking-engine/store/postgres"
	"github.com/warp/parking-engine/store/sqlite"
)

// capacityBackend is what the capacity store must provide beyond the engine
// interface: purge for the scheduler and lookups for GET /reservations.
type capacityBackend interface {
	booking.CapacityStore
	booking.CommitmentPurger
	booking.ReservationReader
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Server] Warning: failed to load .env: %v", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	driver := flag.String("driver", cfg.DatabaseDriver, "Capacity store driver (sqlite3 or postgres)")
	scenario := flag.String("scenario", "", "Demo scenario to load on startup")
	flag.Parse()

	cfg.DatabaseDriver = *driver
	if err := cfg.ValidateDatabase(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize stores
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	var capacity capacityBackend = store
	switch cfg.DatabaseDriver {
	case "sqlite3":
	case "postgres":
		pg, err := postgres.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		defer pg.Close()
		capacity = pg
		log.Println("[Server] Capacity stored in PostgreSQL")
	default:
		log.Fatalf("Unknown driver %q", cfg.DatabaseDriver)
	}

	engine := &booking.Engine{
		Catalog:        store,
		Capacity:       capacity,
		Settings:       store,
		Maintenance:    store,
		Customers:      store,
		Vouchers:       store,
		Location:       cfg.Location,
		DayConcurrency: cfg.DayConcurrency,
	}

	// Purge scheduler
	purge := api.NewPurgeScheduler(capacity, cfg.Location)
	purge.Schedule = cfg.PurgeSchedule
	purge.RetentionDays = cfg.PurgeRetentionDays
	if err := purge.Start(); err != nil {
		log.Fatalf("Failed to start purge scheduler: %v", err)
	}
	defer purge.Stop()

	// Initialize handler
	handler := api.NewHandler(engine, store, capacity)
	handler.Purge = purge

	if *scenario != "" {
		if err := api.Seed(context.Background(), store, engine, *scenario); err != nil {
			log.Fatalf("Failed to load scenario %q: %v", *scenario, err)
		}
		log.Printf("[Server] Loaded scenario %q", *scenario)
	}

	// Create router
	router := api.NewRouter(handler, cfg.AllowedOrigins...)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%s (timezone %s)", *port, cfg.Location)
		log.Printf("📊 API available at http://localhost:%s/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
