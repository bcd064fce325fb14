/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the chart-of-accounts engine server. Handles
  configuration, dependency injection, seeding, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Seed rules, categories, and users when -seed is set
  4. Create API handler, load the rule catalog
  5. Start the session refresh sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: coa.db)
           Use ":memory:" for in-memory database
  -seed    Load the shipped account rules, category values, and demo
           users on startup (idempotent, rules upsert by code)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the session sweeper, close the database
  4. Exit

EXAMPLES:
  # First run with seed data
  ./server -db="./data/coa.db" -seed

  # Run with in-memory database
  ./server -db=":memory:" -seed

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  No environment variables currently. All config via flags.
  Future: DATABASE_URL, PORT, LOG_LEVEL

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - factory/seeds.go: Seed rules and category values
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

	"github.com/warp/coa-engine/api"
	"github.com/warp/coa-engine/auth"
	"github.com/warp/coa-engine/factory"
	"github.com/warp/coa-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "coa.db", "SQLite database path")
	seed := flag.Bool("seed", false, "Seed shipped rules, categories, and demo users")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *seed {
		if err := seedStore(context.Background(), store); err != nil {
			log.Fatalf("Failed to seed database: %v", err)
		}
		log.Println("Seed data loaded")
	}

	// Initialize handler
	handler := api.NewHandler(store)

	// Load the account rules into the catalog
	if err := handler.Catalog.Load(context.Background()); err != nil {
		log.Printf("Warning: Failed to load rule catalog: %v", err)
	}

	// Keep live sessions extended in the background
	handler.Auth.StartRefreshCheck(auth.DefaultRefreshCheckInterval)
	defer handler.Auth.StopRefreshCheck()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedStore loads the shipped rule set, category value lists, and a pair
// of demo users. Rules and categories upsert by code so reruns are safe.
func seedStore(ctx context.Context, store *sqlite.Store) error {
	rules, err := factory.NewRuleFactory().ParseRules(factory.SeedRulesJSON)
	if err != nil {
		return fmt.Errorf("parse seed rules: %w", err)
	}
	for _, rule := range rules {
		if err := store.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("save rule %s: %w", rule.Code, err)
		}
	}

	for _, cat := range factory.SeedCategories() {
		id, err := store.SaveCategory(ctx, cat.Code, cat.Name)
		if err != nil {
			return fmt.Errorf("save category %s: %w", cat.Code, err)
		}
		if err := store.ReplaceCategoryValues(ctx, id, cat.CategoryValues()); err != nil {
			return fmt.Errorf("save values for %s: %w", cat.Code, err)
		}
	}

	// Demo users, one per side of the maker-checker split
	users := []struct {
		email, name, password string
		roles, permissions    []string
	}{
		{
			email: "maker@example.com", name: "Demo Maker", password: "maker123",
			roles:       []string{"maker"},
			permissions: []string{"coa.account.view", "coa.request.create"},
		},
		{
			email: "checker@example.com", name: "Demo Checker", password: "checker123",
			roles:       []string{"checker"},
			permissions: []string{"coa.account.view", "coa.request.check"},
		},
	}
	for _, u := range users {
		existing, err := store.GetUserByEmail(ctx, u.email)
		if err != nil {
			return fmt.Errorf("lookup user %s: %w", u.email, err)
		}
		if existing != nil {
			continue
		}
		hash, err := auth.HashPassword(u.password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", u.email, err)
		}
		if err := store.SaveUser(ctx, &auth.User{
			Email:        u.email,
			FullName:     u.name,
			PasswordHash: hash,
			Roles:        u.roles,
			Permissions:  u.permissions,
		}); err != nil {
			return fmt.Errorf("save user %s: %w", u.email, err)
		}
	}
	return nil
}
