/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and configure logging
  2. Parse command-line flags (env vars as fallback)
  3. Initialize SQLite store
  4. Wire the posting and invoice engines
  5. Configure HTTP router and start the scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080, env PORT)
  -db            SQLite database path (default: billing.db, env DB_PATH)
                 Use ":memory:" for an in-memory database
  -tds           Default TDS percent at generation (default: 0, env TDS_PERCENT)
  -gst           Default GST percent at generation (default: 0, env GST_PERCENT)
  -working-days  Fixed working days per month (default: 26, env WORKING_DAYS)
  -scheduler     Enable the billing scheduler (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and wait for the in-flight tick
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Run with in-memory database, scheduler off
  ./server -db=":memory:" -scheduler=false

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Monthly generation and overdue sweeps
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/stafflink/billing-engine/api"
	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/invoice"
	"github.com/stafflink/billing-engine/pkg/logging"
	"github.com/stafflink/billing-engine/posting"
	"github.com/stafflink/billing-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	logging.Setup()

	// Flags, with env fallback
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "billing.db"), "SQLite database path")
	tds := flag.String("tds", envStr("TDS_PERCENT", "0"), "default TDS percent")
	gst := flag.String("gst", envStr("GST_PERCENT", "0"), "default GST percent")
	workingDays := flag.Int("working-days", envInt("WORKING_DAYS", billing.DefaultFixedWorkingDays),
		"fixed working days per month")
	schedulerOn := flag.Bool("scheduler", true, "enable the billing scheduler")
	flag.Parse()

	tdsPercent, err := decimal.NewFromString(*tds)
	if err != nil {
		slog.Error("invalid TDS percent", "value", *tds, "error", err)
		os.Exit(1)
	}
	gstPercent, err := decimal.NewFromString(*gst)
	if err != nil {
		slog.Error("invalid GST percent", "value", *gst, "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire engines
	calc := billing.NewCalculator(billing.CalculatorConfig{
		Mode:             billing.WorkingDaysFixed,
		FixedWorkingDays: *workingDays,
	})
	postings := posting.NewService(store)
	invoices := invoice.NewService(store, calc)
	invoices.DefaultTDSPercent = tdsPercent
	invoices.DefaultGSTPercent = gstPercent

	handler := api.NewHandler(store, postings, invoices)
	router := api.NewRouter(handler)

	scheduler := api.NewBillingScheduler(invoices)
	scheduler.Enabled = *schedulerOn
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
