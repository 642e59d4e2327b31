package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"txengine/internal/domain/monthly"
	"txengine/internal/domain/transaction"
	"txengine/internal/infrastructure/memory"
	"txengine/internal/infrastructure/postgres"
	"txengine/internal/infrastructure/productregistry"
	"txengine/internal/shared/config"
)

const usage = `Transaction engine admin CLI - operational commands

Usage:
  admin <command> [options]

Commands:
  monthly-tasks          Charge maintenance fees and enforce average balances now
  retry-compensations    Replay parked registry compensations
  migrate                Create or update the ledger schema

Examples:
  # Run the monthly batch with 16 workers
  admin monthly-tasks --workers=16

  # Print the full per-product report as JSON
  admin monthly-tasks --json

  # Replay up to 500 parked compensations
  admin retry-compensations --limit=500

  # Apply the ledger schema
  admin migrate
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "monthly-tasks":
		runMonthlyTasks(os.Args[2:])
	case "retry-compensations":
		runRetryCompensations(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// engine is the subset of the API wiring the admin commands need
type engine struct {
	db     *postgres.DB
	ledger transaction.Ledger
	saga   *transaction.Saga
	gw     *productregistry.Resilient
	now    func() time.Time
}

func newEngine(cfg *config.Config) *engine {
	e := &engine{now: func() time.Time { return time.Now().In(cfg.Location) }}

	var outbox transaction.Outbox
	if cfg.Ledger.Driver == config.LedgerMemory {
		log.Println("Warning: memory ledger selected, the command sees an empty ledger")
		e.ledger = memory.NewLedger()
		outbox = memory.NewOutbox()
	} else {
		e.db = connect(cfg)
		e.ledger = postgres.NewTransactionRepository(e.db)
		outbox = postgres.NewCompensationRepository(e.db)
	}

	e.gw = productregistry.NewResilient(productregistry.NewClient(cfg.Registry.URL), productregistry.Settings{
		CallTimeout:   cfg.Registry.CallTimeout,
		FailureRate:   cfg.Registry.FailureRate,
		MinRequests:   uint32(cfg.Registry.MinRequests),
		OpenTimeout:   cfg.Registry.OpenTimeout,
		HalfOpenCalls: uint32(cfg.Registry.HalfOpenCalls),
		Interval:      cfg.Registry.Interval,
	})
	e.saga = transaction.NewSaga(e.gw, e.ledger, outbox, transaction.LogAlerter{}, transaction.NopPublisher{}, e.now)
	return e
}

func (e *engine) close() {
	if e.db != nil {
		e.db.Close()
	}
}

func connect(cfg *config.Config) *postgres.DB {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")
	return db
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	decimal.MarshalJSONWithoutQuotes = true
	return cfg
}

func parseTimeout(s string) time.Duration {
	timeout, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}
	return timeout
}

func runMonthlyTasks(args []string) {
	fs := flag.NewFlagSet("monthly-tasks", flag.ExitOnError)

	workers := fs.Int("workers", 0, "Number of concurrent workers (default BATCH_WORKERS)")
	timeoutStr := fs.String("timeout", "1h", "Timeout for the operation (e.g., 30m, 2h)")
	asJSON := fs.Bool("json", false, "Print the full report as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: admin monthly-tasks [options]")
		fmt.Println("\nRunning this twice in one month charges the maintenance fee twice.")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout := parseTimeout(*timeoutStr)
	cfg := loadConfig()
	if *workers <= 0 {
		*workers = cfg.Batch.Workers
	}

	e := newEngine(cfg)
	defer e.close()

	svc := monthly.NewServiceWithWorkers(e.gw, e.ledger, e.saga, transaction.NopPublisher{}, transaction.LogAlerter{}, e.now, *workers)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Printf("Starting monthly tasks with %d workers", *workers)
	report, err := svc.Run(ctx)
	if err != nil {
		log.Fatalf("Monthly tasks failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
	} else {
		printMonthlyReport(report)
	}

	if report.Failed > 0 {
		os.Exit(2)
	}
}

func printMonthlyReport(report *monthly.Report) {
	fmt.Printf("\n=== Monthly tasks ===\n")
	fmt.Printf("  Products processed: %d\n", report.Processed)
	fmt.Printf("  Fees charged:       %d\n", report.Charged)
	fmt.Printf("  Products blocked:   %d\n", report.Blocked)
	fmt.Printf("  Failures:           %d\n", report.Failed)
	fmt.Printf("  Duration:           %v\n", report.FinishedAt.Sub(report.StartedAt))

	for _, r := range report.Results {
		if len(r.Errors) == 0 {
			continue
		}
		fmt.Printf("\n  %s:\n", r.ProductID)
		for _, e := range r.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}

func runRetryCompensations(args []string) {
	fs := flag.NewFlagSet("retry-compensations", flag.ExitOnError)

	limit := fs.Int("limit", 100, "Maximum number of compensations to replay")
	timeoutStr := fs.String("timeout", "10m", "Timeout for the operation")

	fs.Usage = func() {
		fmt.Println("Usage: admin retry-compensations [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout := parseTimeout(*timeoutStr)
	cfg := loadConfig()

	e := newEngine(cfg)
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := e.saga.RetryPending(ctx, *limit)
	if err != nil {
		log.Fatalf("Compensation retry failed: %v", err)
	}

	fmt.Printf("\n=== Compensation retry ===\n")
	fmt.Printf("  Attempted: %d\n", result.Attempted)
	fmt.Printf("  Resolved:  %d\n", result.Resolved)
	fmt.Printf("  Failed:    %d\n", result.Failed)

	if result.Failed > 0 {
		os.Exit(2)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeoutStr := fs.String("timeout", "1m", "Timeout for the operation")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout := parseTimeout(*timeoutStr)
	cfg := loadConfig()
	if cfg.Ledger.Driver == config.LedgerMemory {
		log.Println("Memory ledger selected, nothing to migrate")
		return
	}

	db := connect(cfg)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Ledger schema is up to date")
}
