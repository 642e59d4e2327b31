package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"txengine/internal/domain/monthly"
	"txengine/internal/domain/reporting"
	"txengine/internal/domain/transaction"
	"txengine/internal/infrastructure/firebase"
	"txengine/internal/infrastructure/memory"
	"txengine/internal/infrastructure/postgres"
	"txengine/internal/infrastructure/postgres/listener"
	"txengine/internal/infrastructure/productregistry"
	redisinfra "txengine/internal/infrastructure/redis"
	httphandlers "txengine/internal/interfaces/http"
	"txengine/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Redis *redisinfra.Client

	// Domain services
	Saga         *transaction.Saga
	Transactions *transaction.Service
	Cards        *transaction.CardService
	Monthly      *monthly.Service
	Reports      *reporting.Service

	// Handlers
	TransactionHandler *httphandlers.TransactionHandler
	ReportHandler      *httphandlers.ReportHandler

	// Listener replays parked compensations on NOTIFY; nil for the memory ledger
	Listener *listener.CompensationListener

	Now func() time.Time
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{
		Now: func() time.Time { return time.Now().In(cfg.Location) },
	}

	// Ledger and compensation outbox
	var ledger transaction.Ledger
	var outbox transaction.Outbox
	switch cfg.Ledger.Driver {
	case config.LedgerMemory:
		log.Println("Using in-memory ledger (data is lost on restart)")
		ledger = memory.NewLedger()
		outbox = memory.NewOutbox()
	default:
		db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		deps.DB = db
		log.Println("Connected to database")

		if cfg.Ledger.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				deps.Close()
				return nil, err
			}
			log.Println("Ledger schema is up to date")
		}
		ledger = postgres.NewTransactionRepository(db)
		outbox = postgres.NewCompensationRepository(db)
	}

	// Domain events
	var publisher transaction.Publisher = transaction.NopPublisher{}
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = client
		publisher = redisinfra.NewPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen)
		log.Printf("Publishing domain events to redis stream %s", cfg.Redis.Stream)
	}

	// Operator alerts
	var alerter transaction.Alerter = transaction.LogAlerter{}
	if cfg.Firebase.CredentialsFile != "" {
		messenger, err := firebase.NewMessenger(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase, alerts go to the log: %v", err)
		} else {
			alerter = firebase.NewAlerter(messenger, cfg.Firebase.AlertTopic, cfg.Firebase.AlertTokens)
			log.Printf("Sending alerts to FCM topic %s", cfg.Firebase.AlertTopic)
		}
	}

	// Product registry behind the circuit breaker
	gateway := productregistry.NewResilient(productregistry.NewClient(cfg.Registry.URL), productregistry.Settings{
		CallTimeout:   cfg.Registry.CallTimeout,
		FailureRate:   cfg.Registry.FailureRate,
		MinRequests:   uint32(cfg.Registry.MinRequests),
		OpenTimeout:   cfg.Registry.OpenTimeout,
		HalfOpenCalls: uint32(cfg.Registry.HalfOpenCalls),
		Interval:      cfg.Registry.Interval,
	})

	// Domain services
	deps.Saga = transaction.NewSaga(gateway, ledger, outbox, alerter, publisher, deps.Now)
	deps.Transactions = transaction.NewService(gateway, ledger, deps.Saga, publisher, deps.Now)
	deps.Cards = transaction.NewCardService(gateway, deps.Transactions)
	deps.Monthly = monthly.NewServiceWithWorkers(gateway, ledger, deps.Saga, publisher, alerter, deps.Now, cfg.Batch.Workers)
	deps.Reports = reporting.NewService(gateway, ledger, cfg.Reporting.Currency, deps.Now)

	// Handlers
	deps.TransactionHandler = httphandlers.NewTransactionHandler(deps.Transactions, deps.Cards, deps.Monthly)
	deps.ReportHandler = httphandlers.NewReportHandler(deps.Reports, cfg.Location)

	if deps.DB != nil {
		deps.Listener = listener.NewCompensationListener(cfg.Database.ConnectionString(), deps.Saga, cfg.Ledger.RetryDelay)
	}

	return deps, nil
}

// Pinger returns the ledger store for readiness checks, or nil when there is
// nothing to ping.
func (d *Dependencies) Pinger() httphandlers.Pinger {
	if d.DB == nil {
		return nil
	}
	return d.DB
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			log.Printf("Error closing redis client: %v", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}
}

func (d *Dependencies) String() string {
	driver := "memory"
	if d.DB != nil {
		driver = "postgres"
	}
	return fmt.Sprintf("ledger=%s events=%t listener=%t", driver, d.Redis != nil, d.Listener != nil)
}
