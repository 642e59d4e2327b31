package main

import (
	"net/http"

	httphandlers "txengine/internal/interfaces/http"
	"txengine/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("/health", httphandlers.HandleHealth)
	mux.HandleFunc("/ready", httphandlers.HandleReady(deps.Pinger()))

	// Transactions
	tx := deps.TransactionHandler
	mux.HandleFunc("/transactions", tx.HandleTransactions)
	mux.HandleFunc("/transactions/card", tx.HandleCardPayment)
	mux.HandleFunc("/transactions/monthly-tasks", tx.HandleMonthlyTasks)
	mux.HandleFunc("/transactions/product/{productId}", tx.HandleTransactionsByProduct)
	mux.HandleFunc("/transactions/by-product/{productId}", tx.HandleTransactionsByProduct)
	mux.HandleFunc("/transactions/{id}", tx.HandleTransactionByID)

	// Reports
	reports := deps.ReportHandler
	mux.HandleFunc("/reports/available-balance/{productId}", reports.HandleAvailableBalance)
	mux.HandleFunc("/transactions/balance/{productId}", reports.HandleAvailableBalance)
	mux.HandleFunc("/reports/balance-summary/{customerId}", reports.HandleBalanceSummary)
	mux.HandleFunc("/reports/commissions/{customerId}", reports.HandleCommissions)
	mux.HandleFunc("/reports/products/{customerId}", reports.HandleProductSummary)

	// Tracing wraps the mux directly so it sees the matched pattern
	return middleware.Logging(middleware.Recover(middleware.Telemetry(middleware.Tracing(mux))))
}
