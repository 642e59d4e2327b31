package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/transaction"
)

// Response messages
const (
	MsgTransactionsFound   = "Transactions retrieved successfully"
	MsgTransactionFound    = "Transaction retrieved successfully"
	MsgTransactionCreated  = "Transaction created successfully"
	MsgTransactionUpdated  = "Transaction updated successfully"
	MsgReportGenerated     = "Report generated successfully"
	MsgReportEmpty         = "No data found for the requested report"
	MsgMonthlyTasksApplied = "Monthly tasks applied"
)

// TransactionResponse is the envelope for transaction endpoints
type TransactionResponse struct {
	Status       int                        `json:"status"`
	Message      string                     `json:"message"`
	Transactions []*transaction.Transaction `json:"transactions"`
}

// ReportResponse is the envelope for report endpoints
type ReportResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is written for every failed request
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeTransactions(w http.ResponseWriter, status int, message string, txs ...*transaction.Transaction) {
	if txs == nil {
		txs = []*transaction.Transaction{}
	}
	writeJSON(w, status, TransactionResponse{
		Status:       status,
		Message:      message,
		Transactions: txs,
	})
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, failure.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, failure.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, failure.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, failure.ErrUpstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		message = "Internal server error"
	}
	writeJSON(w, status, ErrorResponse{
		Status:  status,
		Message: message,
		Code:    failure.Code(err),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: http.StatusBadRequest, Message: message})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
