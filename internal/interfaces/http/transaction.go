package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"txengine/internal/domain/monthly"
	"txengine/internal/domain/transaction"
)

// TransactionService is the orchestrator surface used by TransactionHandler
type TransactionService interface {
	Create(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error)
	Get(ctx context.Context, id string) (*transaction.Transaction, error)
	List(ctx context.Context) ([]*transaction.Transaction, error)
	ListByProduct(ctx context.Context, productID string) ([]*transaction.Transaction, error)
	Update(ctx context.Context, id string, params transaction.UpdateParams) (*transaction.Transaction, error)
	Delete(ctx context.Context, id string) error
}

// CardCharger charges purchases to debit cards
type CardCharger interface {
	Charge(ctx context.Context, params transaction.CardParams) (*transaction.Transaction, error)
}

// MonthlyRunner runs the end-of-month batch
type MonthlyRunner interface {
	Run(ctx context.Context) (*monthly.Report, error)
}

type TransactionHandler struct {
	transactions TransactionService
	cards        CardCharger
	monthly      MonthlyRunner
}

func NewTransactionHandler(transactions TransactionService, cards CardCharger, monthly MonthlyRunner) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		cards:        cards,
		monthly:      monthly,
	}
}

// HandleTransactions lists all transactions (GET) or creates one (POST)
func (h *TransactionHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *TransactionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions.List(r.Context())
	if err != nil {
		log.Printf("Error listing transactions: %v", err)
		writeError(w, err)
		return
	}
	writeTransactions(w, http.StatusOK, MsgTransactionsFound, txs...)
}

func (h *TransactionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var params transaction.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Printf("Error decoding create transaction request: %v", err)
		writeBadRequest(w, "Invalid request body")
		return
	}

	tx, err := h.transactions.Create(r.Context(), params)
	if err != nil {
		log.Printf("Error creating %s transaction for product %s: %v", params.Type, params.SourceProductID, err)
		writeError(w, err)
		return
	}
	writeTransactions(w, http.StatusCreated, MsgTransactionCreated, tx)
}

// HandleTransactionByID handles GET, PUT and DELETE on a single transaction
func (h *TransactionHandler) HandleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeBadRequest(w, "Transaction ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, id)
	case http.MethodPut:
		h.handleUpdate(w, r, id)
	case http.MethodDelete:
		h.handleDelete(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func (h *TransactionHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		log.Printf("Error getting transaction %s: %v", id, err)
		writeError(w, err)
		return
	}
	writeTransactions(w, http.StatusOK, MsgTransactionFound, tx)
}

func (h *TransactionHandler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var params transaction.UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Printf("Error decoding update transaction request: %v", err)
		writeBadRequest(w, "Invalid request body")
		return
	}

	tx, err := h.transactions.Update(r.Context(), id, params)
	if err != nil {
		log.Printf("Error updating transaction %s: %v", id, err)
		writeError(w, err)
		return
	}
	writeTransactions(w, http.StatusOK, MsgTransactionUpdated, tx)
}

func (h *TransactionHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.transactions.Delete(r.Context(), id); err != nil {
		log.Printf("Error deleting transaction %s: %v", id, err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTransactionsByProduct lists transactions whose source is the product
func (h *TransactionHandler) HandleTransactionsByProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		writeBadRequest(w, "Product ID is required")
		return
	}

	txs, err := h.transactions.ListByProduct(r.Context(), productID)
	if err != nil {
		log.Printf("Error listing transactions for product %s: %v", productID, err)
		writeError(w, err)
		return
	}
	writeTransactions(w, http.StatusOK, MsgTransactionsFound, txs...)
}

// HandleCardPayment charges a purchase to a debit card
func (h *TransactionHandler) HandleCardPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var params transaction.CardParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Printf("Error decoding card payment request: %v", err)
		writeBadRequest(w, "Invalid request body")
		return
	}

	tx, err := h.cards.Charge(r.Context(), params)
	if err != nil {
		log.Printf("Error charging card %s: %v", params.CardID, err)
		writeError(w, err)
		return
	}
	writeTransactions(w, http.StatusCreated, MsgTransactionCreated, tx)
}

// HandleMonthlyTasks runs the monthly batch and returns its report
func (h *TransactionHandler) HandleMonthlyTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	report, err := h.monthly.Run(r.Context())
	if err != nil {
		log.Printf("Error running monthly tasks: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Status:  http.StatusOK,
		Message: MsgMonthlyTasksApplied,
		Data:    report,
	})
}
