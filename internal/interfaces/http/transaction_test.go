package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/monthly"
	"txengine/internal/domain/transaction"
)

// MockTransactionService implements TransactionService for testing
type MockTransactionService struct {
	CreateFunc        func(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error)
	GetFunc           func(ctx context.Context, id string) (*transaction.Transaction, error)
	ListFunc          func(ctx context.Context) ([]*transaction.Transaction, error)
	ListByProductFunc func(ctx context.Context, productID string) ([]*transaction.Transaction, error)
	UpdateFunc        func(ctx context.Context, id string, params transaction.UpdateParams) (*transaction.Transaction, error)
	DeleteFunc        func(ctx context.Context, id string) error
}

func (m *MockTransactionService) Create(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockTransactionService) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTransactionService) List(ctx context.Context) ([]*transaction.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *MockTransactionService) ListByProduct(ctx context.Context, productID string) ([]*transaction.Transaction, error) {
	if m.ListByProductFunc != nil {
		return m.ListByProductFunc(ctx, productID)
	}
	return nil, nil
}

func (m *MockTransactionService) Update(ctx context.Context, id string, params transaction.UpdateParams) (*transaction.Transaction, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, params)
	}
	return nil, nil
}

func (m *MockTransactionService) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockCardCharger implements CardCharger for testing
type MockCardCharger struct {
	ChargeFunc func(ctx context.Context, params transaction.CardParams) (*transaction.Transaction, error)
}

func (m *MockCardCharger) Charge(ctx context.Context, params transaction.CardParams) (*transaction.Transaction, error) {
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, params)
	}
	return nil, nil
}

// MockMonthlyRunner implements MonthlyRunner for testing
type MockMonthlyRunner struct {
	RunFunc func(ctx context.Context) (*monthly.Report, error)
}

func (m *MockMonthlyRunner) Run(ctx context.Context) (*monthly.Report, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return &monthly.Report{}, nil
}

// newMux registers handlers on the same patterns the API uses
func newMux(h *TransactionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions", h.HandleTransactions)
	mux.HandleFunc("/transactions/card", h.HandleCardPayment)
	mux.HandleFunc("/transactions/monthly-tasks", h.HandleMonthlyTasks)
	mux.HandleFunc("/transactions/product/{productId}", h.HandleTransactionsByProduct)
	mux.HandleFunc("/transactions/{id}", h.HandleTransactionByID)
	return mux
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) TransactionResponse {
	t.Helper()
	var resp TransactionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleCreateTransaction(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		createErr      error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Success",
			body:           `{"sourceProductId":"p-1","type":"DEPOSIT","amount":100}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Malformed body",
			body:           `{"sourceProductId":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Validation",
			body:           `{"sourceProductId":"p-1","type":"DEPOSIT","amount":0}`,
			createErr:      failure.Validation("amount must be greater than zero"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Business rule",
			body:           `{"sourceProductId":"p-1","type":"WITHDRAWAL","amount":100}`,
			createErr:      failure.Rule(failure.CodeInsufficientFunds, "insufficient funds"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   failure.CodeInsufficientFunds,
		},
		{
			name:           "Unknown product",
			body:           `{"sourceProductId":"missing","type":"DEPOSIT","amount":100}`,
			createErr:      failure.NotFound("product", "missing"),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Registry down",
			body:           `{"sourceProductId":"p-1","type":"DEPOSIT","amount":100}`,
			createErr:      failure.Upstream("get product", context.DeadlineExceeded),
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "Ledger down",
			body:           `{"sourceProductId":"p-1","type":"DEPOSIT","amount":100}`,
			createErr:      failure.Persistence("save transaction", context.Canceled),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got transaction.CreateParams
			svc := &MockTransactionService{
				CreateFunc: func(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error) {
					got = params
					if tt.createErr != nil {
						return nil, tt.createErr
					}
					return &transaction.Transaction{ID: "tx-1", SourceProductID: params.SourceProductID, Type: params.Type, Amount: params.Amount}, nil
				},
			}
			mux := newMux(NewTransactionHandler(svc, &MockCardCharger{}, &MockMonthlyRunner{}))

			req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}

			if tt.expectedStatus == http.StatusCreated {
				resp := decodeEnvelope(t, rr)
				if resp.Status != http.StatusCreated || len(resp.Transactions) != 1 || resp.Transactions[0].ID != "tx-1" {
					t.Errorf("unexpected envelope: %+v", resp)
				}
				if !got.Amount.Equal(decimal.NewFromInt(100)) {
					t.Errorf("expected amount 100 to reach the service, got %s", got.Amount)
				}
				return
			}

			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if errResp.Status != tt.expectedStatus {
				t.Errorf("expected body status %d, got %d", tt.expectedStatus, errResp.Status)
			}
			if errResp.Code != tt.expectedCode {
				t.Errorf("expected code %q, got %q", tt.expectedCode, errResp.Code)
			}
		})
	}
}

func TestHandleCreateTransaction_HidesInternalErrors(t *testing.T) {
	svc := &MockTransactionService{
		CreateFunc: func(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error) {
			return nil, failure.Persistence("save transaction", context.Canceled)
		},
	}
	mux := newMux(NewTransactionHandler(svc, &MockCardCharger{}, &MockMonthlyRunner{}))

	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(`{"sourceProductId":"p-1","type":"DEPOSIT","amount":1}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if bytes.Contains(rr.Body.Bytes(), []byte("context canceled")) {
		t.Errorf("expected internal details to be hidden, got %s", rr.Body.String())
	}
}

func TestHandleListTransactions(t *testing.T) {
	svc := &MockTransactionService{
		ListFunc: func(ctx context.Context) ([]*transaction.Transaction, error) {
			return []*transaction.Transaction{{ID: "tx-1"}, {ID: "tx-2"}}, nil
		},
	}
	mux := newMux(NewTransactionHandler(svc, &MockCardCharger{}, &MockMonthlyRunner{}))

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	if len(resp.Transactions) != 2 || resp.Message != MsgTransactionsFound {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestHandleListTransactions_EmptyIsArray(t *testing.T) {
	mux := newMux(NewTransactionHandler(&MockTransactionService{}, &MockCardCharger{}, &MockMonthlyRunner{}))

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if !bytes.Contains(rr.Body.Bytes(), []byte(`"transactions":[]`)) {
		t.Errorf("expected empty array, got %s", rr.Body.String())
	}
}

func TestHandleTransactionByID(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           string
		expectedStatus int
	}{
		{"Get", http.MethodGet, "", http.StatusOK},
		{"Update", http.MethodPut, `{"sourceProductId":"p-1","type":"DEPOSIT","amount":5}`, http.StatusOK},
		{"Update malformed", http.MethodPut, `nope`, http.StatusBadRequest},
		{"Delete", http.MethodDelete, "", http.StatusNoContent},
		{"Patch", http.MethodPatch, "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenID string
			svc := &MockTransactionService{
				GetFunc: func(ctx context.Context, id string) (*transaction.Transaction, error) {
					seenID = id
					return &transaction.Transaction{ID: id}, nil
				},
				UpdateFunc: func(ctx context.Context, id string, params transaction.UpdateParams) (*transaction.Transaction, error) {
					seenID = id
					return &transaction.Transaction{ID: id, Amount: params.Amount}, nil
				},
				DeleteFunc: func(ctx context.Context, id string) error {
					seenID = id
					return nil
				},
			}
			mux := newMux(NewTransactionHandler(svc, &MockCardCharger{}, &MockMonthlyRunner{}))

			req := httptest.NewRequest(tt.method, "/transactions/tx-9", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if rr.Code < 300 && seenID != "tx-9" {
				t.Errorf("expected id tx-9 to reach the service, got %q", seenID)
			}
		})
	}
}

func TestHandleTransactionByID_NotFound(t *testing.T) {
	svc := &MockTransactionService{
		GetFunc: func(ctx context.Context, id string) (*transaction.Transaction, error) {
			return nil, failure.NotFound("transaction", id)
		},
	}
	mux := newMux(NewTransactionHandler(svc, &MockCardCharger{}, &MockMonthlyRunner{}))

	req := httptest.NewRequest(http.MethodGet, "/transactions/missing", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestHandleTransactionsByProduct(t *testing.T) {
	var seen string
	svc := &MockTransactionService{
		ListByProductFunc: func(ctx context.Context, productID string) ([]*transaction.Transaction, error) {
			seen = productID
			return []*transaction.Transaction{{ID: "tx-1", SourceProductID: productID}}, nil
		},
	}
	mux := newMux(NewTransactionHandler(svc, &MockCardCharger{}, &MockMonthlyRunner{}))

	req := httptest.NewRequest(http.MethodGet, "/transactions/product/p-7", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen != "p-7" {
		t.Errorf("expected product p-7, got %q", seen)
	}
}

func TestHandleCardPayment(t *testing.T) {
	tests := []struct {
		name           string
		chargeErr      error
		expectedStatus int
	}{
		{"Success", nil, http.StatusCreated},
		{"Insufficient funds", failure.Rule(failure.CodeInsufficientFunds, "no account can cover the purchase"), http.StatusUnprocessableEntity},
		{"Unknown card", failure.NotFound("card", "c-1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := &MockCardCharger{
				ChargeFunc: func(ctx context.Context, params transaction.CardParams) (*transaction.Transaction, error) {
					if params.CardID != "c-1" {
						t.Errorf("expected card c-1, got %q", params.CardID)
					}
					if tt.chargeErr != nil {
						return nil, tt.chargeErr
					}
					return &transaction.Transaction{ID: "tx-1", Type: transaction.TypePurchase}, nil
				},
			}
			mux := newMux(NewTransactionHandler(&MockTransactionService{}, cards, &MockMonthlyRunner{}))

			req := httptest.NewRequest(http.MethodPost, "/transactions/card", bytes.NewBufferString(`{"cardId":"c-1","amount":"25.50"}`))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleMonthlyTasks(t *testing.T) {
	runner := &MockMonthlyRunner{
		RunFunc: func(ctx context.Context) (*monthly.Report, error) {
			return &monthly.Report{Processed: 3, Charged: 2, Blocked: 1}, nil
		},
	}
	mux := newMux(NewTransactionHandler(&MockTransactionService{}, &MockCardCharger{}, runner))

	req := httptest.NewRequest(http.MethodPost, "/transactions/monthly-tasks", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Status int            `json:"status"`
		Data   monthly.Report `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Processed != 3 || resp.Data.Blocked != 1 {
		t.Errorf("unexpected report: %+v", resp.Data)
	}

	req = httptest.NewRequest(http.MethodGet, "/transactions/monthly-tasks", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rr.Code)
	}
}
