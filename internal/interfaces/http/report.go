package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"txengine/internal/domain/reporting"
)

// ReportService is the reporting surface used by ReportHandler
type ReportService interface {
	AvailableBalance(ctx context.Context, productID string) (*reporting.AvailableBalance, error)
	MonthlyBalanceSummary(ctx context.Context, customerID string) (*reporting.BalanceSummary, error)
	CommissionReport(ctx context.Context, customerID string, period reporting.Period) (*reporting.CommissionReport, error)
	ProductSummary(ctx context.Context, customerID string, period reporting.Period, activeOnly bool) ([]*reporting.ProductActivity, error)
}

type ReportHandler struct {
	reports  ReportService
	location *time.Location
}

// NewReportHandler creates a report handler. Plain dates in queries are read
// in loc; nil means UTC.
func NewReportHandler(reports ReportService, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportHandler{reports: reports, location: loc}
}

// HandleAvailableBalance returns what a product can still spend or borrow
func (h *ReportHandler) HandleAvailableBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	productID := r.PathValue("productId")
	balance, err := h.reports.AvailableBalance(r.Context(), productID)
	if err != nil {
		log.Printf("Error getting available balance for product %s: %v", productID, err)
		writeError(w, err)
		return
	}
	writeReport(w, balance)
}

// HandleBalanceSummary returns the month-to-date average balance per product
func (h *ReportHandler) HandleBalanceSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	customerID := r.PathValue("customerId")
	summary, err := h.reports.MonthlyBalanceSummary(r.Context(), customerID)
	if err != nil {
		log.Printf("Error generating balance summary for customer %s: %v", customerID, err)
		writeError(w, err)
		return
	}
	if len(summary.Products) == 0 {
		writeEmptyReport(w)
		return
	}
	writeReport(w, summary)
}

// HandleCommissions returns the fees a customer paid between start and end
func (h *ReportHandler) HandleCommissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	period, err := parsePeriod(r, h.location)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	customerID := r.PathValue("customerId")
	report, err := h.reports.CommissionReport(r.Context(), customerID, period)
	if err != nil {
		log.Printf("Error generating commission report for customer %s: %v", customerID, err)
		writeError(w, err)
		return
	}
	if len(report.Products) == 0 {
		writeEmptyReport(w)
		return
	}
	writeReport(w, report)
}

// HandleProductSummary lists customer products with their activity in a period
func (h *ReportHandler) HandleProductSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	period, err := parsePeriod(r, h.location)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	activeOnly := false
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		activeOnly, err = strconv.ParseBool(activeStr)
		if err != nil {
			writeBadRequest(w, "Invalid active flag (use true or false)")
			return
		}
	}

	customerID := r.PathValue("customerId")
	products, err := h.reports.ProductSummary(r.Context(), customerID, period, activeOnly)
	if err != nil {
		log.Printf("Error generating product summary for customer %s: %v", customerID, err)
		writeError(w, err)
		return
	}
	if len(products) == 0 {
		writeEmptyReport(w)
		return
	}
	writeReport(w, products)
}

func writeReport(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, ReportResponse{
		Status:  http.StatusOK,
		Message: MsgReportGenerated,
		Data:    data,
	})
}

func writeEmptyReport(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, ReportResponse{
		Status:  http.StatusNotFound,
		Message: MsgReportEmpty,
	})
}

// parsePeriod reads start and end as RFC 3339 timestamps or plain dates in
// loc. A plain end date covers the whole day. Missing values are left zero.
func parsePeriod(r *http.Request, loc *time.Location) (reporting.Period, error) {
	var period reporting.Period
	var err error

	if s := r.URL.Query().Get("start"); s != "" {
		if period.Start, err = parseTime(s, loc, false); err != nil {
			return period, fmt.Errorf("invalid start: %w", err)
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if period.End, err = parseTime(s, loc, true); err != nil {
			return period, fmt.Errorf("invalid end: %w", err)
		}
	}
	return period, nil
}

func parseTime(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, errors.New("use RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		// next midnight, so days shortened by a DST change stay whole
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
