package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/installment"
	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/mcclellann/fredBilling/pkg/scheduler"
	"github.com/mcclellann/fredBilling/pkg/store"
)

// Server exposes the ledger and the billing batch over HTTP.
type Server struct {
	ledger    *ledger.Ledger
	storage   store.Storage // Keep a reference to the storage to close it
	scheduler *scheduler.Scheduler
}

// NewServer wires the handlers. sch may be nil when no messaging gateway is
// configured; /billing/run then answers 503.
func NewServer(l *ledger.Ledger, s store.Storage, sch *scheduler.Scheduler) *Server {
	return &Server{
		ledger:    l,
		storage:   s,
		scheduler: sch,
	}
}

func (s *Server) Router(metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/obligations", s.createObligationHandler).Methods("POST")
	router.HandleFunc("/obligations/{id}", s.getObligationHandler).Methods("GET")
	router.HandleFunc("/obligations/{id}", s.deleteObligationHandler).Methods("DELETE")
	router.HandleFunc("/obligations/{id}/installments", s.installmentsHandler).Methods("GET")
	router.HandleFunc("/obligations/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/obligations/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/obligations/{id}/extra-installments", s.extraInstallmentsHandler).Methods("POST")
	router.HandleFunc("/payments/{id}", s.reversePaymentHandler).Methods("DELETE")

	router.HandleFunc("/tenants/{tenantID}/obligations", s.listObligationsHandler).Methods("GET")
	router.HandleFunc("/tenants/{tenantID}/billing-profile", s.getBillingProfileHandler).Methods("GET")
	router.HandleFunc("/tenants/{tenantID}/billing-profile", s.putBillingProfileHandler).Methods("PUT")
	router.HandleFunc("/tenants/{tenantID}/import-notes", s.importNotesHandler).Methods("POST")

	router.HandleFunc("/billing/run", s.runBillingHandler).Methods("POST")
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods("GET")
	}
	return router
}

type createObligationRequest struct {
	TenantID         uuid.UUID             `json:"tenant_id"`
	Type             models.ObligationType `json:"type"`
	ClientName       string                `json:"client_name"`
	ClientPhone      string                `json:"client_phone"`
	Description      string                `json:"description"`
	Principal        decimal.Decimal       `json:"principal"`
	InterestRate     decimal.Decimal       `json:"interest_rate"`
	InterestMode     models.InterestMode   `json:"interest_mode"`
	Cadence          models.Cadence        `json:"cadence"`
	InstallmentCount int                   `json:"installment_count"`
	FirstDueDate     string                `json:"first_due_date"` // YYYY-MM-DD
	LateFeePercent   decimal.Decimal       `json:"late_fee_percent"`
	LateInterestRate decimal.Decimal       `json:"late_interest_percent"`
	Notes            string                `json:"notes"`
}

func (s *Server) createObligationHandler(w http.ResponseWriter, r *http.Request) {
	var req createObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	firstDue, err := schedule.ParseDate(req.FirstDueDate)
	if err != nil {
		http.Error(w, "Invalid first_due_date", http.StatusBadRequest)
		return
	}

	o, err := s.ledger.CreateObligation(r.Context(), ledger.NewObligation{
		TenantID:         req.TenantID,
		Type:             req.Type,
		ClientName:       req.ClientName,
		ClientPhone:      req.ClientPhone,
		Description:      req.Description,
		Principal:        req.Principal,
		InterestRate:     req.InterestRate,
		InterestMode:     req.InterestMode,
		Cadence:          req.Cadence,
		InstallmentCount: req.InstallmentCount,
		FirstDueDate:     firstDue,
		LateFeePercent:   req.LateFeePercent,
		LateInterestRate: req.LateInterestRate,
		Notes:            req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) getObligationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.ledger.GetObligation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) deleteObligationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.ledger.DeleteObligation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listObligationsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	obligations, err := s.ledger.ListObligations(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if obligations == nil {
		obligations = []*models.Obligation{}
	}
	writeJSON(w, http.StatusOK, obligations)
}

type installmentsResponse struct {
	Installments []models.InstallmentEntry `json:"installments"`
	Paid         int                       `json:"paid"`
	Total        int                       `json:"total"`
	Percent      int                       `json:"percent"`
	StatusList   string                    `json:"status_list"`
}

func (s *Server) installmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := s.ledger.Installments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := installment.DefaultRenderOptions()
	opts.FormatMoney = message.FormatBRL
	paid, total, pct := installment.Progress(entries)
	writeJSON(w, http.StatusOK, installmentsResponse{
		Installments: entries,
		Paid:         paid,
		Total:        total,
		Percent:      pct,
		StatusList:   installment.RenderStatusList(entries, opts),
	})
}

type paymentRequest struct {
	Kind             models.PaymentKind `json:"kind"`
	Amount           decimal.Decimal    `json:"amount"`
	InstallmentIndex int                `json:"installment_index"`
	PaidOn           string             `json:"paid_on"`      // YYYY-MM-DD, defaults to today
	NewDueDate       string             `json:"new_due_date"` // YYYY-MM-DD, advances only
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	paidOn, err := optionalDate(req.PaidOn)
	if err != nil {
		http.Error(w, "Invalid paid_on", http.StatusBadRequest)
		return
	}
	newDue, err := optionalDate(req.NewDueDate)
	if err != nil {
		http.Error(w, "Invalid new_due_date", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.RecordPayment(r.Context(), id, ledger.PaymentRequest{
		Kind:             req.Kind,
		Amount:           req.Amount,
		InstallmentIndex: req.InstallmentIndex,
		PaidOn:           paidOn,
		NewDueDate:       newDue,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if payments == nil {
		payments = []*models.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) reversePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.ledger.ReversePayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) extraInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, err := s.ledger.AddInstallments(r.Context(), id, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) getBillingProfileHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	p, err := s.storage.GetBillingProfile(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putBillingProfileHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	var p models.TenantBillingProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.TenantID = tenantID // Ensure ID from URL is used

	if err := s.ledger.SaveBillingProfile(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) importNotesHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	res, err := s.ledger.ImportNotes(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) runBillingHandler(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "Messaging gateway not configured", http.StatusServiceUnavailable)
		return
	}
	var req scheduler.Request
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.TargetHour != nil && (*req.TargetHour < 0 || *req.TargetHour > 23) {
		http.Error(w, "target_hour must be between 0 and 23", http.StatusBadRequest)
		return
	}

	resp := s.scheduler.Run(r.Context(), req)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s", name), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return schedule.ParseDate(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrObligationNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound),
		errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrInvalidObligation),
		errors.Is(err, ledger.ErrInvalidPayment):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrObligationClosed),
		errors.Is(err, ledger.ErrOverpayment):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
