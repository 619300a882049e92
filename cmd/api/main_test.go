package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/scheduler"
	"github.com/mcclellann/fredBilling/pkg/store"
)

var fixedNow = time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)

type recordingSender struct {
	phones []string
}

func (r *recordingSender) SendText(ctx context.Context, instance, phone, text string) error {
	r.phones = append(r.phones, phone)
	return nil
}

type testServer struct {
	router  *mux.Router
	storage *store.SQLiteStore
	sender  *recordingSender
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return fixedNow }
	reg := prometheus.NewRegistry()
	sender := &recordingSender{}
	sch := scheduler.New(s, sender, scheduler.Options{
		BatchSize:       10,
		DefaultSendHour: 12,
		CountryCode:     "55",
		Now:             clock,
		Metrics:         metrics.NewRecorder(reg),
	})
	server := NewServer(ledger.NewLedger(s, ledger.WithClock(clock)), s, sch)

	return &testServer{
		router:  server.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		storage: s,
		sender:  sender,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func loanRequest(tenantID uuid.UUID, phone, firstDue string) map[string]any {
	return map[string]any{
		"tenant_id":         tenantID,
		"type":              "loan",
		"client_name":       "Maria",
		"client_phone":      phone,
		"principal":         1000,
		"interest_rate":     10,
		"interest_mode":     "per_installment",
		"cadence":           "monthly",
		"installment_count": 6,
		"first_due_date":    firstDue,
	}
}

func TestAPI_CreateAndGetObligation(t *testing.T) {
	ts := setupTestServer(t)
	tenantID := uuid.New()

	rr := ts.do(t, "POST", "/obligations", loanRequest(tenantID, "11988887777", "2024-02-01"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[models.Obligation](t, rr)

	if !created.InstallmentValue.Equal(decimal.RequireFromString("266.67")) {
		t.Errorf("Expected installment value 266.67, got %s", created.InstallmentValue)
	}
	if created.Status != models.ObligationOverdue {
		t.Errorf("Expected status overdue, got %s", created.Status)
	}

	rr = ts.do(t, "GET", "/obligations/"+created.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	fetched := decode[models.Obligation](t, rr)
	if fetched.ID != created.ID {
		t.Errorf("Expected ID %s, got %s", created.ID, fetched.ID)
	}

	rr = ts.do(t, "GET", "/tenants/"+tenantID.String()+"/obligations", nil)
	if list := decode[[]models.Obligation](t, rr); len(list) != 1 {
		t.Errorf("Expected 1 obligation for tenant, got %d", len(list))
	}
}

func TestAPI_ErrorStatuses(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", "GET", "/obligations/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown obligation", "GET", "/obligations/" + uuid.NewString(), nil, http.StatusNotFound},
		{"unknown payment", "DELETE", "/payments/" + uuid.NewString(), nil, http.StatusNotFound},
		{"missing first due date", "POST", "/obligations", map[string]any{"tenant_id": uuid.New()}, http.StatusBadRequest},
		{"invalid terms", "POST", "/obligations", map[string]any{
			"tenant_id": uuid.New(), "type": "loan", "client_name": "Maria", "principal": 0,
			"installment_count": 1, "cadence": "single", "interest_mode": "on_total", "first_due_date": "2024-03-11",
		}, http.StatusBadRequest},
		{"unknown profile", "GET", "/tenants/" + uuid.NewString() + "/billing-profile", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := ts.do(t, tt.method, tt.path, tt.body); rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAPI_PaymentLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	rr := ts.do(t, "POST", "/obligations", loanRequest(uuid.New(), "11988887777", "2024-02-01"))
	o := decode[models.Obligation](t, rr)
	base := "/obligations/" + o.ID.String()

	rr = ts.do(t, "POST", base+"/payments", map[string]any{"amount": 5000})
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected overpayment to be 409, got %d", rr.Code)
	}

	rr = ts.do(t, "POST", base+"/payments", map[string]any{"amount": 300, "paid_on": "2024-03-10"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	payment := decode[models.PaymentRecord](t, rr)
	if payment.Kind != models.PaymentInstallment {
		t.Errorf("Expected kind installment, got %s", payment.Kind)
	}

	rr = ts.do(t, "GET", base+"/installments", nil)
	view := decode[installmentsResponse](t, rr)
	if view.Total != 6 || view.Paid != 1 {
		t.Errorf("Expected 1 of 6 paid, got %d of %d", view.Paid, view.Total)
	}
	if !view.Installments[1].Paid.Equal(decimal.RequireFromString("33.33")) {
		t.Errorf("Expected 33.33 on installment 2, got %s", view.Installments[1].Paid)
	}
	if !strings.Contains(view.StatusList, "R$ 266,67") {
		t.Errorf("Expected BRL amounts in status list, got %q", view.StatusList)
	}

	rr = ts.do(t, "GET", base+"/payments", nil)
	if payments := decode[[]models.PaymentRecord](t, rr); len(payments) != 1 {
		t.Fatalf("Expected 1 payment, got %d", len(payments))
	}

	rr = ts.do(t, "DELETE", "/payments/"+payment.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	restored := decode[models.Obligation](t, rr)
	if !restored.RemainingBalance.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("Expected remaining 1600 after reversal, got %s", restored.RemainingBalance)
	}
	if restored.Notes != "" {
		t.Errorf("Expected notes to be cleaned, got %q", restored.Notes)
	}
}

func TestAPI_ExtraInstallments(t *testing.T) {
	ts := setupTestServer(t)
	rr := ts.do(t, "POST", "/obligations", loanRequest(uuid.New(), "11988887777", "2024-02-01"))
	o := decode[models.Obligation](t, rr)

	rr = ts.do(t, "POST", "/obligations/"+o.ID.String()+"/extra-installments", map[string]any{"count": 0})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for zero count, got %d", rr.Code)
	}

	rr = ts.do(t, "POST", "/obligations/"+o.ID.String()+"/extra-installments", map[string]any{"count": 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	extended := decode[models.Obligation](t, rr)
	if extended.InstallmentCount != 8 || len(extended.DueDates) != 8 {
		t.Errorf("Expected 8 installments, got %d with %d dates", extended.InstallmentCount, len(extended.DueDates))
	}
}

func TestAPI_BillingRun(t *testing.T) {
	ts := setupTestServer(t)
	tenantID := uuid.New()

	rr := ts.do(t, "PUT", "/tenants/"+tenantID.String()+"/billing-profile", map[string]any{
		"name":               "Loja Centro",
		"active":             true,
		"instance_name":      "loja-centro",
		"instance_connected": true,
		"send_due_today":     true,
		"send_overdue":       true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	ts.do(t, "POST", "/obligations", loanRequest(tenantID, "(11) 98888-7777", "2024-03-11"))

	rr = ts.do(t, "POST", "/billing/run", map[string]any{"batch": 0, "batch_size": 10})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[scheduler.Response](t, rr)
	if !resp.Success || resp.SentCount != 1 {
		t.Errorf("Expected one reminder sent, got %+v", resp)
	}
	if len(ts.sender.phones) != 1 || ts.sender.phones[0] != "5511988887777" {
		t.Errorf("Expected reminder to 5511988887777, got %v", ts.sender.phones)
	}

	rr = ts.do(t, "POST", "/billing/run", nil)
	if resp := decode[scheduler.Response](t, rr); resp.SentCount != 0 || resp.SkippedCount != 1 {
		t.Errorf("Expected second run to skip the phone, got %+v", resp)
	}

	rr = ts.do(t, "GET", "/metrics", nil)
	if !strings.Contains(rr.Body.String(), `fredbilling_reminders_sent_total{urgency="due_today"} 1`) {
		t.Errorf("Expected sent counter in metrics output")
	}
}

func TestAPI_BillingRunWithoutGateway(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	router := NewServer(ledger.NewLedger(s), s, nil).Router(nil)
	req := httptest.NewRequest("POST", "/billing/run", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}
