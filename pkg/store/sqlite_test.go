package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "billing.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := schedule.ParseDate(s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func newObligation(t *testing.T, tenantID uuid.UUID) *models.Obligation {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Obligation{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Type:             models.ObligationTypeLoan,
		ClientName:       "Maria",
		ClientPhone:      "11988887777",
		Principal:        decimal.NewFromInt(1000),
		InterestRate:     decimal.NewFromInt(10),
		InterestMode:     models.InterestPerInstallment,
		Cadence:          models.CadenceMonthly,
		InstallmentCount: 6,
		InstallmentValue: decimal.RequireFromString("266.67"),
		TotalInterest:    decimal.NewFromInt(600),
		DueDates:         schedule.Generate(date(t, "2024-02-01"), 6, models.CadenceMonthly),
		AnchorDay:        1,
		RemainingBalance: decimal.NewFromInt(1600),
		Status:           models.ObligationPending,
		LateFeePercent:   decimal.NewFromInt(2),
		LateInterestRate: decimal.RequireFromString("0.033"),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestSQLiteStore_CreateAndGetObligation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	o := newObligation(t, uuid.New())
	if err := s.CreateObligation(ctx, o); err != nil {
		t.Fatalf("Failed to create obligation: %v", err)
	}

	fetched, err := s.GetObligation(ctx, o.ID)
	if err != nil {
		t.Fatalf("Failed to get obligation: %v", err)
	}
	if fetched.ClientName != o.ClientName {
		t.Errorf("Expected ClientName %s, got %s", o.ClientName, fetched.ClientName)
	}
	if !fetched.InstallmentValue.Equal(o.InstallmentValue) {
		t.Errorf("Expected InstallmentValue %s, got %s", o.InstallmentValue, fetched.InstallmentValue)
	}
	if !fetched.LateInterestRate.Equal(o.LateInterestRate) {
		t.Errorf("Expected LateInterestRate %s, got %s", o.LateInterestRate, fetched.LateInterestRate)
	}
	if len(fetched.DueDates) != 6 || !fetched.DueDates[5].Equal(date(t, "2024-07-01")) {
		t.Errorf("Unexpected due dates %v", fetched.DueDates)
	}
	if fetched.AnchorDay != 1 {
		t.Errorf("Expected AnchorDay 1, got %d", fetched.AnchorDay)
	}
	if len(fetched.PaidByIndex) != 0 {
		t.Errorf("Expected no allocations, got %v", fetched.PaidByIndex)
	}
}

func TestSQLiteStore_GetMissingObligation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetObligation(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_PaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	o := newObligation(t, uuid.New())
	if err := s.CreateObligation(ctx, o); err != nil {
		t.Fatalf("Failed to create obligation: %v", err)
	}

	p := &models.PaymentRecord{
		ID:            uuid.New(),
		ObligationID:  o.ID,
		Kind:          models.PaymentInstallment,
		Amount:        decimal.NewFromInt(300),
		PaidOn:        date(t, "2024-02-01"),
		Notes:         "[PARTIAL_PAID:2:33.33]",
		PriorDueDates: o.DueDates,
		CreatedAt:     time.Now().UTC(),
	}
	allocs := []models.Allocation{
		{ID: uuid.New(), ObligationID: o.ID, PaymentID: &p.ID, InstallmentIndex: 1, Amount: decimal.RequireFromString("266.67"), Source: models.AllocationFromPayment, CreatedAt: p.CreatedAt},
		{ID: uuid.New(), ObligationID: o.ID, PaymentID: &p.ID, InstallmentIndex: 2, Amount: decimal.RequireFromString("33.33"), Source: models.AllocationFromPayment, CreatedAt: p.CreatedAt},
	}
	o.TotalPaid = decimal.NewFromInt(300)
	o.RemainingBalance = decimal.NewFromInt(1300)
	o.Notes = "[PARTIAL_PAID:2:33.33]"

	if err := s.SavePayment(ctx, o, p, allocs); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}

	fetched, err := s.GetObligation(ctx, o.ID)
	if err != nil {
		t.Fatalf("Failed to get obligation: %v", err)
	}
	if !fetched.TotalPaid.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected TotalPaid 300, got %s", fetched.TotalPaid)
	}
	if !fetched.PaidByIndex[2].Equal(decimal.RequireFromString("33.33")) {
		t.Errorf("Expected 33.33 on installment 2, got %s", fetched.PaidByIndex[2])
	}

	stored, err := s.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if !stored.PaidOn.Equal(p.PaidOn) || len(stored.PriorDueDates) != 6 || stored.Notes != p.Notes {
		t.Errorf("Payment did not round trip: %+v", stored)
	}

	payments, err := s.ListPayments(ctx, o.ID)
	if err != nil || len(payments) != 1 {
		t.Fatalf("Expected 1 payment, got %d (%v)", len(payments), err)
	}

	o.TotalPaid = decimal.Zero
	o.RemainingBalance = decimal.NewFromInt(1600)
	o.Notes = ""
	if err := s.DeletePayment(ctx, o, p.ID); err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}

	fetched, err = s.GetObligation(ctx, o.ID)
	if err != nil {
		t.Fatalf("Failed to get obligation: %v", err)
	}
	if len(fetched.PaidByIndex) != 0 {
		t.Errorf("Expected allocations removed, got %v", fetched.PaidByIndex)
	}
	if !fetched.RemainingBalance.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("Expected balance restored, got %s", fetched.RemainingBalance)
	}

	if err := s.DeletePayment(ctx, o, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSQLiteStore_FailedPaymentLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	o := newObligation(t, uuid.New())
	if err := s.CreateObligation(ctx, o); err != nil {
		t.Fatalf("Failed to create obligation: %v", err)
	}

	p := &models.PaymentRecord{ID: uuid.New(), ObligationID: o.ID, Kind: models.PaymentInstallment,
		Amount: decimal.NewFromInt(10), PaidOn: date(t, "2024-02-01"), CreatedAt: time.Now().UTC()}
	allocs := []models.Allocation{{ID: uuid.New(), ObligationID: o.ID, PaymentID: &p.ID, InstallmentIndex: 1,
		Amount: decimal.NewFromInt(10), Source: models.AllocationFromPayment, CreatedAt: p.CreatedAt}}

	// updating an obligation that does not exist aborts the whole transaction
	ghost := *o
	ghost.ID = uuid.New()
	if err := s.SavePayment(ctx, &ghost, p, allocs); err == nil {
		t.Fatal("Expected error saving payment for unknown obligation")
	}

	if _, err := s.GetPayment(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected payment rolled back, got %v", err)
	}
	fetched, err := s.GetObligation(ctx, o.ID)
	if err != nil {
		t.Fatalf("Failed to get obligation: %v", err)
	}
	if len(fetched.PaidByIndex) != 0 {
		t.Errorf("Expected allocations rolled back, got %v", fetched.PaidByIndex)
	}
}

func TestSQLiteStore_ListOpenObligationsAndImports(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tenant := uuid.New()

	open := newObligation(t, tenant)
	paid := newObligation(t, tenant)
	paid.Status = models.ObligationPaid
	other := newObligation(t, uuid.New())
	for _, o := range []*models.Obligation{open, paid, other} {
		if err := s.CreateObligation(ctx, o); err != nil {
			t.Fatalf("Failed to create obligation: %v", err)
		}
	}

	imported := []models.Allocation{
		{ID: uuid.New(), ObligationID: open.ID, InstallmentIndex: 1, Amount: decimal.NewFromInt(100), Source: models.AllocationFromImport, CreatedAt: time.Now().UTC()},
		{ID: uuid.New(), ObligationID: open.ID, InstallmentIndex: 1, Amount: decimal.NewFromInt(50), Source: models.AllocationFromImport, CreatedAt: time.Now().UTC()},
	}
	if err := s.ReplaceImportedAllocations(ctx, open.ID, imported); err != nil {
		t.Fatalf("Failed to import allocations: %v", err)
	}
	// importing again replaces rather than doubles
	if err := s.ReplaceImportedAllocations(ctx, open.ID, imported[:1]); err != nil {
		t.Fatalf("Failed to re-import allocations: %v", err)
	}

	all, err := s.ListObligations(ctx, tenant)
	if err != nil {
		t.Fatalf("Failed to list obligations: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 obligations for tenant, got %d", len(all))
	}

	openOnes, err := s.ListOpenObligations(ctx, tenant)
	if err != nil {
		t.Fatalf("Failed to list open obligations: %v", err)
	}
	if len(openOnes) != 1 || openOnes[0].ID != open.ID {
		t.Fatalf("Expected only the open obligation, got %d", len(openOnes))
	}
	if !openOnes[0].PaidByIndex[1].Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected 100 paid on installment 1, got %s", openOnes[0].PaidByIndex[1])
	}

	allocs, err := s.ListAllocations(ctx, open.ID)
	if err != nil || len(allocs) != 1 || allocs[0].PaymentID != nil {
		t.Errorf("Unexpected allocations %+v (%v)", allocs, err)
	}

	if err := s.DeleteObligation(ctx, open.ID); err != nil {
		t.Fatalf("Failed to delete obligation: %v", err)
	}
	if _, err := s.GetObligation(ctx, open.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStore_BillingProfilesAndSentLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var tenants []uuid.UUID
	for i := 0; i < 3; i++ {
		p := &models.TenantBillingProfile{
			TenantID:     uuid.New(),
			Name:         "Tenant",
			Active:       true,
			SendDueToday: true,
			SendHours:    []int{9, 18},
			PixKey:       "pix@example.com",
			UpdatedAt:    time.Now().UTC(),
		}
		if err := s.UpsertBillingProfile(ctx, p); err != nil {
			t.Fatalf("Failed to save profile: %v", err)
		}
		tenants = append(tenants, p.TenantID)
	}

	p, err := s.GetBillingProfile(ctx, tenants[0])
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if !p.Active || !p.SendDueToday || p.SendOverdue || len(p.SendHours) != 2 || p.SendHours[1] != 18 {
		t.Errorf("Profile did not round trip: %+v", p)
	}

	p.Active = false
	p.Signature = "Equipe"
	if err := s.UpsertBillingProfile(ctx, p); err != nil {
		t.Fatalf("Failed to update profile: %v", err)
	}
	p, _ = s.GetBillingProfile(ctx, tenants[0])
	if p.Active || p.Signature != "Equipe" {
		t.Errorf("Profile was not updated: %+v", p)
	}

	first, err := s.ListBillingProfiles(ctx, 0, 2)
	if err != nil || len(first) != 2 {
		t.Fatalf("Expected first page of 2, got %d (%v)", len(first), err)
	}
	second, err := s.ListBillingProfiles(ctx, 2, 2)
	if err != nil || len(second) != 1 {
		t.Fatalf("Expected second page of 1, got %d (%v)", len(second), err)
	}

	today := date(t, "2024-03-11")
	for _, phone := range []string{"5511988887777", "5511988887777", "5521977776666"} {
		if err := s.AppendSentLog(ctx, models.SentLogEntry{TenantID: tenants[1], Phone: phone, SentOn: today}); err != nil {
			t.Fatalf("Failed to append sent log: %v", err)
		}
	}
	phones, err := s.SentPhones(ctx, tenants[1], today)
	if err != nil {
		t.Fatalf("Failed to read sent log: %v", err)
	}
	if len(phones) != 2 {
		t.Errorf("Expected 2 distinct phones, got %v", phones)
	}
	if phones, _ := s.SentPhones(ctx, tenants[1], today.AddDate(0, 0, 1)); len(phones) != 0 {
		t.Errorf("Expected nothing logged tomorrow, got %v", phones)
	}
	if phones, _ := s.SentPhones(ctx, tenants[0], today); len(phones) != 0 {
		t.Errorf("Expected nothing logged for another tenant, got %v", phones)
	}
}
