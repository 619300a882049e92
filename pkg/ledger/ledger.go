// Package ledger registers obligations and their payments. Every write keeps
// the installment ledger, the obligation's aggregates and the notes tags in
// step, and persists them together.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/annotation"
	"github.com/mcclellann/fredBilling/pkg/installment"
	"github.com/mcclellann/fredBilling/pkg/interest"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/mcclellann/fredBilling/pkg/store"
)

// Ledger handles the business logic for obligations and payments.
type Ledger struct {
	storage store.Storage
	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger
}

type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the timezone that decides which calendar day is today.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		now:     time.Now,
		loc:     time.UTC,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) today() time.Time {
	return schedule.Today(l.now(), l.loc)
}

// NewObligation holds what is agreed when an obligation is signed.
type NewObligation struct {
	TenantID         uuid.UUID
	Type             models.ObligationType
	ClientName       string
	ClientPhone      string
	Description      string
	Principal        decimal.Decimal // fee per cycle for recurring fees
	InterestRate     decimal.Decimal // daily profit for daily loans
	InterestMode     models.InterestMode
	Cadence          models.Cadence
	InstallmentCount int
	FirstDueDate     time.Time
	LateFeePercent   decimal.Decimal
	LateInterestRate decimal.Decimal
	Notes            string
}

// CreateObligation validates the terms, computes interest, installment value
// and due dates, and stores the new obligation.
func (l *Ledger) CreateObligation(ctx context.Context, req NewObligation) (*models.Obligation, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	o := &models.Obligation{
		ID:               uuid.New(),
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
		LateFeePercent:   req.LateFeePercent,
		LateInterestRate: req.LateInterestRate,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	switch {
	case o.Type == models.ObligationTypeRecurringFee:
		o.Cadence = models.CadenceMonthly
		o.InstallmentCount = 1
		o.InstallmentValue = o.Principal
		o.TotalInterest = decimal.Zero
		o.DueDates = []time.Time{schedule.Day(req.FirstDueDate)}
	case o.IsDaily():
		o.TotalInterest = interest.DailyTotalInterest(o.InterestRate, o.InstallmentCount)
		o.InstallmentValue = o.InterestRate
		o.DueDates = schedule.Generate(req.FirstDueDate, o.InstallmentCount, o.Cadence)
	default:
		o.TotalInterest = interest.TotalInterest(o.Principal, o.InterestRate, o.InstallmentCount, o.InterestMode)
		o.InstallmentValue = interest.InstallmentValue(o.Principal, o.TotalInterest, o.InstallmentCount)
		o.DueDates = schedule.Generate(req.FirstDueDate, o.InstallmentCount, o.Cadence)
	}
	o.AnchorDay = schedule.Day(req.FirstDueDate).Day()
	l.settle(o)

	if err := l.storage.CreateObligation(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to store obligation: %w", err)
	}
	l.logger.Info("obligation created", "obligation_id", o.ID, "tenant_id", o.TenantID,
		"type", o.Type, "installments", o.InstallmentCount, "installment_value", o.InstallmentValue.StringFixed(2))
	return o, nil
}

func validate(req NewObligation) error {
	switch {
	case req.TenantID == uuid.Nil:
		return fmt.Errorf("%w: tenant is required", ErrInvalidObligation)
	case req.ClientName == "":
		return fmt.Errorf("%w: client name is required", ErrInvalidObligation)
	case !req.Principal.IsPositive():
		return fmt.Errorf("%w: principal must be positive", ErrInvalidObligation)
	case req.InterestRate.IsNegative():
		return fmt.Errorf("%w: interest rate cannot be negative", ErrInvalidObligation)
	case req.FirstDueDate.IsZero():
		return fmt.Errorf("%w: first due date is required", ErrInvalidObligation)
	}

	switch req.Type {
	case models.ObligationTypeRecurringFee:
		return nil
	case models.ObligationTypeLoan, models.ObligationTypeVehicleSale, models.ObligationTypeProductSale:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidObligation, req.Type)
	}

	if req.InstallmentCount < 1 {
		return fmt.Errorf("%w: installment count must be at least 1", ErrInvalidObligation)
	}
	switch req.Cadence {
	case models.CadenceSingle:
		if req.InstallmentCount != 1 {
			return fmt.Errorf("%w: single cadence has exactly one installment", ErrInvalidObligation)
		}
	case models.CadenceMonthly, models.CadenceWeekly, models.CadenceBiweekly, models.CadenceDaily:
	default:
		return fmt.Errorf("%w: unknown cadence %q", ErrInvalidObligation, req.Cadence)
	}
	if req.Type == models.ObligationTypeLoan && req.Cadence == models.CadenceDaily {
		return nil
	}
	switch req.InterestMode {
	case models.InterestPerInstallment, models.InterestOnTotal, models.InterestCompoundPure, models.InterestCompoundPrice:
		return nil
	}
	return fmt.Errorf("%w: unknown interest mode %q", ErrInvalidObligation, req.InterestMode)
}

// GetObligation retrieves an obligation by its ID.
func (l *Ledger) GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	o, err := l.storage.GetObligation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, err
	}
	return o, nil
}

func (l *Ledger) ListObligations(ctx context.Context, tenantID uuid.UUID) ([]*models.Obligation, error) {
	return l.storage.ListObligations(ctx, tenantID)
}

// DeleteObligation removes the obligation together with its payments.
func (l *Ledger) DeleteObligation(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteObligation(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrObligationNotFound
		}
		return err
	}
	return nil
}

// Installments resolves the obligation's installments as of today.
func (l *Ledger) Installments(ctx context.Context, id uuid.UUID) ([]models.InstallmentEntry, error) {
	o, err := l.GetObligation(ctx, id)
	if err != nil {
		return nil, err
	}
	return installment.ForObligation(o, l.today()), nil
}

func (l *Ledger) ListPayments(ctx context.Context, obligationID uuid.UUID) ([]*models.PaymentRecord, error) {
	if _, err := l.GetObligation(ctx, obligationID); err != nil {
		return nil, err
	}
	return l.storage.ListPayments(ctx, obligationID)
}

// PaymentRequest describes one payment. InstallmentIndex is 1-based; zero
// means the first unpaid installment. NewDueDate is required for advances.
type PaymentRequest struct {
	Kind             models.PaymentKind
	Amount           decimal.Decimal
	InstallmentIndex int
	PaidOn           time.Time
	NewDueDate       time.Time
}

// RecordPayment applies a payment to the obligation and stores the payment,
// its allocations and the updated obligation in one transaction.
func (l *Ledger) RecordPayment(ctx context.Context, obligationID uuid.UUID, req PaymentRequest) (*models.PaymentRecord, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	o, err := l.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.ObligationPaid {
		return nil, ErrObligationClosed
	}

	today := l.today()
	now := l.now().UTC()
	p := &models.PaymentRecord{
		ID:           uuid.New(),
		ObligationID: o.ID,
		Kind:         req.Kind,
		Amount:       req.Amount,
		PaidOn:       schedule.Day(req.PaidOn),
		CreatedAt:    now,
	}
	if req.PaidOn.IsZero() {
		p.PaidOn = today
	}

	var allocs []models.Allocation
	switch req.Kind {
	case models.PaymentInstallment, "":
		p.Kind = models.PaymentInstallment
		allocs, err = l.payInstallments(o, p, req, today)
	case models.PaymentInterestOnly:
		err = l.payInterestOnly(o, p, req, today)
	case models.PaymentAmortization:
		err = l.payAmortization(o, p, today)
	case models.PaymentAdvance:
		allocs, err = l.payAdvance(o, p, req, today)
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidPayment, req.Kind)
	}
	if err != nil {
		return nil, err
	}

	o.TotalPaid = o.TotalPaid.Add(p.Amount)
	o.UpdatedAt = now
	l.settle(o)

	if err := l.storage.SavePayment(ctx, o, p, allocs); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}
	l.logger.Info("payment recorded", "obligation_id", o.ID, "payment_id", p.ID, "kind", p.Kind,
		"amount", p.Amount.StringFixed(2), "remaining", o.RemainingBalance.StringFixed(2), "status", o.Status)
	return p, nil
}

// payInstallments spreads the amount over unpaid installments starting at the
// requested or first unpaid one. Anything left over lands on the last
// installment it touched.
func (l *Ledger) payInstallments(o *models.Obligation, p *models.PaymentRecord, req PaymentRequest, today time.Time) ([]models.Allocation, error) {
	entries := installment.ForObligation(o, today)
	start, err := startIndex(entries, req.InstallmentIndex)
	if err != nil {
		return nil, err
	}

	if o.Type == models.ObligationTypeRecurringFee {
		if p.Amount.GreaterThan(outstanding(entries[start-1:])) {
			return nil, ErrOverpayment
		}
	} else if p.Amount.GreaterThan(o.RemainingBalance) {
		return nil, ErrOverpayment
	}

	amounts := make(map[int]decimal.Decimal)
	var order []int
	rest := p.Amount
	for _, e := range entries[start-1:] {
		if !rest.IsPositive() {
			break
		}
		if e.Status == models.InstallmentPaid {
			continue
		}
		take := decimal.Min(rest, e.Outstanding())
		if !take.IsPositive() {
			continue
		}
		amounts[e.Index] = take
		order = append(order, e.Index)
		rest = rest.Sub(take)
	}
	if rest.IsPositive() {
		last := entries[len(entries)-1].Index
		if len(order) > 0 {
			last = order[len(order)-1]
		} else {
			order = append(order, last)
		}
		amounts[last] = amounts[last].Add(rest)
	}

	var tags []annotation.Tag
	allocs := make([]models.Allocation, 0, len(order))
	for _, idx := range order {
		allocs = append(allocs, l.allocation(o, p, idx, amounts[idx]))
		o.Notes = annotation.ApplyPartial(o.Notes, idx, amounts[idx])
		tags = append(tags, annotation.Partial(idx, amounts[idx]))
	}
	p.Notes = annotation.Restate(tags...)
	p.PrincipalPortion, p.InterestPortion = split(o, p.Amount)
	credit(o, allocs)
	return allocs, nil
}

// payInterestOnly pays the interest of one installment and pushes it and
// every later due date one cadence step forward.
func (l *Ledger) payInterestOnly(o *models.Obligation, p *models.PaymentRecord, req PaymentRequest, today time.Time) error {
	if o.Type == models.ObligationTypeRecurringFee {
		return fmt.Errorf("%w: recurring fees have no interest", ErrInvalidPayment)
	}
	entries := installment.ForObligation(o, today)
	idx, err := startIndex(entries, req.InstallmentIndex)
	if err != nil {
		return err
	}

	p.PriorDueDates = append([]time.Time(nil), o.DueDates...)
	prevDue := o.DueDates[idx-1]
	shiftFrom(o, idx, 1)

	o.TotalInterest = o.TotalInterest.Add(p.Amount)
	p.InterestPortion = p.Amount
	p.PrincipalPortion = decimal.Zero

	tag := annotation.InterestOnly(idx, p.Amount, prevDue, o.DueDates[idx-1])
	o.Notes = annotation.AppendTag(o.Notes, tag)
	p.Notes = annotation.Restate(tag)
	return nil
}

// payAmortization pays principal down outside the schedule and re-levels the
// unpaid installments over what is left.
func (l *Ledger) payAmortization(o *models.Obligation, p *models.PaymentRecord, today time.Time) error {
	if o.Type == models.ObligationTypeRecurringFee || o.IsDaily() {
		return fmt.Errorf("%w: amortization needs a level schedule", ErrInvalidPayment)
	}
	if p.Amount.GreaterThan(o.RemainingBalance) {
		return ErrOverpayment
	}

	tag := annotation.Amortization(p.Amount, o.RemainingBalance, o.TotalInterest, o.InstallmentValue, p.PaidOn)

	relevel(o, o.RemainingBalance.Sub(p.Amount), today)

	p.PrincipalPortion = p.Amount
	p.InterestPortion = decimal.Zero
	o.Notes = annotation.AppendTag(o.Notes, tag)
	p.Notes = annotation.Restate(tag)
	return nil
}

// payAdvance credits part of one installment and moves its due date.
func (l *Ledger) payAdvance(o *models.Obligation, p *models.PaymentRecord, req PaymentRequest, today time.Time) ([]models.Allocation, error) {
	if o.Type == models.ObligationTypeRecurringFee {
		return nil, fmt.Errorf("%w: recurring fees cannot be advanced", ErrInvalidPayment)
	}
	if req.NewDueDate.IsZero() {
		return nil, fmt.Errorf("%w: new due date is required", ErrInvalidPayment)
	}
	if p.Amount.GreaterThan(o.RemainingBalance) {
		return nil, ErrOverpayment
	}
	entries := installment.ForObligation(o, today)
	idx, err := startIndex(entries, req.InstallmentIndex)
	if err != nil {
		return nil, err
	}

	p.PriorDueDates = append([]time.Time(nil), o.DueDates...)
	prevDue := o.DueDates[idx-1]
	newDue := schedule.Day(req.NewDueDate)
	o.DueDates[idx-1] = newDue

	allocs := []models.Allocation{l.allocation(o, p, idx, p.Amount)}
	credit(o, allocs)

	o.Notes = annotation.ApplyPartial(o.Notes, idx, p.Amount)
	adv := annotation.Advance(idx, p.Amount, prevDue, newDue)
	o.Notes = annotation.AppendTag(o.Notes, adv)
	p.Notes = annotation.Restate(annotation.Partial(idx, p.Amount), adv)
	p.PrincipalPortion, p.InterestPortion = split(o, p.Amount)
	return allocs, nil
}

// ReversePayment undoes a payment: its allocations and row are deleted and the
// obligation's totals, schedule and notes are rolled back in one transaction.
func (l *Ledger) ReversePayment(ctx context.Context, paymentID uuid.UUID) (*models.Obligation, error) {
	p, err := l.storage.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	o, err := l.GetObligation(ctx, p.ObligationID)
	if err != nil {
		return nil, err
	}
	allocs, err := l.storage.ListAllocations(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	var own []models.Allocation
	for _, a := range allocs {
		if a.PaymentID != nil && *a.PaymentID == p.ID {
			own = append(own, a)
		}
	}
	debit(o, own)
	o.TotalPaid = o.TotalPaid.Sub(p.Amount)

	// undo this payment's own move only; later payments keep theirs
	rev := annotation.ReversePayment(o.Notes, p.Notes)
	for _, t := range rev.Tags {
		if t.Index < 1 || t.Index > len(o.DueDates) {
			continue
		}
		switch {
		case p.Kind == models.PaymentInterestOnly && t.Kind == annotation.KindInterestOnly:
			shiftFrom(o, t.Index, -1)
		case p.Kind == models.PaymentAdvance && t.Kind == annotation.KindAdvance:
			if !o.DueDates[t.Index-1].Equal(t.NewDue) {
				l.logger.Warn("installment rescheduled after the advance, due date kept",
					"obligation_id", o.ID, "payment_id", p.ID, "installment", t.Index)
				continue
			}
			o.DueDates[t.Index-1] = t.PrevDue
		}
	}
	switch p.Kind {
	case models.PaymentInterestOnly:
		o.TotalInterest = o.TotalInterest.Sub(p.Amount)
	case models.PaymentAmortization:
		l.settle(o)
		relevel(o, o.RemainingBalance, l.today())
	}

	if rev.Matched {
		o.Notes = rev.Notes
	}
	if len(rev.Unmatched) > 0 {
		l.logger.Warn("payment tags not found in notes, notes left as they were",
			"obligation_id", o.ID, "payment_id", p.ID, "unmatched", len(rev.Unmatched))
	}

	o.UpdatedAt = l.now().UTC()
	l.settle(o)
	if err := l.storage.DeletePayment(ctx, o, p.ID); err != nil {
		return nil, fmt.Errorf("failed to reverse payment: %w", err)
	}
	l.logger.Info("payment reversed", "obligation_id", o.ID, "payment_id", p.ID, "kind", p.Kind,
		"amount", p.Amount.StringFixed(2), "remaining", o.RemainingBalance.StringFixed(2))
	return o, nil
}

// shiftFrom moves installment idx and every later due date by steps cadence
// steps. Obligations stored without an anchor get one on first use.
func shiftFrom(o *models.Obligation, idx, steps int) {
	if o.AnchorDay == 0 && len(o.DueDates) > 0 {
		o.AnchorDay = o.DueDates[0].Day()
	}
	for k := idx - 1; k < len(o.DueDates); k++ {
		o.DueDates[k] = schedule.Shift(o.DueDates[k], steps, o.Cadence, o.AnchorDay)
	}
}

// relevel spreads remaining, plus what was already paid on them, evenly over
// the installments not yet paid.
func relevel(o *models.Obligation, remaining decimal.Decimal, today time.Time) {
	var unpaid int
	partial := decimal.Zero
	for _, e := range installment.ForObligation(o, today) {
		if e.Status != models.InstallmentPaid {
			unpaid++
			partial = partial.Add(e.Paid)
		}
	}
	if unpaid > 0 {
		o.InstallmentValue = remaining.Add(partial).Div(decimal.NewFromInt(int64(unpaid))).Round(2)
	}
}

// AddInstallments extends the schedule by count installments of the current
// value, each carrying its share of interest.
func (l *Ledger) AddInstallments(ctx context.Context, obligationID uuid.UUID, count int) (*models.Obligation, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be at least 1", ErrInvalidObligation)
	}
	o, err := l.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if o.Type == models.ObligationTypeRecurringFee || o.Cadence == models.CadenceSingle {
		return nil, fmt.Errorf("%w: schedule cannot be extended", ErrInvalidObligation)
	}

	o.DueDates = schedule.Extend(o.DueDates, count, o.Cadence, o.AnchorDay)
	o.InstallmentCount += count
	o.TotalInterest = o.TotalInterest.Add(o.InstallmentValue.Mul(decimal.NewFromInt(int64(count))))
	o.Notes = annotation.AppendTag(o.Notes, annotation.ExtraInstallments(count, l.today()))
	o.UpdatedAt = l.now().UTC()
	l.settle(o)

	if err := l.storage.UpdateObligation(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to extend obligation: %w", err)
	}
	l.logger.Info("installments added", "obligation_id", o.ID, "count", count, "installments", o.InstallmentCount)
	return o, nil
}

// ImportResult counts what ImportNotes moved into the installment ledger.
type ImportResult struct {
	Obligations int `json:"obligations"`
	Allocations int `json:"allocations"`
	Skipped     int `json:"skipped"`
}

// ImportNotes rebuilds the installment ledger of the tenant's legacy
// obligations from the partial-payment tags in their notes. Obligations that
// already have payments registered here are skipped. Re-running replaces
// earlier imports.
func (l *Ledger) ImportNotes(ctx context.Context, tenantID uuid.UUID) (ImportResult, error) {
	var res ImportResult
	obligations, err := l.storage.ListObligations(ctx, tenantID)
	if err != nil {
		return res, err
	}

	now := l.now().UTC()
	for _, o := range obligations {
		imp := annotation.ImportNotes(o.Notes)
		if len(imp.Partials) == 0 {
			continue
		}
		existing, err := l.storage.ListAllocations(ctx, o.ID)
		if err != nil {
			return res, err
		}
		if hasPaymentAllocations(existing) {
			res.Skipped++
			continue
		}

		indices := make([]int, 0, len(imp.Partials))
		for idx := range imp.Partials {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		allocs := make([]models.Allocation, 0, len(indices))
		paid := make(map[int]decimal.Decimal, len(indices))
		for _, idx := range indices {
			amount := imp.Partials[idx]
			if idx < 1 || !amount.IsPositive() {
				continue
			}
			allocs = append(allocs, models.Allocation{
				ID:               uuid.New(),
				ObligationID:     o.ID,
				InstallmentIndex: idx,
				Amount:           amount,
				Source:           models.AllocationFromImport,
				CreatedAt:        now,
			})
			paid[idx] = amount
		}
		if err := l.storage.ReplaceImportedAllocations(ctx, o.ID, allocs); err != nil {
			return res, fmt.Errorf("failed to import obligation %s: %w", o.ID, err)
		}

		o.PaidByIndex = paid
		o.UpdatedAt = now
		l.settle(o)
		if err := l.storage.UpdateObligation(ctx, o); err != nil {
			return res, err
		}
		res.Obligations++
		res.Allocations += len(allocs)
	}
	l.logger.Info("legacy notes imported", "tenant_id", tenantID,
		"obligations", res.Obligations, "allocations", res.Allocations, "skipped", res.Skipped)
	return res, nil
}

func hasPaymentAllocations(allocs []models.Allocation) bool {
	for _, a := range allocs {
		if a.Source == models.AllocationFromPayment {
			return true
		}
	}
	return false
}

// SaveBillingProfile validates and stores the tenant's reminder preferences.
func (l *Ledger) SaveBillingProfile(ctx context.Context, p *models.TenantBillingProfile) error {
	if p.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant is required", ErrInvalidObligation)
	}
	for _, h := range p.SendHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: send hour %d out of range", ErrInvalidObligation, h)
		}
	}
	p.UpdatedAt = l.now().UTC()
	return l.storage.UpsertBillingProfile(ctx, p)
}

// settle recomputes the remaining balance and status from the totals and the
// installment ledger.
func (l *Ledger) settle(o *models.Obligation) {
	today := l.today()
	entries := installment.ForObligation(o, today)

	if o.Type == models.ObligationTypeRecurringFee {
		owed := decimal.Zero
		for _, e := range entries {
			if !e.DueDate.After(today) {
				owed = owed.Add(e.Value)
			}
		}
		o.RemainingBalance = decimal.Max(owed.Sub(o.TotalPaid), decimal.Zero)
		o.Status = models.ObligationPending
		if installment.HasOverdue(entries) {
			o.Status = models.ObligationOverdue
		}
		return
	}

	o.RemainingBalance = o.Principal.Add(o.TotalInterest).Sub(o.TotalPaid)
	switch {
	case !o.RemainingBalance.IsPositive() || installment.AllPaid(entries):
		o.Status = models.ObligationPaid
	case installment.HasOverdue(entries):
		o.Status = models.ObligationOverdue
	default:
		o.Status = models.ObligationPending
	}
}

func (l *Ledger) allocation(o *models.Obligation, p *models.PaymentRecord, idx int, amount decimal.Decimal) models.Allocation {
	pid := p.ID
	return models.Allocation{
		ID:               uuid.New(),
		ObligationID:     o.ID,
		PaymentID:        &pid,
		InstallmentIndex: idx,
		Amount:           amount,
		Source:           models.AllocationFromPayment,
		CreatedAt:        p.CreatedAt,
	}
}

// startIndex validates a requested 1-based index, or picks the first unpaid one.
func startIndex(entries []models.InstallmentEntry, requested int) (int, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: obligation has no installments", ErrInvalidPayment)
	}
	if requested != 0 {
		if requested < 1 || requested > len(entries) {
			return 0, fmt.Errorf("%w: installment %d does not exist", ErrInvalidPayment, requested)
		}
		return requested, nil
	}
	if e, ok := installment.FirstUnpaid(entries); ok {
		return e.Index, nil
	}
	return 0, ErrObligationClosed
}

func outstanding(entries []models.InstallmentEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Outstanding())
	}
	return sum
}

// split divides a payment between principal and interest in the proportion
// they make up of the obligation.
func split(o *models.Obligation, amount decimal.Decimal) (principal, interestPart decimal.Decimal) {
	total := o.Principal.Add(o.TotalInterest)
	if o.Type == models.ObligationTypeRecurringFee || !total.IsPositive() || o.TotalInterest.IsZero() {
		return amount, decimal.Zero
	}
	principal = amount.Mul(o.Principal).Div(total).Round(2)
	return principal, amount.Sub(principal)
}

func credit(o *models.Obligation, allocs []models.Allocation) {
	if o.PaidByIndex == nil {
		o.PaidByIndex = make(map[int]decimal.Decimal)
	}
	for _, a := range allocs {
		o.PaidByIndex[a.InstallmentIndex] = o.PaidByIndex[a.InstallmentIndex].Add(a.Amount)
	}
}

func debit(o *models.Obligation, allocs []models.Allocation) {
	for _, a := range allocs {
		rest := o.PaidByIndex[a.InstallmentIndex].Sub(a.Amount)
		if rest.IsPositive() {
			o.PaidByIndex[a.InstallmentIndex] = rest
		} else {
			delete(o.PaidByIndex, a.InstallmentIndex)
		}
	}
}
