package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ObligationType string

const (
	ObligationTypeLoan         ObligationType = "loan"
	ObligationTypeVehicleSale  ObligationType = "vehicle_sale"
	ObligationTypeProductSale  ObligationType = "product_sale"
	ObligationTypeRecurringFee ObligationType = "recurring_fee"
)

type InterestMode string

const (
	InterestPerInstallment InterestMode = "per_installment" // rate charged on the full principal for every installment
	InterestOnTotal        InterestMode = "on_total"        // single charge regardless of count
	InterestCompoundPure   InterestMode = "compound_pure"
	InterestCompoundPrice  InterestMode = "compound_price" // annuity (Price table)
)

type Cadence string

const (
	CadenceSingle   Cadence = "single"
	CadenceMonthly  Cadence = "monthly"
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceDaily    Cadence = "daily"
)

type ObligationStatus string

const (
	ObligationPending ObligationStatus = "pending"
	ObligationOverdue ObligationStatus = "overdue"
	ObligationPaid    ObligationStatus = "paid"
)

type InstallmentStatus string

const (
	InstallmentPaid     InstallmentStatus = "paid"
	InstallmentOverdue  InstallmentStatus = "overdue"
	InstallmentDueToday InstallmentStatus = "due_today"
	InstallmentPending  InstallmentStatus = "pending"
)

type Urgency string

const (
	UrgencyDueToday Urgency = "due_today"
	UrgencyOverdue  Urgency = "overdue"
)

// Obligation is any agreement with a schedule of amounts owed: a loan, a
// vehicle or product sold in installments, or a recurring fee.
type Obligation struct {
	ID               uuid.UUID        `json:"id"`
	TenantID         uuid.UUID        `json:"tenant_id"`
	Type             ObligationType   `json:"type"`
	ClientName       string           `json:"client_name"`
	ClientPhone      string           `json:"client_phone"`
	Description      string           `json:"description,omitempty"` // vehicle model, product, plan name
	Principal        decimal.Decimal  `json:"principal"`
	InterestRate     decimal.Decimal  `json:"interest_rate"` // percent; fixed profit per day for daily loans
	InterestMode     InterestMode     `json:"interest_mode"`
	Cadence          Cadence          `json:"cadence"`
	InstallmentCount int              `json:"installment_count"`
	InstallmentValue decimal.Decimal  `json:"installment_value"`
	TotalInterest    decimal.Decimal  `json:"total_interest"`
	DueDates         []time.Time      `json:"due_dates"`
	AnchorDay        int              `json:"anchor_day,omitempty"` // day of month monthly dates are pinned to
	TotalPaid        decimal.Decimal  `json:"total_paid"`
	RemainingBalance decimal.Decimal  `json:"remaining_balance"`
	Status           ObligationStatus `json:"status"`
	LateFeePercent   decimal.Decimal  `json:"late_fee_percent"`      // one-off penalty once overdue
	LateInterestRate decimal.Decimal  `json:"late_interest_percent"` // percent per day overdue
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	// PaidByIndex is filled by the store from the installment allocations.
	PaidByIndex map[int]decimal.Decimal `json:"-"`
}

// IsDaily reports whether the rate field holds a fixed daily profit.
func (o *Obligation) IsDaily() bool {
	return o.Type == ObligationTypeLoan && o.Cadence == CadenceDaily
}

type PaymentKind string

const (
	PaymentInstallment  PaymentKind = "installment"
	PaymentInterestOnly PaymentKind = "interest_only"
	PaymentAmortization PaymentKind = "amortization"
	PaymentAdvance      PaymentKind = "advance"
)

type PaymentRecord struct {
	ID               uuid.UUID       `json:"id"`
	ObligationID     uuid.UUID       `json:"obligation_id"`
	Kind             PaymentKind     `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	PrincipalPortion decimal.Decimal `json:"principal_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion"`
	PaidOn           time.Time       `json:"paid_on"`
	Notes            string          `json:"notes,omitempty"` // restates the tags this payment wrote
	CreatedAt        time.Time       `json:"created_at"`

	// PriorDueDates is the schedule as it stood before a payment that moved
	// due dates. Kept for audit; reversal undoes only the payment's own move.
	PriorDueDates []time.Time `json:"prior_due_dates,omitempty"`
}

type AllocationSource string

const (
	AllocationFromPayment AllocationSource = "payment"
	AllocationFromImport  AllocationSource = "import"
)

// Allocation is one row of the installment ledger: an amount credited to one
// installment of one obligation.
type Allocation struct {
	ID               uuid.UUID        `json:"id"`
	ObligationID     uuid.UUID        `json:"obligation_id"`
	PaymentID        *uuid.UUID       `json:"payment_id,omitempty"`
	InstallmentIndex int              `json:"installment_index"`
	Amount           decimal.Decimal  `json:"amount"`
	Source           AllocationSource `json:"source"`
	CreatedAt        time.Time        `json:"created_at"`
}

type TenantBillingProfile struct {
	TenantID          uuid.UUID `json:"tenant_id"`
	Name              string    `json:"name"`
	Active            bool      `json:"active"`
	InstanceName      string    `json:"instance_name"` // messaging channel registered for the tenant
	InstanceConnected bool      `json:"instance_connected"`
	SendDueToday      bool      `json:"send_due_today"`
	SendOverdue       bool      `json:"send_overdue"`
	SendHours         []int     `json:"send_hours,omitempty"`
	PixKey            string    `json:"pix_key,omitempty"`
	PixLabel          string    `json:"pix_label,omitempty"`
	Signature         string    `json:"signature,omitempty"`
	Closing           string    `json:"closing,omitempty"`
	ShowProgress      bool      `json:"show_progress"`
	ShowStatusList    bool      `json:"show_status_list"`
	TemplateDueToday  string    `json:"template_due_today,omitempty"`
	TemplateOverdue   string    `json:"template_overdue,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type SentLogEntry struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Phone    string    `json:"phone"` // digits only
	SentOn   time.Time `json:"sent_on"`
}

// InstallmentEntry is derived from an obligation on every read and never stored.
type InstallmentEntry struct {
	Index   int               `json:"index"` // 1-based
	DueDate time.Time         `json:"due_date"`
	Value   decimal.Decimal   `json:"value"`
	Paid    decimal.Decimal   `json:"paid"`
	Status  InstallmentStatus `json:"status"`
}

// Outstanding is what is still owed on the installment, never negative.
func (e InstallmentEntry) Outstanding() decimal.Decimal {
	rest := e.Value.Sub(e.Paid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// BillableItem is one urgent unpaid installment selected for a reminder.
type BillableItem struct {
	TenantID         uuid.UUID          `json:"tenant_id"`
	ObligationID     uuid.UUID          `json:"obligation_id"`
	ObligationType   ObligationType     `json:"obligation_type"`
	Description      string             `json:"description,omitempty"`
	ClientName       string             `json:"client_name"`
	Phone            string             `json:"phone"`
	Amount           decimal.Decimal    `json:"amount"`
	DueDate          time.Time          `json:"due_date"`
	InstallmentIndex int                `json:"installment_index"`
	InstallmentTotal int                `json:"installment_total"` // 0 for open-ended recurring fees
	ProgressPercent  int                `json:"progress_percent"`
	Urgency          Urgency            `json:"urgency"`
	DaysOverdue      int                `json:"days_overdue"`
	Penalty          decimal.Decimal    `json:"penalty"`
	LateInterest     decimal.Decimal    `json:"late_interest"`
	Entries          []InstallmentEntry `json:"-"`
}

// Total is the installment amount plus late charges.
func (b BillableItem) Total() decimal.Decimal {
	return b.Amount.Add(b.Penalty).Add(b.LateInterest)
}
