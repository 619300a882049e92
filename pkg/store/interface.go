package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/fredBilling/pkg/models"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence operations for obligations, the installment
// ledger, tenant billing profiles and the daily sent log.
type Storage interface {
	CreateObligation(ctx context.Context, o *models.Obligation) error
	// GetObligation returns the obligation with PaidByIndex summed from its allocations.
	GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error)
	UpdateObligation(ctx context.Context, o *models.Obligation) error
	// DeleteObligation removes the obligation with its payments and allocations.
	DeleteObligation(ctx context.Context, id uuid.UUID) error
	ListObligations(ctx context.Context, tenantID uuid.UUID) ([]*models.Obligation, error)
	// ListOpenObligations returns the tenant's obligations that are not paid.
	ListOpenObligations(ctx context.Context, tenantID uuid.UUID) ([]*models.Obligation, error)

	// SavePayment writes the payment, its allocations and the updated
	// obligation in one transaction.
	SavePayment(ctx context.Context, o *models.Obligation, p *models.PaymentRecord, allocs []models.Allocation) error
	// DeletePayment removes the payment and its allocations and writes the
	// restored obligation in one transaction.
	DeletePayment(ctx context.Context, o *models.Obligation, paymentID uuid.UUID) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	ListPayments(ctx context.Context, obligationID uuid.UUID) ([]*models.PaymentRecord, error)
	ListAllocations(ctx context.Context, obligationID uuid.UUID) ([]models.Allocation, error)
	// ReplaceImportedAllocations swaps the obligation's import-sourced allocations for allocs.
	ReplaceImportedAllocations(ctx context.Context, obligationID uuid.UUID, allocs []models.Allocation) error

	UpsertBillingProfile(ctx context.Context, p *models.TenantBillingProfile) error
	GetBillingProfile(ctx context.Context, tenantID uuid.UUID) (*models.TenantBillingProfile, error)
	// ListBillingProfiles pages through every tenant profile in a stable order.
	ListBillingProfiles(ctx context.Context, offset, limit int) ([]*models.TenantBillingProfile, error)

	AppendSentLog(ctx context.Context, e models.SentLogEntry) error
	// SentPhones returns the phones the tenant messaged on the given calendar day.
	SentPhones(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]string, error)

	Close() error
}
