// Package installment derives per-installment status from an obligation.
//
// Nothing here is persisted. Every consumer (HTTP views, the billing batch,
// the payment service) must go through ForObligation so that dates, values and
// the paid tolerance are computed in exactly one place.
package installment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/interest"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
)

// PaidTolerance absorbs rounding drift: an installment counts as paid once
// 99% of its value has been paid.
const PaidTolerance = 0.99

var tolerance = decimal.NewFromFloat(PaidTolerance)

// IsPaid reports whether paid covers value within PaidTolerance.
func IsPaid(paid, value decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(value.Mul(tolerance))
}

// Resolve classifies each installment. values[i] is the nominal value of the
// installment due on dueDates[i]; paid is keyed by 1-based index and entries
// for indices outside the schedule are ignored.
func Resolve(dueDates []time.Time, values []decimal.Decimal, paid map[int]decimal.Decimal, today time.Time) []models.InstallmentEntry {
	today = schedule.Day(today)
	entries := make([]models.InstallmentEntry, len(dueDates))
	for i, due := range dueDates {
		idx := i + 1
		value := decimal.Zero
		if i < len(values) {
			value = values[i]
		}
		p := paid[idx]

		status := models.InstallmentPending
		due = schedule.Day(due)
		switch {
		case IsPaid(p, value):
			status = models.InstallmentPaid
		case due.Before(today):
			status = models.InstallmentOverdue
		case due.Equal(today):
			status = models.InstallmentDueToday
		}

		entries[i] = models.InstallmentEntry{
			Index:   idx,
			DueDate: due,
			Value:   value,
			Paid:    p,
			Status:  status,
		}
	}
	return entries
}

// Uniform repeats value n times.
func Uniform(value decimal.Decimal, n int) []decimal.Decimal {
	values := make([]decimal.Decimal, n)
	for i := range values {
		values[i] = value
	}
	return values
}

// ScheduleFor returns the due dates and per-installment values of o.
//
// Daily loans owe the daily amount every day and repay the principal with the
// last installment. Recurring fees have no end: their cycles are unrolled
// monthly from the first due date through today plus the next upcoming cycle.
func ScheduleFor(o *models.Obligation, today time.Time) ([]time.Time, []decimal.Decimal) {
	if o.Type == models.ObligationTypeRecurringFee {
		if len(o.DueDates) == 0 {
			return nil, nil
		}
		anchor := o.DueDates[0]
		cycles := 1
		if today := schedule.Day(today); !anchor.After(today) {
			for !schedule.AddMonths(anchor, cycles).After(today) {
				cycles++
			}
			cycles++
		}
		return schedule.Generate(anchor, cycles, models.CadenceMonthly), Uniform(o.InstallmentValue, cycles)
	}

	dates := o.DueDates
	if o.IsDaily() {
		return dates, interest.DailyValues(o.Principal, o.InstallmentValue, len(dates))
	}
	return dates, Uniform(o.InstallmentValue, len(dates))
}

// ForObligation resolves every installment of o as of today.
func ForObligation(o *models.Obligation, today time.Time) []models.InstallmentEntry {
	dates, values := ScheduleFor(o, today)
	return Resolve(dates, values, o.PaidByIndex, today)
}

// FirstUnpaid returns the earliest installment not yet paid.
func FirstUnpaid(entries []models.InstallmentEntry) (models.InstallmentEntry, bool) {
	for _, e := range entries {
		if e.Status != models.InstallmentPaid {
			return e, true
		}
	}
	return models.InstallmentEntry{}, false
}

// Progress counts paid installments and the share of the schedule they cover.
func Progress(entries []models.InstallmentEntry) (paid, total, percent int) {
	total = len(entries)
	for _, e := range entries {
		if e.Status == models.InstallmentPaid {
			paid++
		}
	}
	if total > 0 {
		percent = paid * 100 / total
	}
	return paid, total, percent
}

// AllPaid reports whether every installment is paid. An empty schedule is not.
func AllPaid(entries []models.InstallmentEntry) bool {
	if len(entries) == 0 {
		return false
	}
	_, ok := FirstUnpaid(entries)
	return !ok
}

// HasOverdue reports whether any installment is overdue.
func HasOverdue(entries []models.InstallmentEntry) bool {
	for _, e := range entries {
		if e.Status == models.InstallmentOverdue {
			return true
		}
	}
	return false
}
