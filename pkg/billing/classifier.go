// Package billing selects which unpaid installments deserve a reminder today.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/installment"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
)

var hundred = decimal.NewFromInt(100)

// Classify turns a tenant's obligations into billable items as of today.
//
// Each obligation contributes its first unpaid installment when that one is
// due today or overdue. Daily loans contribute every unpaid installment up to
// today, since a daily borrower can owe several days at once.
func Classify(obligations []*models.Obligation, today time.Time) []models.BillableItem {
	today = schedule.Day(today)
	var items []models.BillableItem
	for _, o := range obligations {
		if o == nil || o.Status == models.ObligationPaid {
			continue
		}
		entries := installment.ForObligation(o, today)

		if o.IsDaily() {
			for _, e := range entries {
				if item, ok := itemFor(o, e, entries, today); ok {
					items = append(items, item)
				}
			}
			continue
		}

		first, ok := installment.FirstUnpaid(entries)
		if !ok {
			continue
		}
		if item, ok := itemFor(o, first, entries, today); ok {
			items = append(items, item)
		}
	}
	return items
}

func itemFor(o *models.Obligation, e models.InstallmentEntry, entries []models.InstallmentEntry, today time.Time) (models.BillableItem, bool) {
	var urgency models.Urgency
	switch e.Status {
	case models.InstallmentOverdue:
		urgency = models.UrgencyOverdue
	case models.InstallmentDueToday:
		urgency = models.UrgencyDueToday
	default:
		return models.BillableItem{}, false
	}

	item := models.BillableItem{
		TenantID:         o.TenantID,
		ObligationID:     o.ID,
		ObligationType:   o.Type,
		Description:      o.Description,
		ClientName:       o.ClientName,
		Phone:            o.ClientPhone,
		Amount:           e.Outstanding(),
		DueDate:          e.DueDate,
		InstallmentIndex: e.Index,
		Urgency:          urgency,
		Penalty:          decimal.Zero,
		LateInterest:     decimal.Zero,
		Entries:          entries,
	}
	if o.Type != models.ObligationTypeRecurringFee {
		_, total, pct := installment.Progress(entries)
		item.InstallmentTotal = total
		item.ProgressPercent = pct
	}
	if urgency == models.UrgencyOverdue {
		item.DaysOverdue = schedule.DaysBetween(e.DueDate, today)
		item.Penalty = item.Amount.Mul(o.LateFeePercent).Div(hundred).Round(2)
		item.LateInterest = item.Amount.Mul(o.LateInterestRate).Div(hundred).
			Mul(decimal.NewFromInt(int64(item.DaysOverdue))).Round(2)
	}
	return item, true
}

// SelectPerPhone keeps one item per phone number: overdue beats due today,
// and among overdue items the one late the longest wins. Items without a
// usable phone are dropped. Order follows the first appearance of each phone.
func SelectPerPhone(items []models.BillableItem, countryCode string) []models.BillableItem {
	best := make(map[string]int)
	var out []models.BillableItem
	for _, item := range items {
		key := CanonicalPhone(item.Phone, countryCode)
		if key == "" {
			continue
		}
		i, seen := best[key]
		if !seen {
			best[key] = len(out)
			out = append(out, item)
			continue
		}
		if outranks(item, out[i]) {
			out[i] = item
		}
	}
	return out
}

func outranks(a, b models.BillableItem) bool {
	if a.Urgency != b.Urgency {
		return a.Urgency == models.UrgencyOverdue
	}
	return a.Urgency == models.UrgencyOverdue && a.DaysOverdue > b.DaysOverdue
}

// FilterUrgency drops the report types a tenant has switched off.
func FilterUrgency(items []models.BillableItem, dueToday, overdue bool) []models.BillableItem {
	out := items[:0:0]
	for _, item := range items {
		if (item.Urgency == models.UrgencyDueToday && dueToday) || (item.Urgency == models.UrgencyOverdue && overdue) {
			out = append(out, item)
		}
	}
	return out
}
