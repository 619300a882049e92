// Package schedule generates installment due dates.
//
// Dates are calendar days: every value returned here is midnight UTC of the
// day it represents, whatever location the input was in.
package schedule

import (
	"time"

	"github.com/mcclellann/fredBilling/pkg/models"
)

const DateLayout = "2006-01-02"

// Day returns the calendar date of t, as seen in t's own location, at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// DaysBetween is the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// StepDays is the fixed day increment of a cadence, 0 for calendar-month cadences.
func StepDays(c models.Cadence) int {
	switch c {
	case models.CadenceWeekly:
		return 7
	case models.CadenceBiweekly:
		return 15
	case models.CadenceDaily:
		return 1
	default:
		return 0
	}
}

// AddMonths adds calendar months keeping the day of month, clamped to the last
// day of shorter months (Jan 31 + 1 = Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	t = Day(t)
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := t.Day()
	if last := daysIn(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Generate returns the due dates of n installments starting at firstDue.
// Single cadence always yields one date.
func Generate(firstDue time.Time, n int, c models.Cadence) []time.Time {
	first := Day(firstDue)
	if c == models.CadenceSingle {
		return []time.Time{first}
	}
	if n < 1 {
		return nil
	}
	dates := make([]time.Time, n)
	step := StepDays(c)
	for k := 0; k < n; k++ {
		if step == 0 {
			// months are always counted from the first date so a 31st never drifts to the 28th
			dates[k] = AddMonths(first, k)
		} else {
			dates[k] = first.AddDate(0, 0, k*step)
		}
	}
	return dates
}

// Extend appends count dates continuing the cadence after the last date.
// Monthly extensions stay pinned to anchorDay; 0 takes the first date's day.
func Extend(dates []time.Time, count int, c models.Cadence, anchorDay int) []time.Time {
	if count < 1 || len(dates) == 0 {
		return dates
	}
	if anchorDay < 1 {
		anchorDay = Day(dates[0]).Day()
	}
	out := append([]time.Time(nil), dates...)
	last := dates[len(dates)-1]
	for k := 1; k <= count; k++ {
		out = append(out, Shift(last, k, c, anchorDay))
	}
	return out
}

// Shift moves t by steps cadence steps, backwards when steps is negative. On
// calendar-month cadences a date sitting on anchorDay, or on the month-end
// clamp of it, stays pinned to anchorDay; any other date keeps its own day.
func Shift(t time.Time, steps int, c models.Cadence, anchorDay int) time.Time {
	t = Day(t)
	if step := StepDays(c); step > 0 {
		return t.AddDate(0, 0, steps*step)
	}
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	if anchorDay < 1 || t.Day() != min(anchorDay, daysIn(first)) {
		return AddMonths(t, steps)
	}
	target := first.AddDate(0, steps, 0)
	return time.Date(target.Year(), target.Month(), min(anchorDay, daysIn(target)), 0, 0, 0, 0, time.UTC)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
