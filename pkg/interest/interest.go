// Package interest computes total interest and installment values for the
// interest modes a lender can choose.
package interest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/models"
)

var (
	hundred = decimal.NewFromInt(100)
	cents   = int32(2)
)

// Period is one row of an annuity schedule.
type Period struct {
	Number    int
	Payment   decimal.Decimal
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Balance   decimal.Decimal
}

// TotalInterest returns the total interest owed over n installments.
// The rate is a percentage. Callers must pass principal > 0 and n >= 1.
func TotalInterest(principal, rate decimal.Decimal, n int, mode models.InterestMode) decimal.Decimal {
	switch mode {
	case models.InterestPerInstallment:
		return principal.Mul(rate).Div(hundred).Mul(decimal.NewFromInt(int64(n)))
	case models.InterestOnTotal:
		return principal.Mul(rate).Div(hundred)
	case models.InterestCompoundPure:
		factor, ok := growth(rate, n)
		if !ok {
			return decimal.Zero
		}
		p := principal.InexactFloat64()
		return nonNegative(decimal.NewFromFloat(p*factor - p).Round(cents))
	case models.InterestCompoundPrice:
		if _, ok := growth(rate, n); !ok {
			return decimal.Zero
		}
		pmt := LevelPayment(principal, rate, n)
		return nonNegative(pmt.Mul(decimal.NewFromInt(int64(n))).Sub(principal).Round(cents))
	default:
		return decimal.Zero
	}
}

// LevelPayment is the fixed annuity payment P·i·(1+i)^n / ((1+i)^n − 1),
// unrounded. With a zero or degenerate rate it is P/n.
func LevelPayment(principal, rate decimal.Decimal, n int) decimal.Decimal {
	if n < 1 {
		return decimal.Zero
	}
	factor, ok := growth(rate, n)
	if !ok {
		return principal.Div(decimal.NewFromInt(int64(n)))
	}
	i := rate.InexactFloat64() / 100
	pmt := principal.InexactFloat64() * i * factor / (factor - 1)
	if math.IsNaN(pmt) || math.IsInf(pmt, 0) {
		return principal.Div(decimal.NewFromInt(int64(n)))
	}
	return decimal.NewFromFloat(pmt)
}

// PriceSchedule splits the annuity into per-period principal and interest.
// The last period takes whatever balance is left so the principal portions add
// up to the principal exactly.
func PriceSchedule(principal, rate decimal.Decimal, n int) []Period {
	if n < 1 {
		return nil
	}
	pmt := LevelPayment(principal, rate, n).Round(cents)
	i := decimal.Zero
	if _, ok := growth(rate, n); ok {
		i = rate.Div(hundred)
	}

	periods := make([]Period, 0, n)
	balance := principal
	for k := 1; k <= n; k++ {
		in := balance.Mul(i).Round(cents)
		pr := pmt.Sub(in)
		if k == n {
			pr = balance
		}
		balance = balance.Sub(pr)
		periods = append(periods, Period{
			Number:    k,
			Payment:   pr.Add(in),
			Principal: pr,
			Interest:  in,
			Balance:   balance,
		})
	}
	return periods
}

// DailyTotalInterest is the total profit of a daily loan, where the rate field
// holds a fixed amount per day.
func DailyTotalInterest(dailyAmount decimal.Decimal, n int) decimal.Decimal {
	return dailyAmount.Mul(decimal.NewFromInt(int64(n)))
}

// DailyValues returns the per-installment values of a daily loan: every day
// owes the daily amount and the last day also repays the principal.
func DailyValues(principal, dailyAmount decimal.Decimal, n int) []decimal.Decimal {
	values := make([]decimal.Decimal, n)
	for k := range values {
		values[k] = dailyAmount
	}
	if n > 0 {
		values[n-1] = values[n-1].Add(principal)
	}
	return values
}

// InstallmentValue is the nominal level installment (P+I)/n rounded to cents.
func InstallmentValue(principal, totalInterest decimal.Decimal, n int) decimal.Decimal {
	if n < 1 {
		return decimal.Zero
	}
	return principal.Add(totalInterest).Div(decimal.NewFromInt(int64(n))).Round(cents)
}

// growth returns (1+i)^n and false when i is zero or the power is not finite.
func growth(rate decimal.Decimal, n int) (float64, bool) {
	i := rate.InexactFloat64() / 100
	if i == 0 || math.IsNaN(i) || math.IsInf(i, 0) {
		return 0, false
	}
	f := math.Pow(1+i, float64(n))
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 1 {
		return 0, false
	}
	return f, true
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
