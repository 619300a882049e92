package main

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBilling/pkg/installment"
	"github.com/mcclellann/fredBilling/pkg/interest"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
)

type quote struct {
	Principal     decimal.Decimal
	TotalInterest decimal.Decimal
	Value         decimal.Decimal
	DueDates      []time.Time
	Values        []decimal.Decimal
	Price         []interest.Period // compound_price only
}

func buildQuote(principal, rate decimal.Decimal, n int, mode models.InterestMode, cadence models.Cadence, firstDue time.Time) quote {
	q := quote{Principal: principal, DueDates: schedule.Generate(firstDue, n, cadence)}
	if cadence == models.CadenceDaily {
		q.TotalInterest = interest.DailyTotalInterest(rate, n)
		q.Value = rate
		q.Values = interest.DailyValues(principal, rate, n)
		return q
	}
	q.TotalInterest = interest.TotalInterest(principal, rate, n, mode)
	q.Value = interest.InstallmentValue(principal, q.TotalInterest, n)
	q.Values = installment.Uniform(q.Value, len(q.DueDates))
	if mode == models.InterestCompoundPrice {
		q.Price = interest.PriceSchedule(principal, rate, n)
	}
	return q
}

func (q quote) write(w io.Writer) {
	n := len(q.DueDates)
	fmt.Fprintf(w, "%-16s%s\n", "Principal:", message.FormatBRL(q.Principal))
	fmt.Fprintf(w, "%-16s%s\n", "Total interest:", message.FormatBRL(q.TotalInterest))
	fmt.Fprintf(w, "%-16s%d x %s\n", "Installments:", n, message.FormatBRL(q.Value))
	fmt.Fprintf(w, "%-16s%s\n", "Total due:", message.FormatBRL(q.Principal.Add(q.TotalInterest)))
	fmt.Fprintln(w)

	for i, due := range q.DueDates {
		fmt.Fprintf(w, "%-4d %s  %s", i+1, due.Format("02/01/2006"), message.FormatBRL(q.Values[i]))
		if i < len(q.Price) {
			fmt.Fprintf(w, "  (principal %s, interest %s)",
				message.FormatBRL(q.Price[i].Principal), message.FormatBRL(q.Price[i].Interest))
		}
		fmt.Fprintln(w)
	}
}

func QuoteCmd() *cobra.Command {
	var (
		principal string
		rate      string
		count     int
		mode      string
		cadence   string
		firstDue  string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview interest, installment value and due dates",
		Long: `Preview the schedule an obligation would get, without storing anything.

For daily loans (--cadence daily) --rate is the fixed profit per day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(principal)
			if err != nil || !p.IsPositive() {
				return fmt.Errorf("--principal must be a positive amount")
			}
			r, err := decimal.NewFromString(rate)
			if err != nil || r.IsNegative() {
				return fmt.Errorf("--rate must be a non-negative number")
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			switch m := models.InterestMode(mode); m {
			case models.InterestPerInstallment, models.InterestOnTotal, models.InterestCompoundPure, models.InterestCompoundPrice:
			default:
				return fmt.Errorf("unknown --mode %q", mode)
			}
			switch c := models.Cadence(cadence); c {
			case models.CadenceSingle:
				if count != 1 {
					return fmt.Errorf("single cadence has exactly one installment")
				}
			case models.CadenceMonthly, models.CadenceWeekly, models.CadenceBiweekly, models.CadenceDaily:
			default:
				return fmt.Errorf("unknown --cadence %q", cadence)
			}

			due := schedule.Day(time.Now())
			if firstDue != "" {
				if due, err = schedule.ParseDate(firstDue); err != nil {
					return fmt.Errorf("invalid --first-due: %v", err)
				}
			}

			buildQuote(p, r, count, models.InterestMode(mode), models.Cadence(cadence), due).write(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "Amount lent or financed")
	cmd.Flags().StringVar(&rate, "rate", "0", "Interest rate in percent, or daily profit for daily loans")
	cmd.Flags().IntVar(&count, "count", 1, "Number of installments")
	cmd.Flags().StringVar(&mode, "mode", string(models.InterestPerInstallment), "per_installment, on_total, compound_pure or compound_price")
	cmd.Flags().StringVar(&cadence, "cadence", string(models.CadenceMonthly), "single, monthly, weekly, biweekly or daily")
	cmd.Flags().StringVar(&firstDue, "first-due", "", "First due date, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("principal")

	return cmd
}
