package installment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/models"
)

// RenderOptions sets the schedule sizes at which the status list degrades from
// every installment, to a window around the current one, to counts only.
type RenderOptions struct {
	FullLimit    int
	CompactLimit int
	RecentPaid   int
	NextPending  int
	FormatMoney  func(decimal.Decimal) string
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		FullLimit:    60,
		CompactLimit: 180,
		RecentPaid:   3,
		NextPending:  5,
		FormatMoney:  func(d decimal.Decimal) string { return d.StringFixed(2) },
	}
}

var statusIcon = map[models.InstallmentStatus]string{
	models.InstallmentPaid:     "✅",
	models.InstallmentOverdue:  "🔴",
	models.InstallmentDueToday: "🟡",
	models.InstallmentPending:  "⚪",
}

// RenderStatusList formats entries as a human-readable list, one line per
// installment, shrinking for long schedules.
func RenderStatusList(entries []models.InstallmentEntry, opts RenderOptions) string {
	if opts.FormatMoney == nil {
		opts.FormatMoney = DefaultRenderOptions().FormatMoney
	}
	total := len(entries)
	if total == 0 {
		return ""
	}

	var b strings.Builder
	switch {
	case total <= opts.FullLimit:
		for _, e := range entries {
			writeLine(&b, e, total, opts)
		}
	case total <= opts.CompactLimit:
		var paid, open []models.InstallmentEntry
		for _, e := range entries {
			if e.Status == models.InstallmentPaid {
				paid = append(paid, e)
			} else {
				open = append(open, e)
			}
		}
		if hidden := len(paid) - opts.RecentPaid; hidden > 0 {
			fmt.Fprintf(&b, "... %d parcelas pagas anteriores\n", hidden)
			paid = paid[hidden:]
		}
		for _, e := range paid {
			writeLine(&b, e, total, opts)
		}
		shown := open
		if len(shown) > opts.NextPending {
			shown = shown[:opts.NextPending]
		}
		for _, e := range shown {
			writeLine(&b, e, total, opts)
		}
		if rest := len(open) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "... mais %d parcelas em aberto\n", rest)
		}
	default:
		writeCounts(&b, entries)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeLine(b *strings.Builder, e models.InstallmentEntry, total int, opts RenderOptions) {
	fmt.Fprintf(b, "%s %d/%d - %s - %s\n", statusIcon[e.Status], e.Index, total,
		e.DueDate.Format("02/01/2006"), opts.FormatMoney(e.Value))
}

func writeCounts(b *strings.Builder, entries []models.InstallmentEntry) {
	counts := make(map[models.InstallmentStatus]int)
	for _, e := range entries {
		counts[e.Status]++
	}
	fmt.Fprintf(b, "%s Pagas: %d\n", statusIcon[models.InstallmentPaid], counts[models.InstallmentPaid])
	fmt.Fprintf(b, "%s Em atraso: %d\n", statusIcon[models.InstallmentOverdue], counts[models.InstallmentOverdue])
	fmt.Fprintf(b, "%s Vencendo hoje: %d\n", statusIcon[models.InstallmentDueToday], counts[models.InstallmentDueToday])
	fmt.Fprintf(b, "%s A vencer: %d\n", statusIcon[models.InstallmentPending], counts[models.InstallmentPending])
	fmt.Fprintf(b, "Total: %d parcelas", len(entries))
}
