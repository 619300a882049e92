package message

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	barSegments = 10
	barFull     = "█"
	barEmpty    = "░"
)

// FormatBRL renders an amount as Brazilian reais, e.g. R$ 1.234,56.
func FormatBRL(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteString("-")
	}
	b.WriteString("R$ ")
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// ProgressBar draws percent as ten block glyphs followed by the percentage.
func ProgressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * barSegments / 100
	return strings.Repeat(barFull, filled) + strings.Repeat(barEmpty, barSegments-filled) +
		" " + strconv.Itoa(percent) + "%"
}
