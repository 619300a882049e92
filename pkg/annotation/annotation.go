// Package annotation reads and writes the bracketed tags that older
// obligations carry in their notes field to record partial payments,
// interest-only payments, amortizations, extensions and advances.
//
// The installment ledger table is the source of truth for paid amounts; this
// package keeps the notes readable for legacy consumers and imports old
// obligations into the ledger. The grammar below must not change: a tag that
// fails to parse is silently ignored, which would corrupt billing state.
//
//	[PARTIAL_PAID:<index>:<amount>]
//	[INTEREST_ONLY:<index>:<amount>:<prevDue>:<newDue>]
//	[AMORTIZATION:<amount>:<prevRemaining>:<prevInterest>:<prevInstallmentValue>:<date>]
//	[EXTRA_INSTALLMENTS:<count>:<dateAdded>]
//	[ADVANCE:<index>:<amount>:<prevDue>:<newDue>]
//
// Indices are 1-based, amounts are plain decimals with a dot and dates are
// YYYY-MM-DD.
package annotation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPartial           Kind = "PARTIAL_PAID"
	KindInterestOnly      Kind = "INTEREST_ONLY"
	KindAmortization      Kind = "AMORTIZATION"
	KindExtraInstallments Kind = "EXTRA_INSTALLMENTS"
	KindAdvance           Kind = "ADVANCE"
)

const dateLayout = "2006-01-02"

var (
	partialRe      = regexp.MustCompile(`\[PARTIAL_PAID:(\d+):(\d+(?:\.\d+)?)\]`)
	interestOnlyRe = regexp.MustCompile(`\[INTEREST_ONLY:(\d+):(\d+(?:\.\d+)?):(\d{4}-\d{2}-\d{2}):(\d{4}-\d{2}-\d{2})\]`)
	amortizationRe = regexp.MustCompile(`\[AMORTIZATION:(\d+(?:\.\d+)?):(\d+(?:\.\d+)?):(\d+(?:\.\d+)?):(\d+(?:\.\d+)?):(\d{4}-\d{2}-\d{2})\]`)
	extraRe        = regexp.MustCompile(`\[EXTRA_INSTALLMENTS:(\d+):(\d{4}-\d{2}-\d{2})\]`)
	advanceRe      = regexp.MustCompile(`\[ADVANCE:(\d+):(\d+(?:\.\d+)?):(\d{4}-\d{2}-\d{2}):(\d{4}-\d{2}-\d{2})\]`)

	blankLinesRe = regexp.MustCompile(`\n{3,}`)

	// amounts at or below this are treated as fully reversed
	reverseEpsilon = decimal.NewFromFloat(0.005)
)

// Tag is one parsed annotation. Which fields are set depends on Kind.
type Tag struct {
	Kind          Kind
	Index         int
	Amount        decimal.Decimal
	Count         int
	PrevDue       time.Time
	NewDue        time.Time
	PrevRemaining decimal.Decimal
	PrevInterest  decimal.Decimal
	PrevValue     decimal.Decimal
	Date          time.Time

	start, end int
}

func Partial(index int, amount decimal.Decimal) Tag {
	return Tag{Kind: KindPartial, Index: index, Amount: amount}
}

func InterestOnly(index int, amount decimal.Decimal, prevDue, newDue time.Time) Tag {
	return Tag{Kind: KindInterestOnly, Index: index, Amount: amount, PrevDue: prevDue, NewDue: newDue}
}

func Amortization(amount, prevRemaining, prevInterest, prevValue decimal.Decimal, date time.Time) Tag {
	return Tag{
		Kind:          KindAmortization,
		Amount:        amount,
		PrevRemaining: prevRemaining,
		PrevInterest:  prevInterest,
		PrevValue:     prevValue,
		Date:          date,
	}
}

func ExtraInstallments(count int, date time.Time) Tag {
	return Tag{Kind: KindExtraInstallments, Count: count, Date: date}
}

func Advance(index int, amount decimal.Decimal, prevDue, newDue time.Time) Tag {
	return Tag{Kind: KindAdvance, Index: index, Amount: amount, PrevDue: prevDue, NewDue: newDue}
}

// String renders the tag in its wire form.
func (t Tag) String() string {
	switch t.Kind {
	case KindPartial:
		return fmt.Sprintf("[%s:%d:%s]", t.Kind, t.Index, money(t.Amount))
	case KindInterestOnly, KindAdvance:
		return fmt.Sprintf("[%s:%d:%s:%s:%s]", t.Kind, t.Index, money(t.Amount),
			t.PrevDue.Format(dateLayout), t.NewDue.Format(dateLayout))
	case KindAmortization:
		return fmt.Sprintf("[%s:%s:%s:%s:%s:%s]", t.Kind, money(t.Amount), money(t.PrevRemaining),
			money(t.PrevInterest), money(t.PrevValue), t.Date.Format(dateLayout))
	case KindExtraInstallments:
		return fmt.Sprintf("[%s:%d:%s]", t.Kind, t.Count, t.Date.Format(dateLayout))
	}
	return ""
}

// Parse returns every well-formed tag in notes, in the order they appear.
func Parse(notes string) []Tag {
	var tags []Tag
	for _, m := range partialRe.FindAllStringSubmatchIndex(notes, -1) {
		g := groups(notes, m)
		tags = append(tags, Tag{Kind: KindPartial, Index: atoi(g[0]), Amount: dec(g[1]), start: m[0], end: m[1]})
	}
	for _, m := range interestOnlyRe.FindAllStringSubmatchIndex(notes, -1) {
		g := groups(notes, m)
		tags = append(tags, Tag{Kind: KindInterestOnly, Index: atoi(g[0]), Amount: dec(g[1]),
			PrevDue: day(g[2]), NewDue: day(g[3]), start: m[0], end: m[1]})
	}
	for _, m := range amortizationRe.FindAllStringSubmatchIndex(notes, -1) {
		g := groups(notes, m)
		tags = append(tags, Tag{Kind: KindAmortization, Amount: dec(g[0]), PrevRemaining: dec(g[1]),
			PrevInterest: dec(g[2]), PrevValue: dec(g[3]), Date: day(g[4]), start: m[0], end: m[1]})
	}
	for _, m := range extraRe.FindAllStringSubmatchIndex(notes, -1) {
		g := groups(notes, m)
		tags = append(tags, Tag{Kind: KindExtraInstallments, Count: atoi(g[0]), Date: day(g[1]), start: m[0], end: m[1]})
	}
	for _, m := range advanceRe.FindAllStringSubmatchIndex(notes, -1) {
		g := groups(notes, m)
		tags = append(tags, Tag{Kind: KindAdvance, Index: atoi(g[0]), Amount: dec(g[1]),
			PrevDue: day(g[2]), NewDue: day(g[3]), start: m[0], end: m[1]})
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].start < tags[j].start })
	return tags
}

// ParsePartialPayments maps installment index to the amount paid on it.
// When an index is tagged more than once the last tag wins.
func ParsePartialPayments(notes string) map[int]decimal.Decimal {
	paid := make(map[int]decimal.Decimal)
	for _, t := range Parse(notes) {
		if t.Kind == KindPartial {
			paid[t.Index] = t.Amount
		}
	}
	return paid
}

// ApplyPartial credits amount to installment index, updating the last tag for
// that index or appending a new one.
func ApplyPartial(notes string, index int, amount decimal.Decimal) string {
	if t, ok := last(notes, func(t Tag) bool { return t.Kind == KindPartial && t.Index == index }); ok {
		return replaceAt(notes, t, Partial(index, t.Amount.Add(amount)).String())
	}
	return AppendTag(notes, Partial(index, amount))
}

// AppendTag adds the tag on its own line at the end of notes.
func AppendTag(notes string, t Tag) string {
	trimmed := strings.TrimRight(notes, " \t\r\n")
	if trimmed == "" {
		return t.String()
	}
	return trimmed + "\n" + t.String()
}

// Restate joins tags the way they are written into a payment record's notes.
func Restate(tags ...Tag) string {
	var b strings.Builder
	for _, t := range tags {
		b.WriteString(t.String())
	}
	return b.String()
}

// Reversal is the outcome of undoing a payment's tags.
type Reversal struct {
	Notes string
	// Matched is false when none of the payment's tags were found; Notes is
	// then returned untouched.
	Matched bool
	// Tags are the tags restated in the payment notes. They carry the previous
	// dates and totals the caller needs to roll the obligation back.
	Tags      []Tag
	Unmatched []Tag
}

// ReversePayment undoes, in notes, every tag restated in paymentNotes.
// Partial tags are decremented and dropped when they reach zero; every other
// kind removes the last matching tag.
func ReversePayment(notes, paymentNotes string) Reversal {
	rev := Reversal{Tags: Parse(paymentNotes)}
	out := notes
	for _, pt := range rev.Tags {
		var ok bool
		out, ok = reverseOne(out, pt)
		if ok {
			rev.Matched = true
		} else {
			rev.Unmatched = append(rev.Unmatched, pt)
		}
	}
	if !rev.Matched {
		rev.Notes = notes
		return rev
	}
	rev.Notes = Normalize(out)
	return rev
}

func reverseOne(notes string, pt Tag) (string, bool) {
	if pt.Kind == KindPartial {
		t, ok := last(notes, func(t Tag) bool { return t.Kind == KindPartial && t.Index == pt.Index })
		if !ok {
			return notes, false
		}
		rest := t.Amount.Sub(pt.Amount)
		if rest.LessThanOrEqual(reverseEpsilon) {
			return removeAt(notes, t), true
		}
		return replaceAt(notes, t, Partial(pt.Index, rest).String()), true
	}

	wire := pt.String()
	if t, ok := last(notes, func(t Tag) bool { return notes[t.start:t.end] == wire }); ok {
		return removeAt(notes, t), true
	}
	t, ok := last(notes, func(t Tag) bool {
		if t.Kind != pt.Kind {
			return false
		}
		return (pt.Kind != KindInterestOnly && pt.Kind != KindAdvance) || t.Index == pt.Index
	})
	if !ok {
		return notes, false
	}
	return removeAt(notes, t), true
}

// Normalize collapses runs of three or more newlines into one blank line and
// trims surrounding whitespace.
func Normalize(notes string) string {
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(notes, "\n\n"))
}

// Import is what a legacy notes field contributes to the installment ledger.
type Import struct {
	Partials          map[int]decimal.Decimal
	ExtraInstallments int
	Tags              []Tag
}

func ImportNotes(notes string) Import {
	tags := Parse(notes)
	imp := Import{Partials: ParsePartialPayments(notes), Tags: tags}
	for _, t := range tags {
		if t.Kind == KindExtraInstallments {
			imp.ExtraInstallments += t.Count
		}
	}
	return imp
}

func last(notes string, match func(Tag) bool) (Tag, bool) {
	tags := Parse(notes)
	for i := len(tags) - 1; i >= 0; i-- {
		if match(tags[i]) {
			return tags[i], true
		}
	}
	return Tag{}, false
}

func replaceAt(notes string, t Tag, with string) string {
	return notes[:t.start] + with + notes[t.end:]
}

// removeAt deletes the tag together with the line break that separated it.
func removeAt(notes string, t Tag) string {
	start, end := t.start, t.end
	if start > 0 && notes[start-1] == '\n' {
		start--
	} else if end < len(notes) && notes[end] == '\n' {
		end++
	}
	return notes[:start] + notes[end:]
}

func groups(s string, m []int) []string {
	out := make([]string, 0, len(m)/2-1)
	for i := 2; i+1 < len(m); i += 2 {
		out = append(out, s[m[i]:m[i+1]])
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func day(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
