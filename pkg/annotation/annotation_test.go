package annotation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day2(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParsePartialPaymentsLastOccurrenceWins(t *testing.T) {
	notes := "cliente pediu prazo\n[PARTIAL_PAID:1:100.00]\n[PARTIAL_PAID:2:50]\n[PARTIAL_PAID:1:150.50]"
	paid := ParsePartialPayments(notes)

	require.Len(t, paid, 2)
	assert.True(t, paid[1].Equal(d("150.50")))
	assert.True(t, paid[2].Equal(d("50")))
}

func TestParseIgnoresMalformedTags(t *testing.T) {
	notes := "[PARTIAL_PAID:x:10] [PARTIAL_PAID:3:] [PARTIAL_PAID:3:1,50] [EXTRA_INSTALLMENTS:2:2024-13]"
	assert.Empty(t, Parse(notes))
}

func TestParseAllKindsInOrder(t *testing.T) {
	notes := "[EXTRA_INSTALLMENTS:2:2024-03-01]\n" +
		"[ADVANCE:3:40.00:2024-04-01:2024-04-10]\n" +
		"[INTEREST_ONLY:2:100.00:2024-03-01:2024-04-01]\n" +
		"[AMORTIZATION:200.00:1300.00:600.00:266.67:2024-02-15]\n" +
		"[PARTIAL_PAID:1:266.67]"

	tags := Parse(notes)
	require.Len(t, tags, 5)
	assert.Equal(t, KindExtraInstallments, tags[0].Kind)
	assert.Equal(t, 2, tags[0].Count)
	assert.Equal(t, KindAdvance, tags[1].Kind)
	assert.Equal(t, "2024-04-10", tags[1].NewDue.Format(dateLayout))
	assert.Equal(t, KindInterestOnly, tags[2].Kind)
	assert.Equal(t, 2, tags[2].Index)
	assert.Equal(t, KindAmortization, tags[3].Kind)
	assert.True(t, tags[3].PrevValue.Equal(d("266.67")))
	assert.Equal(t, KindPartial, tags[4].Kind)

	for _, tag := range tags {
		assert.Equal(t, notes[tag.start:tag.end], tag.String(), "wire form of %s", tag.Kind)
	}
}

func TestApplyPartialUpdatesExistingTag(t *testing.T) {
	notes := ApplyPartial("obs", 1, d("100"))
	assert.Equal(t, "obs\n[PARTIAL_PAID:1:100.00]", notes)

	notes = ApplyPartial(notes, 1, d("66.67"))
	assert.Equal(t, "obs\n[PARTIAL_PAID:1:166.67]", notes)

	notes = ApplyPartial(notes, 2, d("10"))
	assert.Equal(t, "obs\n[PARTIAL_PAID:1:166.67]\n[PARTIAL_PAID:2:10.00]", notes)
}

func TestApplyThenReverseRestoresNotes(t *testing.T) {
	prevDue, newDue := day2("2024-03-01"), day2("2024-04-01")
	tests := []struct {
		name  string
		notes string
		apply func(string) (string, string)
	}{
		{
			name:  "new partial on empty notes",
			notes: "",
			apply: func(n string) (string, string) {
				return ApplyPartial(n, 1, d("266.67")), "Parcela 1 " + Restate(Partial(1, d("266.67")))
			},
		},
		{
			name:  "partial added to an existing tag",
			notes: "cliente bom\n[PARTIAL_PAID:2:50.00]",
			apply: func(n string) (string, string) {
				return ApplyPartial(n, 2, d("30")), Restate(Partial(2, d("30")))
			},
		},
		{
			name:  "payment spanning two installments",
			notes: "linha 1\n\n\n\nlinha 2",
			apply: func(n string) (string, string) {
				n = ApplyPartial(n, 1, d("266.67"))
				n = ApplyPartial(n, 2, d("33.33"))
				return n, Restate(Partial(1, d("266.67")), Partial(2, d("33.33")))
			},
		},
		{
			name:  "interest only",
			notes: "obs",
			apply: func(n string) (string, string) {
				tag := InterestOnly(2, d("100"), prevDue, newDue)
				return AppendTag(n, tag), Restate(tag)
			},
		},
		{
			name:  "amortization",
			notes: "obs\n[PARTIAL_PAID:1:266.67]",
			apply: func(n string) (string, string) {
				tag := Amortization(d("300"), d("1333.33"), d("600"), d("266.67"), day2("2024-02-10"))
				return AppendTag(n, tag), Restate(tag)
			},
		},
		{
			name:  "advance",
			notes: "",
			apply: func(n string) (string, string) {
				adv := Advance(3, d("40"), prevDue, newDue)
				n = ApplyPartial(n, 3, d("40"))
				return AppendTag(n, adv), Restate(Partial(3, d("40")), adv)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, paymentNotes := tt.apply(tt.notes)
			require.NotEqual(t, tt.notes, applied)

			rev := ReversePayment(applied, paymentNotes)
			assert.True(t, rev.Matched)
			assert.Empty(t, rev.Unmatched)
			assert.Equal(t, Normalize(tt.notes), rev.Notes)
		})
	}
}

func TestReversePaymentRemovesLastMatchingTag(t *testing.T) {
	first := InterestOnly(1, d("100"), day2("2024-02-01"), day2("2024-03-01"))
	second := InterestOnly(1, d("100"), day2("2024-03-01"), day2("2024-04-01"))
	notes := AppendTag(AppendTag("", first), second)

	rev := ReversePayment(notes, Restate(second))
	assert.Equal(t, first.String(), rev.Notes)
	require.Len(t, rev.Tags, 1)
	assert.Equal(t, "2024-03-01", rev.Tags[0].PrevDue.Format(dateLayout))
}

func TestReversePaymentWithoutKnownTagLeavesNotes(t *testing.T) {
	notes := "obs\n\n\n\n[PARTIAL_PAID:1:10.00]"

	rev := ReversePayment(notes, "pagamento em dinheiro")
	assert.False(t, rev.Matched)
	assert.Equal(t, notes, rev.Notes)

	rev = ReversePayment(notes, Restate(Partial(4, d("10"))))
	assert.False(t, rev.Matched)
	require.Len(t, rev.Unmatched, 1)
	assert.Equal(t, notes, rev.Notes)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\n\nb\n\nc", Normalize("\n a\n\n\n\nb\n\n\nc \n\n"))
}

func TestImportNotes(t *testing.T) {
	imp := ImportNotes("[PARTIAL_PAID:1:100]\n[EXTRA_INSTALLMENTS:2:2024-01-01]\n[EXTRA_INSTALLMENTS:1:2024-02-01]\n[PARTIAL_PAID:9:5]")
	assert.Equal(t, 3, imp.ExtraInstallments)
	require.Len(t, imp.Partials, 2)
	assert.True(t, imp.Partials[9].Equal(d("5")))
}
