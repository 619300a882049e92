// Package message fills reminder templates from a billable item and the
// tenant's billing preferences.
package message

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mcclellann/fredBilling/pkg/installment"
	"github.com/mcclellann/fredBilling/pkg/models"
)

// Placeholders understood by Render.
const (
	Client             = "{CLIENT}"
	Amount             = "{AMOUNT}"
	Installment        = "{INSTALLMENT}"
	Date               = "{DATE}"
	DaysOverdue        = "{DAYS_OVERDUE}"
	Penalty            = "{PENALTY}"
	Interest           = "{INTEREST}"
	PenaltyAndInterest = "{PENALTY_AND_INTEREST}"
	Total              = "{TOTAL}"
	Progress           = "{PROGRESS}"
	StatusList         = "{INSTALLMENT_STATUS_LIST}"
	Pix                = "{PIX}"
	Signature          = "{SIGNATURE}"
	Closing            = "{CLOSING}"
)

const DefaultDueTodayTemplate = `Olá {CLIENT}! 👋

Passando para lembrar que a parcela {INSTALLMENT} no valor de {AMOUNT} vence hoje ({DATE}).
{PROGRESS}

{INSTALLMENT_STATUS_LIST}

{PIX}

{SIGNATURE}
{CLOSING}`

const DefaultOverdueTemplate = `Olá {CLIENT},

A parcela {INSTALLMENT} no valor de {AMOUNT}, com vencimento em {DATE}, está em atraso há {DAYS_OVERDUE} dia(s).
{PROGRESS}

{PENALTY_AND_INTEREST}
Total atualizado: {TOTAL}

{INSTALLMENT_STATUS_LIST}

{PIX}

{SIGNATURE}
{CLOSING}`

var (
	leftoverRe   = regexp.MustCompile(`\{[A-Z_]+\}`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// TemplateFor returns the tenant's template for the urgency, or the default.
func TemplateFor(p models.TenantBillingProfile, urgency models.Urgency) string {
	if urgency == models.UrgencyOverdue {
		if strings.TrimSpace(p.TemplateOverdue) != "" {
			return p.TemplateOverdue
		}
		return DefaultOverdueTemplate
	}
	if strings.TrimSpace(p.TemplateDueToday) != "" {
		return p.TemplateDueToday
	}
	return DefaultDueTodayTemplate
}

// Render substitutes every placeholder in tpl. Placeholders without a value
// render empty, and runs of blank lines collapse to one.
func Render(tpl string, item models.BillableItem, p models.TenantBillingProfile) string {
	tpl = upgrade(tpl, p)

	r := strings.NewReplacer(
		Client, item.ClientName,
		Amount, FormatBRL(item.Amount),
		Installment, installmentLabel(item),
		Date, item.DueDate.Format("02/01/2006"),
		DaysOverdue, strconv.Itoa(item.DaysOverdue),
		Penalty, FormatBRL(item.Penalty),
		Interest, FormatBRL(item.LateInterest),
		PenaltyAndInterest, lateCharges(item),
		Total, FormatBRL(item.Total()),
		Progress, progressSection(item, p),
		StatusList, statusListSection(item, p),
		Pix, pixSection(p),
		Signature, p.Signature,
		Closing, p.Closing,
	)
	out := r.Replace(tpl)
	out = leftoverRe.ReplaceAllString(out, "")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// upgrade adds sections introduced after a tenant saved their template.
// It looks for familiar anchors and is a best effort, not a guarantee.
func upgrade(tpl string, p models.TenantBillingProfile) string {
	if p.ShowProgress && !strings.Contains(tpl, Progress) {
		tpl = insertAfterLineWith(tpl, Installment, Progress)
	}
	if p.ShowStatusList && !strings.Contains(tpl, StatusList) {
		tpl = insertBeforeAnchor(tpl, StatusList)
	}
	if p.PixKey != "" && !strings.Contains(tpl, Pix) {
		tpl = insertBeforeAnchor(tpl, Pix)
	}
	return tpl
}

func insertAfterLineWith(tpl, marker, section string) string {
	i := strings.Index(tpl, marker)
	if i < 0 {
		return insertBeforeAnchor(tpl, section)
	}
	end := strings.IndexByte(tpl[i:], '\n')
	if end < 0 {
		return tpl + "\n" + section
	}
	at := i + end
	return tpl[:at] + "\n" + section + tpl[at:]
}

// insertBeforeAnchor puts section ahead of the signature or closing, else at the end.
func insertBeforeAnchor(tpl, section string) string {
	for _, anchor := range []string{Signature, Closing} {
		if i := strings.Index(tpl, anchor); i >= 0 {
			return tpl[:i] + section + "\n\n" + tpl[i:]
		}
	}
	return strings.TrimRight(tpl, "\n") + "\n\n" + section
}

func installmentLabel(item models.BillableItem) string {
	if item.InstallmentTotal > 0 {
		return strconv.Itoa(item.InstallmentIndex) + "/" + strconv.Itoa(item.InstallmentTotal)
	}
	if item.Description != "" {
		return item.Description
	}
	return "#" + strconv.Itoa(item.InstallmentIndex)
}

func lateCharges(item models.BillableItem) string {
	var lines []string
	if item.Penalty.IsPositive() {
		lines = append(lines, "Multa: "+FormatBRL(item.Penalty))
	}
	if item.LateInterest.IsPositive() {
		lines = append(lines, "Juros: "+FormatBRL(item.LateInterest))
	}
	return strings.Join(lines, "\n")
}

func progressSection(item models.BillableItem, p models.TenantBillingProfile) string {
	if !p.ShowProgress || item.InstallmentTotal == 0 {
		return ""
	}
	return "📊 Progresso: " + ProgressBar(item.ProgressPercent)
}

func statusListSection(item models.BillableItem, p models.TenantBillingProfile) string {
	if !p.ShowStatusList || len(item.Entries) == 0 {
		return ""
	}
	opts := installment.DefaultRenderOptions()
	opts.FormatMoney = FormatBRL
	return installment.RenderStatusList(item.Entries, opts)
}

func pixSection(p models.TenantBillingProfile) string {
	if p.PixKey == "" {
		return ""
	}
	if p.PixLabel != "" {
		return "💳 PIX (" + p.PixLabel + "): " + p.PixKey
	}
	return "💳 PIX: " + p.PixKey
}
