// Package scheduler runs the billing batch: for a page of tenants it finds the
// installments due today or overdue and sends each client at most one
// reminder per day.
package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/fredBilling/pkg/billing"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/notify"
	"github.com/mcclellann/fredBilling/pkg/schedule"
)

// Store is the part of the storage layer the batch reads and writes.
type Store interface {
	ListBillingProfiles(ctx context.Context, offset, limit int) ([]*models.TenantBillingProfile, error)
	ListOpenObligations(ctx context.Context, tenantID uuid.UUID) ([]*models.Obligation, error)
	SentPhones(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]string, error)
	AppendSentLog(ctx context.Context, e models.SentLogEntry) error
}

type Options struct {
	BatchSize       int
	SendDelay       time.Duration
	MaxPerTenant    int
	DefaultSendHour int
	CountryCode     string
	Location        *time.Location
	Now             func() time.Time
	Logger          *slog.Logger
	Metrics         *metrics.Recorder
}

// Request selects one page of tenants. TargetHour overrides the current hour
// when matching tenants' send hours; TestRecipient redirects every message to
// one phone and leaves the sent log untouched.
type Request struct {
	TargetHour    *int   `json:"target_hour,omitempty"`
	Batch         int    `json:"batch"`
	BatchSize     int    `json:"batch_size"`
	TestRecipient string `json:"test_recipient,omitempty"`
}

type Response struct {
	Success      bool   `json:"success"`
	SentCount    int    `json:"sent_count"`
	SkippedCount int    `json:"skipped_count"`
	FailedCount  int    `json:"failed_count"`
	Batch        int    `json:"batch"`
	BatchSize    int    `json:"batch_size"`
	Tenants      int    `json:"tenants"`
	Error        string `json:"error,omitempty"`
}

type Scheduler struct {
	store  Store
	sender notify.Sender
	opts   Options
}

func New(store Store, sender notify.Sender, opts Options) *Scheduler {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{store: store, sender: sender, opts: opts}
}

// Run processes one page of tenants, sequentially. A storage error ends the
// run with Success false; a failed send only counts against FailedCount.
func (s *Scheduler) Run(ctx context.Context, req Request) Response {
	started := time.Now()
	defer func() { s.opts.Metrics.BatchDone(time.Since(started)) }()

	size := req.BatchSize
	if size < 1 {
		size = s.opts.BatchSize
	}
	batch := max(req.Batch, 0)
	resp := Response{Batch: batch, BatchSize: size}

	now := s.opts.Now().In(s.opts.Location)
	hour := now.Hour()
	if req.TargetHour != nil {
		hour = *req.TargetHour
	}
	today := schedule.Today(now, s.opts.Location)
	log := s.opts.Logger.With("batch", batch, "batch_size", size, "hour", hour)

	profiles, err := s.store.ListBillingProfiles(ctx, batch*size, size)
	if err != nil {
		log.Error("failed to list tenants", "error", err)
		resp.Error = err.Error()
		return resp
	}
	resp.Tenants = len(profiles)

	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			resp.Error = err.Error()
			return resp
		}
		if reason := s.ineligible(p, hour); reason != "" {
			log.Debug("tenant skipped", "tenant_id", p.TenantID, "reason", reason)
			continue
		}
		if err := s.runTenant(ctx, p, today, req.TestRecipient, &resp); err != nil {
			log.Error("billing run aborted", "tenant_id", p.TenantID, "error", err)
			resp.Error = err.Error()
			return resp
		}
	}

	resp.Success = true
	log.Info("billing batch finished", "tenants", resp.Tenants,
		"sent", resp.SentCount, "skipped", resp.SkippedCount, "failed", resp.FailedCount)
	return resp
}

// RunHour walks every page of tenants for the given hour until a short page.
func (s *Scheduler) RunHour(ctx context.Context, hour int) Response {
	total := Response{BatchSize: s.opts.BatchSize}
	for batch := 0; ; batch++ {
		resp := s.Run(ctx, Request{TargetHour: &hour, Batch: batch, BatchSize: s.opts.BatchSize})
		total.Batch = batch
		total.SentCount += resp.SentCount
		total.SkippedCount += resp.SkippedCount
		total.FailedCount += resp.FailedCount
		total.Tenants += resp.Tenants
		if !resp.Success {
			total.Error = resp.Error
			return total
		}
		if resp.Tenants < s.opts.BatchSize {
			total.Success = true
			return total
		}
	}
}

func (s *Scheduler) ineligible(p *models.TenantBillingProfile, hour int) string {
	switch {
	case !p.Active:
		return "inactive"
	case !p.InstanceConnected || p.InstanceName == "":
		return "disconnected"
	case len(p.SendHours) > 0 && !slices.Contains(p.SendHours, hour):
		return "not_send_hour"
	case len(p.SendHours) == 0 && hour != s.opts.DefaultSendHour:
		return "not_send_hour"
	}
	return ""
}

func (s *Scheduler) runTenant(ctx context.Context, p *models.TenantBillingProfile, today time.Time, testRecipient string, resp *Response) error {
	log := s.opts.Logger.With("tenant_id", p.TenantID)
	cc := s.opts.CountryCode

	obligations, err := s.store.ListOpenObligations(ctx, p.TenantID)
	if err != nil {
		return err
	}
	items := billing.Classify(obligations, today)
	items = billing.FilterUrgency(items, p.SendDueToday, p.SendOverdue)
	items = billing.SelectPerPhone(items, cc)
	if len(items) == 0 {
		return nil
	}

	sentPhones, err := s.store.SentPhones(ctx, p.TenantID, today)
	if err != nil {
		return err
	}
	guard := billing.NewDedupGuard(sentPhones, cc)

	// failed sends count against the cap too
	attempts := 0
	for i, item := range items {
		if s.opts.MaxPerTenant > 0 && attempts >= s.opts.MaxPerTenant {
			rest := len(items) - i
			resp.SkippedCount += rest
			log.Warn("per-tenant cap reached", "cap", s.opts.MaxPerTenant, "left_over", rest)
			for n := 0; n < rest; n++ {
				s.opts.Metrics.Skipped("tenant_cap")
			}
			break
		}
		if guard.Seen(item.Phone) {
			resp.SkippedCount++
			s.opts.Metrics.Skipped("duplicate")
			continue
		}

		phone := billing.CanonicalPhone(item.Phone, cc)
		to := phone
		if testRecipient != "" {
			to = billing.CanonicalPhone(testRecipient, cc)
		}
		text := message.Render(message.TemplateFor(*p, item.Urgency), item, *p)

		if attempts > 0 && s.opts.SendDelay > 0 {
			if err := notify.Wait(ctx, s.opts.SendDelay); err != nil {
				return err
			}
		}

		attempts++
		if err := s.sender.SendText(ctx, p.InstanceName, to, text); err != nil {
			resp.FailedCount++
			s.opts.Metrics.Failed(item.Urgency)
			log.Warn("reminder not sent", "obligation_id", item.ObligationID, "phone", to, "error", err)
			continue
		}
		resp.SentCount++
		guard.Mark(item.Phone)
		s.opts.Metrics.Sent(item.Urgency)
		log.Info("reminder sent", "obligation_id", item.ObligationID, "phone", to,
			"urgency", item.Urgency, "installment", item.InstallmentIndex)

		if testRecipient != "" {
			continue
		}
		if err := s.store.AppendSentLog(ctx, models.SentLogEntry{TenantID: p.TenantID, Phone: phone, SentOn: today}); err != nil {
			// already delivered; the worst case is a second reminder later today
			log.Error("failed to record sent reminder", "phone", phone, "error", err)
		}
	}
	return nil
}
