package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and creates the schema if needed.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// one writer; keeps foreign_keys applied to the only connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	slog.Debug("database ready", "path", dataSourceName)
	return s, nil
}

// initSchema creates the tables. Money is stored as TEXT so no precision is
// lost, calendar dates as YYYY-MM-DD.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		client_name TEXT NOT NULL,
		client_phone TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL DEFAULT '0',
		interest_mode TEXT NOT NULL DEFAULT '',
		cadence TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		installment_value TEXT NOT NULL,
		total_interest TEXT NOT NULL DEFAULT '0',
		due_dates TEXT NOT NULL DEFAULT '[]',
		anchor_day INTEGER NOT NULL DEFAULT 0,
		total_paid TEXT NOT NULL DEFAULT '0',
		remaining_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		late_fee_percent TEXT NOT NULL DEFAULT '0',
		late_interest_rate TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_obligations_tenant ON obligations(tenant_id, status);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		obligation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		principal_portion TEXT NOT NULL DEFAULT '0',
		interest_portion TEXT NOT NULL DEFAULT '0',
		paid_on TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		prior_due_dates TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(obligation_id) REFERENCES obligations(id)
	);

	CREATE TABLE IF NOT EXISTS installment_allocations (
		id TEXT PRIMARY KEY,
		obligation_id TEXT NOT NULL,
		payment_id TEXT,
		installment_index INTEGER NOT NULL,
		amount TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(obligation_id) REFERENCES obligations(id),
		FOREIGN KEY(payment_id) REFERENCES payments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_allocations_obligation ON installment_allocations(obligation_id, installment_index);

	CREATE TABLE IF NOT EXISTS billing_profiles (
		tenant_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		instance_name TEXT NOT NULL DEFAULT '',
		instance_connected INTEGER NOT NULL DEFAULT 0,
		send_due_today INTEGER NOT NULL DEFAULT 1,
		send_overdue INTEGER NOT NULL DEFAULT 1,
		send_hours TEXT NOT NULL DEFAULT '[]',
		pix_key TEXT NOT NULL DEFAULT '',
		pix_label TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		closing TEXT NOT NULL DEFAULT '',
		show_progress INTEGER NOT NULL DEFAULT 0,
		show_status_list INTEGER NOT NULL DEFAULT 0,
		template_due_today TEXT NOT NULL DEFAULT '',
		template_overdue TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sent_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		phone TEXT NOT NULL,
		sent_on TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sent_log_day ON sent_log(tenant_id, sent_on);
	`
	_, err := s.db.Exec(schema)
	return err
}

const obligationColumns = `id, tenant_id, type, client_name, client_phone, description, principal, interest_rate, interest_mode, cadence, installment_count, installment_value, total_interest, due_dates, anchor_day, total_paid, remaining_balance, status, late_fee_percent, late_interest_rate, notes, created_at, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateObligation inserts a new obligation.
func (s *SQLiteStore) CreateObligation(ctx context.Context, o *models.Obligation) error {
	dates, err := encodeDates(o.DueDates)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO obligations (`+obligationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(), o.TenantID.String(), o.Type, o.ClientName, o.ClientPhone, o.Description,
		o.Principal, o.InterestRate, o.InterestMode, o.Cadence, o.InstallmentCount, o.InstallmentValue,
		o.TotalInterest, dates, o.AnchorDay, o.TotalPaid, o.RemainingBalance, o.Status, o.LateFeePercent,
		o.LateInterestRate, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create obligation: %w", err)
	}
	return nil
}

// GetObligation retrieves an obligation by its ID.
func (s *SQLiteStore) GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id.String())
	o, err := scanObligation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("obligation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}

	paid, err := s.paidByIndex(ctx, `WHERE obligation_id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	o.PaidByIndex = paid[o.ID]
	return o, nil
}

// UpdateObligation stores every mutable field of the obligation.
func (s *SQLiteStore) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	return updateObligation(ctx, s.db, o)
}

func updateObligation(ctx context.Context, db execer, o *models.Obligation) error {
	dates, err := encodeDates(o.DueDates)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`UPDATE obligations SET client_name = ?, client_phone = ?, description = ?, principal = ?, interest_rate = ?,
		interest_mode = ?, cadence = ?, installment_count = ?, installment_value = ?, total_interest = ?, due_dates = ?,
		anchor_day = ?, total_paid = ?, remaining_balance = ?, status = ?, late_fee_percent = ?, late_interest_rate = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		o.ClientName, o.ClientPhone, o.Description, o.Principal, o.InterestRate,
		o.InterestMode, o.Cadence, o.InstallmentCount, o.InstallmentValue, o.TotalInterest, dates,
		o.AnchorDay, o.TotalPaid, o.RemainingBalance, o.Status, o.LateFeePercent, o.LateInterestRate, o.Notes, o.UpdatedAt,
		o.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update obligation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("obligation %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// DeleteObligation removes an obligation, its payments and its allocations
// within a transaction.
func (s *SQLiteStore) DeleteObligation(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM installment_allocations WHERE obligation_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete allocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE obligation_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM obligations WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete obligation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("obligation %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListObligations(ctx context.Context, tenantID uuid.UUID) ([]*models.Obligation, error) {
	return s.listObligations(ctx, tenantID, false)
}

func (s *SQLiteStore) ListOpenObligations(ctx context.Context, tenantID uuid.UUID) ([]*models.Obligation, error) {
	return s.listObligations(ctx, tenantID, true)
}

func (s *SQLiteStore) listObligations(ctx context.Context, tenantID uuid.UUID, openOnly bool) ([]*models.Obligation, error) {
	filter := `WHERE tenant_id = ?`
	if openOnly {
		filter += ` AND status != 'paid'`
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+obligationColumns+` FROM obligations `+filter+` ORDER BY created_at, id`, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var obligations []*models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation row: %w", err)
		}
		obligations = append(obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	paid, err := s.paidByIndex(ctx,
		`WHERE obligation_id IN (SELECT id FROM obligations WHERE tenant_id = ?)`, tenantID.String())
	if err != nil {
		return nil, err
	}
	for _, o := range obligations {
		o.PaidByIndex = paid[o.ID]
	}
	return obligations, nil
}

// paidByIndex sums allocations per obligation and installment. Amounts are
// TEXT, so the sum happens here rather than in SQL.
func (s *SQLiteStore) paidByIndex(ctx context.Context, filter string, args ...any) (map[uuid.UUID]map[int]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT obligation_id, installment_index, amount FROM installment_allocations `+filter, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read allocations: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]map[int]decimal.Decimal)
	for rows.Next() {
		var idStr string
		var index int
		var amount decimal.Decimal
		if err := rows.Scan(&idStr, &index, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		id := uuid.MustParse(idStr)
		if out[id] == nil {
			out[id] = make(map[int]decimal.Decimal)
		}
		out[id][index] = out[id][index].Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for allocations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObligation(row scanner) (*models.Obligation, error) {
	var o models.Obligation
	var idStr, tenantStr, dates string
	err := row.Scan(&idStr, &tenantStr, &o.Type, &o.ClientName, &o.ClientPhone, &o.Description,
		&o.Principal, &o.InterestRate, &o.InterestMode, &o.Cadence, &o.InstallmentCount, &o.InstallmentValue,
		&o.TotalInterest, &dates, &o.AnchorDay, &o.TotalPaid, &o.RemainingBalance, &o.Status, &o.LateFeePercent,
		&o.LateInterestRate, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ID = uuid.MustParse(idStr)
	o.TenantID = uuid.MustParse(tenantStr)
	if o.DueDates, err = decodeDates(dates); err != nil {
		return nil, err
	}
	return &o, nil
}

// SavePayment writes the payment row, its allocations and the obligation in one transaction.
func (s *SQLiteStore) SavePayment(ctx context.Context, o *models.Obligation, p *models.PaymentRecord, allocs []models.Allocation) error {
	prior, err := encodeDates(p.PriorDueDates)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, obligation_id, kind, amount, principal_portion, interest_portion, paid_on, notes, prior_due_dates, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.ObligationID.String(), p.Kind, p.Amount, p.PrincipalPortion, p.InterestPortion,
		schedule.FormatDate(p.PaidOn), p.Notes, prior, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	if err := insertAllocations(ctx, tx, allocs); err != nil {
		return err
	}
	if err := updateObligation(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit()
}

// DeletePayment removes the payment and its allocations and stores the rolled
// back obligation in one transaction.
func (s *SQLiteStore) DeletePayment(ctx context.Context, o *models.Obligation, paymentID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM installment_allocations WHERE payment_id = ?`, paymentID.String()); err != nil {
		return fmt.Errorf("failed to delete payment allocations: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, paymentID.String())
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", paymentID, ErrNotFound)
	}
	if err := updateObligation(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit()
}

const paymentColumns = `id, obligation_id, kind, amount, principal_portion, interest_portion, paid_on, notes, prior_due_dates, created_at`

func (s *SQLiteStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPayments returns the obligation's payments, oldest first.
func (s *SQLiteStore) ListPayments(ctx context.Context, obligationID uuid.UUID) ([]*models.PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE obligation_id = ? ORDER BY created_at ASC`, obligationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for obligation %s: %w", obligationID, err)
	}
	defer rows.Close()

	var payments []*models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row scanner) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	var idStr, obligationStr, paidOn, prior string
	err := row.Scan(&idStr, &obligationStr, &p.Kind, &p.Amount, &p.PrincipalPortion, &p.InterestPortion,
		&paidOn, &p.Notes, &prior, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.ObligationID = uuid.MustParse(obligationStr)
	if p.PaidOn, err = schedule.ParseDate(paidOn); err != nil {
		return nil, fmt.Errorf("bad paid_on %q: %w", paidOn, err)
	}
	if p.PriorDueDates, err = decodeDates(prior); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAllocations returns the obligation's ledger rows ordered by installment.
func (s *SQLiteStore) ListAllocations(ctx context.Context, obligationID uuid.UUID) ([]models.Allocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, obligation_id, payment_id, installment_index, amount, source, created_at
		FROM installment_allocations WHERE obligation_id = ? ORDER BY installment_index, created_at`, obligationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations for obligation %s: %w", obligationID, err)
	}
	defer rows.Close()

	var allocs []models.Allocation
	for rows.Next() {
		var a models.Allocation
		var idStr, obligationStr string
		var paymentStr sql.NullString
		if err := rows.Scan(&idStr, &obligationStr, &paymentStr, &a.InstallmentIndex, &a.Amount, &a.Source, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		a.ID = uuid.MustParse(idStr)
		a.ObligationID = uuid.MustParse(obligationStr)
		if paymentStr.Valid {
			pid := uuid.MustParse(paymentStr.String)
			a.PaymentID = &pid
		}
		allocs = append(allocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for allocations: %w", err)
	}
	return allocs, nil
}

func (s *SQLiteStore) ReplaceImportedAllocations(ctx context.Context, obligationID uuid.UUID, allocs []models.Allocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM installment_allocations WHERE obligation_id = ? AND source = ?`,
		obligationID.String(), models.AllocationFromImport)
	if err != nil {
		return fmt.Errorf("failed to clear imported allocations: %w", err)
	}
	if err := insertAllocations(ctx, tx, allocs); err != nil {
		return err
	}

	return tx.Commit()
}

func insertAllocations(ctx context.Context, db execer, allocs []models.Allocation) error {
	for _, a := range allocs {
		var paymentID any
		if a.PaymentID != nil {
			paymentID = a.PaymentID.String()
		}
		_, err := db.ExecContext(ctx,
			`INSERT INTO installment_allocations (id, obligation_id, payment_id, installment_index, amount, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID.String(), a.ObligationID.String(), paymentID, a.InstallmentIndex, a.Amount, a.Source, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create allocation for installment %d: %w", a.InstallmentIndex, err)
		}
	}
	return nil
}

// UpsertBillingProfile creates or replaces the tenant's billing profile.
func (s *SQLiteStore) UpsertBillingProfile(ctx context.Context, p *models.TenantBillingProfile) error {
	hours, err := json.Marshal(p.SendHours)
	if err != nil {
		return fmt.Errorf("failed to encode send hours: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO billing_profiles (tenant_id, name, active, instance_name, instance_connected, send_due_today, send_overdue,
			send_hours, pix_key, pix_label, signature, closing, show_progress, show_status_list, template_due_today, template_overdue, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			name = excluded.name, active = excluded.active, instance_name = excluded.instance_name,
			instance_connected = excluded.instance_connected, send_due_today = excluded.send_due_today,
			send_overdue = excluded.send_overdue, send_hours = excluded.send_hours, pix_key = excluded.pix_key,
			pix_label = excluded.pix_label, signature = excluded.signature, closing = excluded.closing,
			show_progress = excluded.show_progress, show_status_list = excluded.show_status_list,
			template_due_today = excluded.template_due_today, template_overdue = excluded.template_overdue,
			updated_at = excluded.updated_at`,
		p.TenantID.String(), p.Name, p.Active, p.InstanceName, p.InstanceConnected, p.SendDueToday, p.SendOverdue,
		string(hours), p.PixKey, p.PixLabel, p.Signature, p.Closing, p.ShowProgress, p.ShowStatusList,
		p.TemplateDueToday, p.TemplateOverdue, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save billing profile: %w", err)
	}
	return nil
}

const profileColumns = `tenant_id, name, active, instance_name, instance_connected, send_due_today, send_overdue, send_hours, pix_key, pix_label, signature, closing, show_progress, show_status_list, template_due_today, template_overdue, updated_at`

func (s *SQLiteStore) GetBillingProfile(ctx context.Context, tenantID uuid.UUID) (*models.TenantBillingProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM billing_profiles WHERE tenant_id = ?`, tenantID.String())
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("billing profile %s: %w", tenantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get billing profile: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListBillingProfiles(ctx context.Context, offset, limit int) ([]*models.TenantBillingProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM billing_profiles ORDER BY tenant_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.TenantBillingProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for billing profiles: %w", err)
	}
	return profiles, nil
}

func scanProfile(row scanner) (*models.TenantBillingProfile, error) {
	var p models.TenantBillingProfile
	var tenantStr, hours string
	err := row.Scan(&tenantStr, &p.Name, &p.Active, &p.InstanceName, &p.InstanceConnected, &p.SendDueToday,
		&p.SendOverdue, &hours, &p.PixKey, &p.PixLabel, &p.Signature, &p.Closing, &p.ShowProgress,
		&p.ShowStatusList, &p.TemplateDueToday, &p.TemplateOverdue, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TenantID = uuid.MustParse(tenantStr)
	if err := json.Unmarshal([]byte(hours), &p.SendHours); err != nil {
		return nil, fmt.Errorf("bad send_hours %q: %w", hours, err)
	}
	return &p, nil
}

// AppendSentLog records that a phone was messaged on a calendar day.
func (s *SQLiteStore) AppendSentLog(ctx context.Context, e models.SentLogEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sent_log (tenant_id, phone, sent_on) VALUES (?, ?, ?)`,
		e.TenantID.String(), e.Phone, schedule.FormatDate(e.SentOn))
	if err != nil {
		return fmt.Errorf("failed to append sent log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SentPhones(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT phone FROM sent_log WHERE tenant_id = ? AND sent_on = ?`,
		tenantID.String(), schedule.FormatDate(day))
	if err != nil {
		return nil, fmt.Errorf("failed to read sent log: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("failed to scan sent log row: %w", err)
		}
		phones = append(phones, phone)
	}
	return phones, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeDates(dates []time.Time) (string, error) {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = schedule.FormatDate(d)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode dates: %w", err)
	}
	return string(b), nil
}

func decodeDates(raw string) ([]time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, fmt.Errorf("bad date list %q: %w", raw, err)
	}
	if len(strs) == 0 {
		return nil, nil
	}
	dates := make([]time.Time, len(strs))
	for i, s := range strs {
		d, err := schedule.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("bad date %q: %w", s, err)
		}
		dates[i] = d
	}
	return dates, nil
}
