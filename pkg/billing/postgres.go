package billing

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/storage/postgres"
	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

// MigrationFS holds the billing schema migrations
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// MigrationsTable records which billing migrations have been applied
const MigrationsTable = "billing_migrations"

// Migrate applies pending billing schema migrations
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	migrations, err := postgres.LoadMigrations(MigrationFS, "migrations")
	if err != nil {
		return err
	}
	return postgres.RunMigrations(ctx, db, MigrationsTable, migrations, logger)
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewPostgresStore creates a PostgresStore. metrics may be nil.
func NewPostgresStore(db *sql.DB, metrics *observability.Metrics) *PostgresStore {
	return &PostgresStore{db: db, metrics: metrics}
}

const subscriptionColumns = `id, tenant_id, plan_id, tier, status, billing_interval,
	current_period_start, current_period_end, cancel_at_period_end, trial_end,
	quantity, stripe_subscription_id, stripe_customer_id`

func (s *PostgresStore) GetSubscription(ctx context.Context, tenantID string) (sub *Subscription, err error) {
	defer s.observe("get_subscription", time.Now(), &err)

	query := `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions WHERE tenant_id = $1`
	sub, err = scanSubscription(s.db.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscriptionByCustomer(ctx context.Context, customerID string) (sub *Subscription, err error) {
	defer s.observe("get_subscription_by_customer", time.Now(), &err)

	query := `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions WHERE stripe_customer_id = $1`
	sub, err = scanSubscription(s.db.QueryRowContext(ctx, query, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription for customer %s %w", customerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// SaveSubscription upserts on tenant_id so a tenant never holds two rows
func (s *PostgresStore) SaveSubscription(ctx context.Context, sub *Subscription) (err error) {
	defer s.observe("save_subscription", time.Now(), &err)

	if sub.TenantID == "" {
		return fmt.Errorf("subscription has no tenant")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	query := `
		INSERT INTO billing_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id) DO UPDATE
		SET id = EXCLUDED.id, plan_id = EXCLUDED.plan_id, tier = EXCLUDED.tier,
		    status = EXCLUDED.status, billing_interval = EXCLUDED.billing_interval,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		    trial_end = EXCLUDED.trial_end, quantity = EXCLUDED.quantity,
		    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		    stripe_customer_id = EXCLUDED.stripe_customer_id,
		    updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query,
		sub.ID, sub.TenantID, sub.PlanID, string(sub.Tier), string(sub.Status), string(sub.BillingInterval),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, nullTime(sub.TrialEnd),
		sub.Quantity, nullString(sub.StripeSubscriptionID), nullString(sub.StripeCustomerID),
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

const invoiceColumns = `id, number, amount, currency, status, created_at, due_date, paid_at, pdf_url`

// ListInvoices returns the tenant's invoices, newest first
func (s *PostgresStore) ListInvoices(ctx context.Context, tenantID string) (invoices []Invoice, err error) {
	defer s.observe("list_invoices", time.Now(), &err)

	query := `SELECT ` + invoiceColumns + ` FROM billing_invoices
		WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices = []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func (s *PostgresStore) GetInvoice(ctx context.Context, tenantID, invoiceID string) (inv *Invoice, err error) {
	defer s.observe("get_invoice", time.Now(), &err)

	query := `SELECT ` + invoiceColumns + ` FROM billing_invoices WHERE tenant_id = $1 AND id = $2`
	inv, err = scanInvoice(s.db.QueryRowContext(ctx, query, tenantID, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, tenantID string, invoice *Invoice) (err error) {
	defer s.observe("save_invoice", time.Now(), &err)

	if invoice.ID == "" {
		return fmt.Errorf("invoice has no id")
	}

	query := `
		INSERT INTO billing_invoices (tenant_id, ` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET number = EXCLUDED.number, amount = EXCLUDED.amount, currency = EXCLUDED.currency,
		    status = EXCLUDED.status, due_date = EXCLUDED.due_date,
		    paid_at = EXCLUDED.paid_at, pdf_url = EXCLUDED.pdf_url
	`
	_, err = s.db.ExecContext(ctx, query,
		tenantID, invoice.ID, invoice.Number, invoice.Amount, invoice.Currency, string(invoice.Status),
		invoice.CreatedAt, nullTime(invoice.DueDate), nullTime(invoice.PaidAt), nullString(invoice.PDFURL),
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (s *PostgresStore) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveStore(op, "postgres", start, *err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub                         Subscription
		tier, status, interval      string
		trialEnd                    sql.NullTime
		stripeSubID, stripeCustomer sql.NullString
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &tier, &status, &interval,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &trialEnd,
		&sub.Quantity, &stripeSubID, &stripeCustomer,
	)
	if err != nil {
		return nil, err
	}

	sub.Tier = subscriptions.PlanTier(tier)
	sub.Status = subscriptions.SubscriptionStatus(status)
	sub.BillingInterval = subscriptions.BillingInterval(interval)
	if trialEnd.Valid {
		t := trialEnd.Time
		sub.TrialEnd = &t
	}
	sub.StripeSubscriptionID = stripeSubID.String
	sub.StripeCustomerID = stripeCustomer.String
	return &sub, nil
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var (
		inv             Invoice
		status          string
		dueDate, paidAt sql.NullTime
		pdfURL          sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.Amount, &inv.Currency, &status,
		&inv.CreatedAt, &dueDate, &paidAt, &pdfURL)
	if err != nil {
		return nil, err
	}

	inv.Status = subscriptions.InvoiceStatus(status)
	if dueDate.Valid {
		t := dueDate.Time
		inv.DueDate = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	inv.PDFURL = pdfURL.String
	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
