package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

// InvoiceStore implements ports.InvoiceStore using SQLite.
type InvoiceStore struct {
	q querier
}

// NewInvoiceStore creates a new SQLite invoice store.
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{q: db}
}

const invoiceColumns = `id, org_id, provider_id, amount, currency, status, due_date, paid_at, created_at`

// Create stores a new invoice.
func (s *InvoiceStore) Create(ctx context.Context, inv billing.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Currency == "" {
		inv.Currency = "usd"
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.OrgID, nullString(inv.ProviderID), inv.Amount, inv.Currency,
		string(inv.Status), inv.DueDate.UTC(), nullTime(inv.PaidAt), inv.CreatedAt.UTC(),
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (billing.Invoice, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	return scanInvoice(row)
}

// GetByProviderID retrieves an invoice by payment provider ID.
func (s *InvoiceStore) GetByProviderID(ctx context.Context, providerID string) (billing.Invoice, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE provider_id = ?`, providerID)
	return scanInvoice(row)
}

// FindOldestUnpaid returns the unpaid invoice with the earliest due date.
func (s *InvoiceStore) FindOldestUnpaid(ctx context.Context, orgID string) (billing.Invoice, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE org_id = ? AND status IN ('open', 'uncollectible')
		ORDER BY due_date ASC
		LIMIT 1
	`, orgID)
	return scanInvoice(row)
}

// SumUnpaidAmount totals open and uncollectible invoices.
func (s *InvoiceStore) SumUnpaidAmount(ctx context.Context, orgID string) (float64, error) {
	var total float64
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM invoices
		WHERE org_id = ? AND status IN ('open', 'uncollectible')
	`, orgID).Scan(&total)
	return total, err
}

// SetStatus updates an invoice's status and paid timestamp.
func (s *InvoiceStore) SetStatus(ctx context.Context, id string, status billing.InvoiceStatus, paidAt *time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE invoices
		SET status = ?, paid_at = ?
		WHERE id = ?
	`, string(status), nullTime(paidAt), id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// ListByOrg returns all invoices for an organization, oldest due first.
func (s *InvoiceStore) ListByOrg(ctx context.Context, orgID string) ([]billing.Invoice, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE org_id = ?
		ORDER BY due_date ASC, id ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanInvoice(r rowScanner) (billing.Invoice, error) {
	var (
		inv        billing.Invoice
		status     string
		providerID sql.NullString
		paidAt     sql.NullTime
	)
	err := r.Scan(
		&inv.ID, &inv.OrgID, &providerID, &inv.Amount, &inv.Currency,
		&status, &inv.DueDate, &paidAt, &inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Invoice{}, ErrNotFound
	}
	if err != nil {
		return billing.Invoice{}, err
	}

	inv.ProviderID = providerID.String
	inv.Status = billing.InvoiceStatus(status)
	inv.DueDate = inv.DueDate.UTC()
	inv.PaidAt = timePtr(paidAt)
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

var _ ports.InvoiceStore = (*InvoiceStore)(nil)
