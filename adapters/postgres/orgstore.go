package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

// OrganizationStore implements ports.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	q querier
	// lockRows makes Get take a row lock; set for stores bound to a transaction.
	lockRows bool
}

// NewOrganizationStore creates a new PostgreSQL organization store.
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{q: db}
}

const orgColumns = `id, name, billing_email, payment_status, suspended_at, suspension_reason,
	balance_due, last_payment_date, created_at, updated_at`

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org billing.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	if org.UpdatedAt.IsZero() {
		org.UpdatedAt = org.CreatedAt
	}
	if org.PaymentStatus == "" {
		org.PaymentStatus = billing.StatusActive
	}
	if err := org.Validate(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO organizations (`+orgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		org.ID, org.Name, org.BillingEmail, string(org.PaymentStatus),
		nullTime(org.SuspendedAt), nullString(org.SuspensionReason), org.BalanceDue,
		nullTime(org.LastPaymentDate), org.CreatedAt.UTC(), org.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Get retrieves an organization by ID. Inside a transaction the row is
// locked until commit so concurrent status updates for one org serialize.
func (s *OrganizationStore) Get(ctx context.Context, id string) (billing.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	if s.lockRows {
		query += ` FOR UPDATE`
	}
	return scanOrganization(s.q.QueryRowContext(ctx, query, id))
}

// List returns every organization with a payment status, ordered by ID.
func (s *OrganizationStore) List(ctx context.Context) ([]billing.Organization, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+orgColumns+` FROM organizations WHERE payment_status IS NOT NULL ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []billing.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SetPaymentStatus overwrites the payment status only.
func (s *OrganizationStore) SetPaymentStatus(ctx context.Context, id string, status billing.PaymentStatus, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE organizations SET payment_status = $1, updated_at = $2 WHERE id = $3
	`, string(status), at.UTC(), id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// ApplySuspension writes status, suspended_at, reason and balance.
func (s *OrganizationStore) ApplySuspension(ctx context.Context, id string, sus billing.Suspension) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE organizations
		SET payment_status = $1, suspended_at = $2, suspension_reason = $3, balance_due = $4, updated_at = $2
		WHERE id = $5
	`, string(sus.Status), sus.At.UTC(), nullString(sus.Reason), sus.BalanceDue, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// ApplyReinstatement restores ACTIVE and clears the suspension fields.
func (s *OrganizationStore) ApplyReinstatement(ctx context.Context, id string, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE organizations
		SET payment_status = 'ACTIVE', suspended_at = NULL, suspension_reason = NULL,
		    balance_due = 0, last_payment_date = $1, updated_at = $1
		WHERE id = $2
	`, at.UTC(), id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func scanOrganization(r rowScanner) (billing.Organization, error) {
	var (
		org         billing.Organization
		status      string
		reason      sql.NullString
		suspendedAt sql.NullTime
		lastPayment sql.NullTime
	)
	err := r.Scan(
		&org.ID, &org.Name, &org.BillingEmail, &status, &suspendedAt, &reason,
		&org.BalanceDue, &lastPayment, &org.CreatedAt, &org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Organization{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.Organization{}, err
	}
	org.PaymentStatus = billing.PaymentStatus(status)
	org.SuspendedAt = timePtr(suspendedAt)
	org.SuspensionReason = reason.String
	org.LastPaymentDate = timePtr(lastPayment)
	org.CreatedAt = org.CreatedAt.UTC()
	org.UpdatedAt = org.UpdatedAt.UTC()
	return org, nil
}

var _ ports.OrganizationStore = (*OrganizationStore)(nil)
