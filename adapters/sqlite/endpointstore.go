package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/ports"
)

// EndpointStore implements ports.EndpointStore using SQLite.
type EndpointStore struct {
	q querier
}

// NewEndpointStore creates a new SQLite endpoint store.
func NewEndpointStore(db *DB) *EndpointStore {
	return &EndpointStore{q: db}
}

const endpointColumns = `id, org_id, name, is_active, deleted_at, created_at, updated_at`

// Create stores a new endpoint.
func (s *EndpointStore) Create(ctx context.Context, ep endpoint.Endpoint) error {
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	if ep.UpdatedAt.IsZero() {
		ep.UpdatedAt = ep.CreatedAt
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO endpoints (`+endpointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ep.ID, ep.OrgID, ep.Name, ep.IsActive, nullTime(ep.DeletedAt), ep.CreatedAt.UTC(), ep.UpdatedAt.UTC())
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves an endpoint by ID.
func (s *EndpointStore) Get(ctx context.Context, id string) (endpoint.Endpoint, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	return scanEndpoint(row)
}

// ListByOrg returns all endpoints of an organization.
func (s *EndpointStore) ListByOrg(ctx context.Context, orgID string) ([]endpoint.Endpoint, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+endpointColumns+` FROM endpoints WHERE org_id = ? ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eps []endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

// SetActiveForOrg flips is_active for the organization's endpoints and
// returns how many rows actually changed.
func (s *EndpointStore) SetActiveForOrg(ctx context.Context, orgID string, active, onlyNonDeleted bool, at time.Time) (int64, error) {
	query := `UPDATE endpoints SET is_active = ?, updated_at = ? WHERE org_id = ? AND is_active <> ?`
	if onlyNonDeleted {
		query += ` AND deleted_at IS NULL`
	}

	result, err := s.q.ExecContext(ctx, query, active, at.UTC(), orgID, active)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SoftDelete marks an endpoint deleted and inactive.
func (s *EndpointStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE endpoints SET is_active = 0, deleted_at = ?, updated_at = ? WHERE id = ?
	`, at, at, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func scanEndpoint(r rowScanner) (endpoint.Endpoint, error) {
	var (
		ep        endpoint.Endpoint
		deletedAt sql.NullTime
	)
	err := r.Scan(&ep.ID, &ep.OrgID, &ep.Name, &ep.IsActive, &deletedAt, &ep.CreatedAt, &ep.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return endpoint.Endpoint{}, ErrNotFound
	}
	if err != nil {
		return endpoint.Endpoint{}, err
	}
	ep.DeletedAt = timePtr(deletedAt)
	ep.CreatedAt = ep.CreatedAt.UTC()
	ep.UpdatedAt = ep.UpdatedAt.UTC()
	return ep, nil
}

var _ ports.EndpointStore = (*EndpointStore)(nil)
