// Package endpoint provides the RPC endpoint value type.
package endpoint

import "time"

// Endpoint is a provisioned RPC endpoint owned by an organization (value type).
// IsActive is the single flag the relay-serving path checks before serving.
type Endpoint struct {
	ID        string
	OrgID     string
	Name      string
	IsActive  bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDeleted returns true if the endpoint was soft-deleted.
func (e Endpoint) IsDeleted() bool {
	return e.DeletedAt != nil
}

// CanServe returns true if the endpoint may serve relays.
func (e Endpoint) CanServe() bool {
	return e.IsActive && !e.IsDeleted()
}

// Reinstatable returns true if reinstating the owner may reactivate the endpoint.
func (e Endpoint) Reinstatable() bool {
	return !e.IsDeleted()
}

// SoftDelete returns e marked deleted and inactive.
// This is a PURE function.
func (e Endpoint) SoftDelete(at time.Time) Endpoint {
	e.IsActive = false
	e.DeletedAt = &at
	e.UpdatedAt = at
	return e
}
