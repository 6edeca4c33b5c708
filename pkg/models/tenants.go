package models

import (
	"time"
)

// Tenant represents an isolated customer organization
type Tenant struct {
	ID        string    `json:"id" db:"id" bson:"_id"`
	Name      string    `json:"name" db:"name" bson:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// TenantRef identifies the owning tenant of a record. Name is only set when
// the data-access layer resolved the tenant; ID is always set.
type TenantRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

// NewTenantRef builds an unresolved reference
func NewTenantRef(id string) TenantRef {
	return TenantRef{ID: id}
}

// Resolved returns a copy of the reference carrying the tenant's name
func (r TenantRef) Resolved(name string) TenantRef {
	r.Name = &name
	return r
}

// IsResolved reports whether the tenant's projection was loaded
func (r TenantRef) IsResolved() bool {
	return r.Name != nil
}
