package models

// Role is a user's authorization level within the catalog
type Role string

const (
	// RoleAdmin is the global oversight role; it is not bound to a tenant.
	RoleAdmin  Role = "Admin"
	RoleEditor Role = "Editor"
	RoleViewer Role = "Viewer"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}
