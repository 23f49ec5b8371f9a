package domain

// Role enumerates the account kinds of the helpdesk.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleDepartment Role = "department"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTechnician, RoleDepartment:
		return true
	default:
		return false
	}
}

// Identity is the authenticated caller bound to a request or a realtime connection.
type Identity struct {
	ID   int64
	Role Role
}
