package model

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// AdminUser is an operator of the template admin. Admins are bound to one
// organization; super admins have none and see every template.
type AdminUser struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Role           Role       `json:"role"`
	Status         Status     `json:"status"`
	OrganizationID *string    `json:"organization_id"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// Scope returns the organization the user is restricted to. ok is false for
// super admins, who are not restricted. An admin without an organization is
// scoped to the empty id and sees nothing.
func (u *AdminUser) Scope() (organizationID string, ok bool) {
	if u.Role == RoleSuperAdmin {
		return "", false
	}
	if u.OrganizationID == nil {
		return "", true
	}
	return *u.OrganizationID, true
}
