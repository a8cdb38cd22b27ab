// Package identity holds admin users, their invitations and the session user.
package identity

import (
	"time"
)

// Role is an admin permission level
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleStaff      Role = "staff"
)

// User is the authenticated account persisted alongside the tokens
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// FullName joins first and last name
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// AdminUser is a staff account with CRM access
type AdminUser struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Role       Role       `json:"role"`
	IsActive   bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login"`
	DateJoined time.Time  `json:"date_joined"`
}

// EntityID implements shared.Entity
func (a AdminUser) EntityID() int64 { return a.ID }

// AdminUserUpdate carries only the fields being changed
type AdminUserUpdate struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=150"`
	Role      *Role   `json:"role,omitempty" validate:"omitempty,oneof=superadmin admin manager staff"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// InvitationStatus is the server-side state of an invitation
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
	InvitationStatusRevoked  InvitationStatus = "revoked"
)

// AdminInvitation is an emailed invite to become an admin user.
// The token is generated and expired by the backend.
type AdminInvitation struct {
	ID        int64            `json:"id"`
	Email     string           `json:"email"`
	Role      Role             `json:"role"`
	Status    InvitationStatus `json:"status"`
	InvitedBy *int64           `json:"invited_by"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// EntityID implements shared.Entity
func (i AdminInvitation) EntityID() int64 { return i.ID }

// InvitationCreate is the payload for inviting an admin
type InvitationCreate struct {
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"role" validate:"required,oneof=admin manager staff"`
}

// InvitationAccept completes registration using the emailed token
type InvitationAccept struct {
	Token     string `json:"token" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Password  string `json:"password" validate:"required,min=8"`
}

// Credentials are exchanged for a token pair at login
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is the login endpoint response
type LoginResult struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}
