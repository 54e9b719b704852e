package domain

import "time"

// Role enumerates access levels resolved for an identity.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleNone  Role = "none"
)

// Profile is an account that can sign in to the admin panel.
type Profile struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor identifies who initiates a mutating operation.
type Actor struct {
	ID    string
	Email string
}
