package domain

import "github.com/google/uuid"

type Role string

const (
	RoleDriver Role = "DRIVER"
	RoleStaff  Role = "STAFF"
	RoleAdmin  Role = "ADMIN"
)

// Actor is the authenticated caller, used only for audit fields.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: "SYSTEM"}
