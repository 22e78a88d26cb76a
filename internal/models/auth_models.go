package models

import "time"

// Staff roles. Pharmacist and admin gate the mutating inventory routes.
const (
	RoleAdmin       = "admin"
	RolePharmacist  = "pharmacist"
	RoleOptometrist = "optometrist"
	RoleReception   = "reception"
)

// User represents a staff account. It exists so stock mutations carry a real
// actor in their audit entries.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Email        *string   `json:"email,omitempty" db:"email"`
	FullName     *string   `json:"full_name,omitempty" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	ClinicID     *int64    `json:"clinic_id,omitempty" db:"clinic_id"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Credentials for login request.
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
