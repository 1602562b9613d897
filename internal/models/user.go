package models

import (
	"strings"
	"time"
)

// UserRole represents the two marketplace roles.
type UserRole string

const (
	RolePrincipal UserRole = "principal"
	RoleTeacher   UserRole = "teacher"
)

// NormalizeRole trims and lowercases a raw role value. Role is free text in
// the profiles table, so every read-side comparison goes through here.
func NormalizeRole(raw string) UserRole {
	return UserRole(strings.ToLower(strings.TrimSpace(raw)))
}

// Valid reports whether the role is one of the two known values.
func (r UserRole) Valid() bool {
	return r == RolePrincipal || r == RoleTeacher
}

// User represents a credentialed account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
