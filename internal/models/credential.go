package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential roles.
const (
	RoleAdmin   = "ADMIN"
	RoleDisplay = "DISPLAY"
)

// DisplayCredential authenticates an admin or a display screen. Display
// credentials may be scoped to a category; that binding blocks deletion of
// the category while it exists.
type DisplayCredential struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Category     *string   `db:"category" json:"category,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// JWTClaims carried in issued access tokens.
type JWTClaims struct {
	CredentialID string  `json:"credential_id"`
	Username     string  `json:"username"`
	Role         string  `json:"role"`
	Category     *string `json:"category,omitempty"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
