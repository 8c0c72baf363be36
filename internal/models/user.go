package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Name         string
	Email        string
	PasswordHash string

	// The only refresh token that may be exchanged for a new pair
	// Empty string means there is no active session
	RefreshToken string
}

// Identity extracted from a verified access token
type Identity struct {
	UserID uuid.UUID
	Email  string
}
