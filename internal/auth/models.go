package auth

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors the identity owned by the external auth provider. Only
// the identifier and email are kept locally.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
