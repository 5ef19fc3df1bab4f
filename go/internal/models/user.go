package models

import (
	"github.com/google/uuid"
)

// User is a registered pool participant. The roster is maintained through
// admin:update deltas and is what payment records are denormalized against.
type User struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	IsAdmin bool      `json:"isAdmin"`
}
