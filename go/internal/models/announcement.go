package models

import (
	"time"

	"github.com/google/uuid"
)

// Announcement is a message shown on the dashboard, newest first
type Announcement struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}
