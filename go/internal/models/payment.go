package models

import (
	"github.com/google/uuid"
)

// PaymentStatus represents where a participant stands with the pool fee
type PaymentStatus string

const (
	PaymentStatusNA      PaymentStatus = "na"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PaymentRecord is the denormalized payment view the admin console renders:
// one row per user, joined against that user's bet for the current week.
// Keyed by UserID; BetID is a secondary key for deltas that only carry the bet.
type PaymentRecord struct {
	UserID        uuid.UUID     `json:"userId"`
	BetID         *uuid.UUID    `json:"betId,omitempty"`
	Paid          bool          `json:"paid"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	HasBet        bool          `json:"hasBet"`
}
