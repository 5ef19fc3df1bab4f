package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Bet is one participant's set of predictions for a weekly schedule.
// OwnerRef is the user ID for registered participants or the display name
// for guest bets entered by an admin on someone's behalf.
type Bet struct {
	ID          uuid.UUID                 `json:"id"`
	OwnerRef    string                    `json:"ownerRef"`
	IsGuestBet  bool                      `json:"isGuestBet"`
	TotalGoals  int                       `json:"totalGoals"`
	Paid        bool                      `json:"paid"`
	Predictions map[uuid.UUID]MatchResult `json:"predictions"`
}

// Fingerprint returns a canonical encoding of the bet's editable content
// (predictions plus total goals). Two bets with the same picks produce the
// same fingerprint regardless of map iteration order; it is the value the
// pending tracker compares when deciding whether an incoming bet delta is
// the echo of our own save.
func (b *Bet) Fingerprint() string {
	keys := make([]string, 0, len(b.Predictions))
	for k := range b.Predictions {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(string(b.Predictions[uuid.MustParse(k)]))
		sb.WriteByte(';')
	}
	fmt.Fprintf(&sb, "totalGoals=%d", b.TotalGoals)
	return sb.String()
}

// Clone returns a deep copy so optimistic writes can snapshot the prior
// value without sharing the predictions map.
func (b *Bet) Clone() *Bet {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Predictions = make(map[uuid.UUID]MatchResult, len(b.Predictions))
	for k, v := range b.Predictions {
		cp.Predictions[k] = v
	}
	return &cp
}
