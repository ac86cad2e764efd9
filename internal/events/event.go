// Package events carries claim notifications from the claim coordinator to every
// connected notification stream.
package events

import (
	"context"
	"time"
)

// Type identifies a claim event.
type Type string

const (
	TypeClaimed   Type = "claimed"
	TypeUnclaimed Type = "unclaimed"
)

// Event is published once per committed claim or unclaim. It is never persisted.
type Event struct {
	Type        Type      `json:"type"`
	CompanyID   int64     `json:"company_id"`
	CompanyName string    `json:"company_name"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers events to live subscribers. Publish is best-effort and never fails
// the caller; delivery problems are logged by the implementation.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
