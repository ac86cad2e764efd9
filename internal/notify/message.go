package notify

import (
	"time"

	"github.com/wolfeidau/leadpool/internal/events"
)

// Message types sent on a notification stream.
const (
	MessageConnected        = "connected"
	MessageCompanyClaimed   = "company_claimed"
	MessageCompanyUnclaimed = "company_unclaimed"
	MessageHeartbeat        = "heartbeat"
)

// Message is one server-sent event. Which fields are set depends on Type.
type Message struct {
	Type string `json:"type"`

	// connected
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	Username     string `json:"username,omitempty"`

	// company_claimed, company_unclaimed
	CompanyID           int64  `json:"company_id,omitempty"`
	CompanyName         string `json:"company_name,omitempty"`
	ClaimedByUsername   string `json:"claimed_by_username,omitempty"`
	ClaimedByUserID     int64  `json:"claimed_by_user_id,omitempty"`
	UnclaimedByUsername string `json:"unclaimed_by_username,omitempty"`

	// RFC3339, set on everything except connected
	Timestamp string `json:"timestamp,omitempty"`
}

// MessageFromEvent converts a bus event into its stream message.
func MessageFromEvent(e events.Event) Message {
	msg := Message{
		CompanyID:   e.CompanyID,
		CompanyName: e.CompanyName,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
	}

	switch e.Type {
	case events.TypeClaimed:
		msg.Type = MessageCompanyClaimed
		msg.ClaimedByUsername = e.Username
		msg.ClaimedByUserID = e.UserID
	case events.TypeUnclaimed:
		msg.Type = MessageCompanyUnclaimed
		msg.UnclaimedByUsername = e.Username
	default:
		msg.Type = string(e.Type)
	}

	return msg
}

func heartbeatMessage(now time.Time) Message {
	return Message{
		Type:      MessageHeartbeat,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
