package audit

import "time"

// Payload is the JSON document published to downstream consumers for each
// event. Client IPs stay in the primary store and are not published.
type Payload struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	OperatorID int64  `json:"operator_id,omitempty"`
	MemberID   int64  `json:"member_id,omitempty"`
	Action     string `json:"action"`
	Decision   string `json:"decision,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Terminal   string `json:"terminal,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// PayloadOf renders event as its published JSON document.
func PayloadOf(event Event) Payload {
	return Payload{
		ID:         event.ID.String(),
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
		OperatorID: int64(event.OperatorID),
		MemberID:   int64(event.MemberID),
		Action:     event.Action,
		Decision:   event.Decision,
		Reason:     event.Reason,
		Channel:    event.Channel,
		Terminal:   event.Terminal,
		RequestID:  event.RequestID,
	}
}
