package model

import "time"

// Status is the closed set of appointment negotiation states.
type Status string

const (
	StatusRequested           Status = "requested"
	StatusConfirmed           Status = "confirmed"
	StatusRescheduleRequested Status = "reschedule_requested"
	StatusCanceled            Status = "canceled"
)

// ParseStatus validates a raw status value at the request boundary.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusRequested, StatusConfirmed, StatusRescheduleRequested, StatusCanceled:
		return Status(raw), true
	default:
		return "", false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// SuggestedTime is a business-proposed alternative awaiting customer accept/reject.
// It is present iff the appointment is in reschedule_requested.
type SuggestedTime struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Appointment is the negotiable booking record, owned by a Conversation.
type Appointment struct {
	ID             string
	ConversationID string
	CustomerID     string
	BusinessID     string
	Service        string
	CustomerName   string
	CustomerPhone  string
	Status         Status
	PreferredDate  string
	PreferredTime  string
	Suggested      *SuggestedTime
	WasRescheduled bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is one entry in a conversation's message log. System messages are
// synthetic entries appended on negotiation events; SenderID records the party
// the message is attributed to.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	System         bool
	CreatedAt      time.Time
}
