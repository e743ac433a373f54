package notify

import (
	"encoding/json"

	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/outbox"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/rules"
)

const (
	EventRescheduleAccepted  = "negotiation.reschedule.accepted.v1"
	EventAppointmentCanceled = "negotiation.appointment.canceled.v1"
)

// RescheduleAcceptedPayload carries the original and the newly agreed time so
// the business sees what changed.
type RescheduleAcceptedPayload struct {
	ConversationID string `json:"conversation_id"`
	AppointmentID  string `json:"appointment_id"`
	BusinessID     string `json:"business_id"`
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	CustomerPhone  string `json:"customer_phone"`
	Service        string `json:"service"`
	OldDate        string `json:"old_date"`
	OldTime        string `json:"old_time"`
	NewDate        string `json:"new_date"`
	NewTime        string `json:"new_time"`
}

type AppointmentCanceledPayload struct {
	ConversationID string `json:"conversation_id"`
	AppointmentID  string `json:"appointment_id"`
	BusinessID     string `json:"business_id"`
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	Service        string `json:"service"`
	PreferredDate  string `json:"preferred_date"`
	PreferredTime  string `json:"preferred_time"`
}

// IntentsFor builds the outbox events owed by a validated transition. Only two
// transition shapes notify anyone: accepting a reschedule suggestion and
// cancelling. prior is the appointment as read before the transition applied.
func IntentsFor(prior model.Appointment, out rules.Outcome) ([]outbox.Event, error) {
	switch {
	case out.AcceptedReschedule:
		payload, err := json.Marshal(RescheduleAcceptedPayload{
			ConversationID: prior.ConversationID,
			AppointmentID:  prior.ID,
			BusinessID:     prior.BusinessID,
			CustomerID:     prior.CustomerID,
			CustomerName:   prior.CustomerName,
			CustomerPhone:  prior.CustomerPhone,
			Service:        prior.Service,
			OldDate:        prior.PreferredDate,
			OldTime:        prior.PreferredTime,
			NewDate:        out.Next.PreferredDate,
			NewTime:        out.Next.PreferredTime,
		})
		if err != nil {
			return nil, err
		}
		return []outbox.Event{{
			AggregateType: "appointment",
			AggregateID:   prior.ID,
			EventType:     EventRescheduleAccepted,
			Payload:       payload,
		}}, nil

	case out.Canceled:
		payload, err := json.Marshal(AppointmentCanceledPayload{
			ConversationID: prior.ConversationID,
			AppointmentID:  prior.ID,
			BusinessID:     prior.BusinessID,
			CustomerID:     prior.CustomerID,
			CustomerName:   prior.CustomerName,
			Service:        prior.Service,
			PreferredDate:  prior.PreferredDate,
			PreferredTime:  prior.PreferredTime,
		})
		if err != nil {
			return nil, err
		}
		return []outbox.Event{{
			AggregateType: "appointment",
			AggregateID:   prior.ID,
			EventType:     EventAppointmentCanceled,
			Payload:       payload,
		}}, nil

	default:
		// Plain confirms and re-affirmations are silent.
		return nil, nil
	}
}
