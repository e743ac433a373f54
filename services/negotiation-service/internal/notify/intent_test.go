package notify

import (
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/rules"
)

func baseAppointment() model.Appointment {
	return model.Appointment{
		ID:             "appt-1",
		ConversationID: "conv-1",
		CustomerID:     "customer-1",
		BusinessID:     "biz-1",
		Service:        "Haircut",
		CustomerName:   "Dana",
		CustomerPhone:  "+15550001111",
		Status:         model.StatusRescheduleRequested,
		PreferredDate:  "2026-03-15",
		PreferredTime:  "10:00",
	}
}

func TestIntentsFor_AcceptedReschedule(t *testing.T) {
	prior := baseAppointment()
	next := prior
	next.Status = model.StatusConfirmed
	next.PreferredDate = "2026-03-16"
	next.PreferredTime = "14:00"
	next.WasRescheduled = true

	events, err := IntentsFor(prior, rules.Outcome{Next: next, AcceptedReschedule: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.EventType != EventRescheduleAccepted || evt.AggregateID != "appt-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	var payload RescheduleAcceptedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if payload.OldDate != "2026-03-15" || payload.OldTime != "10:00" {
		t.Fatalf("payload must carry the original time, got %+v", payload)
	}
	if payload.NewDate != "2026-03-16" || payload.NewTime != "14:00" {
		t.Fatalf("payload must carry the agreed time, got %+v", payload)
	}
	if payload.CustomerName != "Dana" || payload.CustomerPhone != "+15550001111" {
		t.Fatalf("payload must carry customer contact details, got %+v", payload)
	}
}

func TestIntentsFor_Canceled(t *testing.T) {
	prior := baseAppointment()
	next := prior
	next.Status = model.StatusCanceled

	events, err := IntentsFor(prior, rules.Outcome{Next: next, Canceled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].EventType != EventAppointmentCanceled {
		t.Fatalf("expected one canceled event, got %+v", events)
	}
}

func TestIntentsFor_PlainConfirmIsSilent(t *testing.T) {
	prior := baseAppointment()
	prior.Status = model.StatusRequested
	next := prior
	next.Status = model.StatusConfirmed

	events, err := IntentsFor(prior, rules.Outcome{Next: next})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("plain confirm must be silent, got %+v", events)
	}
}
