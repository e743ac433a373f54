package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/directory"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/email"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
)

// MessageLog appends synthetic messages to a conversation.
type MessageLog interface {
	AppendMessage(ctx context.Context, msg model.Message) error
}

// Dispatcher delivers notification intents: directory lookups, emails and
// conversation messages. Every failure in here is logged and dropped; nothing
// escapes to the caller, so a dead SMTP relay or directory can never unwind a
// committed transition.
type Dispatcher struct {
	dir      directory.Provider
	email    email.Sender
	messages MessageLog
	logger   *slog.Logger
}

func NewDispatcher(dir directory.Provider, emailSender email.Sender, messages MessageLog, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		dir:      dir,
		email:    emailSender,
		messages: messages,
		logger:   logger,
	}
}

// Handle processes one intent. It never returns an error by design of the
// component boundary.
func (d *Dispatcher) Handle(ctx context.Context, eventType string, payload []byte) {
	switch eventType {
	case EventRescheduleAccepted:
		var p RescheduleAcceptedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			d.logger.Error("invalid reschedule.accepted payload", "err", err)
			return
		}
		d.handleAccepted(ctx, p)
	case EventAppointmentCanceled:
		var p AppointmentCanceledPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			d.logger.Error("invalid appointment.canceled payload", "err", err)
			return
		}
		d.handleCanceled(ctx, p)
	default:
		d.logger.Warn("unknown notification intent", "event_type", eventType)
	}
}

func (d *Dispatcher) handleAccepted(ctx context.Context, p RescheduleAcceptedPayload) {
	body := fmt.Sprintf("Accepted the suggested time for %s: %s at %s (was %s at %s).",
		p.Service, p.NewDate, p.NewTime, p.OldDate, p.OldTime)
	d.appendMessage(ctx, model.Message{
		ConversationID: p.ConversationID,
		SenderID:       p.CustomerID,
		Body:           body,
		System:         true,
	})

	biz, ok := d.findBusiness(ctx, p.BusinessID)
	if !ok || biz.Email == "" {
		return
	}
	subject := "Reschedule accepted: " + p.Service
	mail := fmt.Sprintf(
		"%s accepted your suggested time.\n\nService: %s\nOriginal: %s at %s\nNew: %s at %s\nCustomer phone: %s\n",
		p.CustomerName, p.Service, p.OldDate, p.OldTime, p.NewDate, p.NewTime, p.CustomerPhone)
	d.sendEmail(biz.Email, subject, mail, p.AppointmentID)
}

func (d *Dispatcher) handleCanceled(ctx context.Context, p AppointmentCanceledPayload) {
	biz, ok := d.findBusiness(ctx, p.BusinessID)
	if !ok {
		return
	}

	body := fmt.Sprintf("Canceled the appointment for %s on %s at %s.",
		p.Service, p.PreferredDate, p.PreferredTime)
	d.appendMessage(ctx, model.Message{
		ConversationID: p.ConversationID,
		SenderID:       p.CustomerID,
		Body:           body,
		System:         true,
	})

	subject := "Appointment canceled: " + p.Service
	if biz.Email != "" {
		mail := fmt.Sprintf("%s canceled the appointment for %s on %s at %s.\n",
			p.CustomerName, p.Service, p.PreferredDate, p.PreferredTime)
		d.sendEmail(biz.Email, subject, mail, p.AppointmentID)
	}

	// Customer copy is best-effort on top of best-effort: a missing user
	// record must not fail the cancellation flow.
	if d.dir == nil {
		return
	}
	user, found, err := d.dir.FindUser(ctx, p.CustomerID)
	if err != nil {
		d.logger.Error("user directory lookup failed", "err", err, "user_id", p.CustomerID)
		return
	}
	if !found || user.Email == "" {
		return
	}
	mail := fmt.Sprintf("Your appointment for %s on %s at %s has been canceled.\n",
		p.Service, p.PreferredDate, p.PreferredTime)
	d.sendEmail(user.Email, subject, mail, p.AppointmentID)
}

func (d *Dispatcher) findBusiness(ctx context.Context, id string) (directory.Business, bool) {
	if d.dir == nil {
		d.logger.Warn("directory not configured; skipping notification", "business_id", id)
		return directory.Business{}, false
	}
	biz, found, err := d.dir.FindBusiness(ctx, id)
	if err != nil {
		d.logger.Error("business directory lookup failed", "err", err, "business_id", id)
		return directory.Business{}, false
	}
	if !found {
		d.logger.Warn("business not found in directory", "business_id", id)
		return directory.Business{}, false
	}
	return biz, true
}

func (d *Dispatcher) appendMessage(ctx context.Context, msg model.Message) {
	if d.messages == nil {
		return
	}
	if err := d.messages.AppendMessage(ctx, msg); err != nil {
		d.logger.Error("conversation message append failed", "err", err, "conversation_id", msg.ConversationID)
	}
}

func (d *Dispatcher) sendEmail(to, subject, body, appointmentID string) {
	if d.email == nil {
		return
	}
	if err := d.email.Send(to, subject, body); err != nil {
		d.logger.Error("email send failed", "err", err, "appointment_id", appointmentID)
	}
}
