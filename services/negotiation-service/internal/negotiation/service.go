package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/libs/auth"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/notify"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/outbox"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/rules"
)

// Store is the conditional read/write surface over the conversation aggregate.
//
// ApplyTransition must replace the appointment only while it still matches
// prior's identity and status, recording the notification intents in the same
// unit of work. When the guard no longer matches it reconciles against the
// current row: already at the desired state is a logical success (the applied
// appointment is returned), absence is ErrNotFound, anything else ErrConflict.
type Store interface {
	GetAppointment(ctx context.Context, conversationID, appointmentID string) (model.Appointment, error)
	ApplyTransition(ctx context.Context, prior, next model.Appointment, intents []outbox.Event) (model.Appointment, error)
}

// Request is a parsed transition request; Target is still raw because enum
// validation is part of the transition contract, not transport decoding.
type Request struct {
	ConversationID   string
	AppointmentID    string
	Target           string
	PreferredDate    string
	PreferredTime    string
	RejectSuggestion bool
	AcceptSuggestion bool
}

type Service struct {
	store    Store
	verifier auth.Verifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, verifier auth.Verifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		verifier: verifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Transition authenticates and authorizes the caller, validates the requested
// status change, and applies it with a conditional replace. Notification
// intents ride in the same unit of work as the write; their later delivery is
// best-effort and never part of this call's contract.
func (s *Service) Transition(ctx context.Context, bearer string, req Request) (model.Appointment, error) {
	appt, err := s.gate(ctx, bearer, req.ConversationID, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}

	target, ok := model.ParseStatus(req.Target)
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: unknown status %q", rules.ErrValidation, req.Target)
	}

	out, err := rules.Apply(appt, rules.Command{
		Target:           target,
		PreferredDate:    req.PreferredDate,
		PreferredTime:    req.PreferredTime,
		RejectSuggestion: req.RejectSuggestion,
		AcceptSuggestion: req.AcceptSuggestion,
	}, s.now())
	if err != nil {
		if errors.Is(err, rules.ErrTerminalState) {
			return model.Appointment{}, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return model.Appointment{}, err
	}

	intents, err := notify.IntentsFor(appt, out)
	if err != nil {
		// Notification assembly must never block the transition itself.
		s.logger.Error("notification intent build failed", "err", err, "appointment_id", appt.ID)
		intents = nil
	}

	applied, err := s.store.ApplyTransition(ctx, appt, out.Next, intents)
	if err != nil {
		return model.Appointment{}, err
	}
	return applied, nil
}

// Get returns the appointment for response assembly, behind the same gate as
// Transition.
func (s *Service) Get(ctx context.Context, bearer string, conversationID, appointmentID string) (model.Appointment, error) {
	return s.gate(ctx, bearer, conversationID, appointmentID)
}

// gate resolves the caller and loads the appointment, requiring the caller to
// be the appointment's customer. Ownership mismatch reads as absence.
func (s *Service) gate(ctx context.Context, bearer string, conversationID, appointmentID string) (model.Appointment, error) {
	if bearer == "" {
		return model.Appointment{}, ErrUnauthenticated
	}
	claims, err := s.verifier.Verify(bearer)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	appt, err := s.store.GetAppointment(ctx, conversationID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.CustomerID != claims.Sub {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}
