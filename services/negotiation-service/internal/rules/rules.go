package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
)

var (
	// ErrValidation marks requests rejected before any write is attempted.
	ErrValidation = errors.New("invalid transition request")
	// ErrTerminalState marks transitions attempted from canceled.
	ErrTerminalState = errors.New("appointment is canceled")
)

// Command is the customer's requested transition, decided once at the request
// parsing boundary rather than re-derived from field presence downstream.
type Command struct {
	Target           model.Status
	PreferredDate    string
	PreferredTime    string
	RejectSuggestion bool
	// AcceptSuggestion forces reschedule-acceptance validation even if the
	// stored record was read before the suggestion landed.
	AcceptSuggestion bool
}

// Outcome is the validated result of applying a Command: the replacement
// appointment plus the side effects owed after the write commits.
type Outcome struct {
	Next               model.Appointment
	AcceptedReschedule bool
	Canceled           bool
}

// Apply is the pure transition function. It never mutates its input and never
// touches storage; the caller is responsible for the conditional write.
//
// Transition table (customer-initiated side only; the business-initiated
// "suggest a new time" transition belongs to a different service):
//
//	requested            -> confirmed | canceled
//	confirmed            -> confirmed (re-affirm) | canceled
//	reschedule_requested -> confirmed (date+time required) | canceled
//	canceled             -> (terminal)
func Apply(appt model.Appointment, cmd Command, now time.Time) (Outcome, error) {
	if appt.Status.Terminal() {
		return Outcome{}, fmt.Errorf("%w: no transitions from canceled", ErrTerminalState)
	}

	// Rejecting a suggestion is a cancellation regardless of the target field.
	if cmd.RejectSuggestion {
		cmd.Target = model.StatusCanceled
	}

	switch cmd.Target {
	case model.StatusConfirmed:
		return applyConfirm(appt, cmd, now)
	case model.StatusCanceled:
		next := appt
		next.Status = model.StatusCanceled
		next.Suggested = nil
		next.UpdatedAt = now
		return Outcome{Next: next, Canceled: true}, nil
	case model.StatusRequested, model.StatusRescheduleRequested:
		return Outcome{}, fmt.Errorf("%w: %q is not a customer-requestable status", ErrValidation, cmd.Target)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.Target)
	}
}

func applyConfirm(appt model.Appointment, cmd Command, now time.Time) (Outcome, error) {
	hasNewTime := cmd.PreferredDate != "" && cmd.PreferredTime != ""
	accepting := appt.Status == model.StatusRescheduleRequested || cmd.AcceptSuggestion

	if accepting && !hasNewTime {
		return Outcome{}, fmt.Errorf("%w: date and time required to accept a reschedule", ErrValidation)
	}

	next := appt
	next.Status = model.StatusConfirmed
	if hasNewTime {
		// A confirm from plain requested may also carry a new time: the
		// customer retiming their own pending request. Only an accepted
		// suggestion flips the reschedule flag.
		next.PreferredDate = cmd.PreferredDate
		next.PreferredTime = cmd.PreferredTime
	}
	next.Suggested = nil
	next.UpdatedAt = now

	out := Outcome{Next: next}
	if appt.Status == model.StatusRescheduleRequested {
		next.WasRescheduled = true
		out.Next = next
		out.AcceptedReschedule = true
	}
	return out, nil
}
