package negotiation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/libs/auth"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/notify"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/outbox"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/rules"
)

const testSecret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tokenFor(t *testing.T, customerID string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  customerID,
		Role: "customer",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// memStore mirrors the repository's conditional-replace contract: the write
// applies only while the row still matches prior, otherwise it reconciles
// against the current row.
type memStore struct {
	mu      sync.Mutex
	appts   map[string]model.Appointment
	intents []outbox.Event
}

func newMemStore(appts ...model.Appointment) *memStore {
	s := &memStore{appts: make(map[string]model.Appointment)}
	for _, a := range appts {
		s.appts[a.ID] = a
	}
	return s
}

func (s *memStore) GetAppointment(_ context.Context, conversationID, appointmentID string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[appointmentID]
	if !ok || appt.ConversationID != conversationID {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (s *memStore) ApplyTransition(_ context.Context, prior, next model.Appointment, intents []outbox.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.appts[prior.ID]
	if !ok || current.ConversationID != prior.ConversationID {
		return model.Appointment{}, ErrNotFound
	}
	if current.CustomerID != prior.CustomerID || current.Status != prior.Status {
		if sameObservable(current, next) {
			return current, nil
		}
		return model.Appointment{}, ErrConflict
	}
	s.appts[prior.ID] = next
	s.intents = append(s.intents, intents...)
	return next, nil
}

func sameObservable(a, b model.Appointment) bool {
	if a.Status != b.Status || a.PreferredDate != b.PreferredDate || a.PreferredTime != b.PreferredTime || a.WasRescheduled != b.WasRescheduled {
		return false
	}
	if (a.Suggested == nil) != (b.Suggested == nil) {
		return false
	}
	if a.Suggested != nil && *a.Suggested != *b.Suggested {
		return false
	}
	return true
}

// staleStore serves reads from a snapshot taken at construction while writes
// still guard against live state, standing in for an interleaved competitor.
type staleStore struct {
	*memStore
	snapshot map[string]model.Appointment
}

func newStaleStore(live *memStore) *staleStore {
	live.mu.Lock()
	defer live.mu.Unlock()
	snap := make(map[string]model.Appointment, len(live.appts))
	for id, a := range live.appts {
		snap[id] = a
	}
	return &staleStore{memStore: live, snapshot: snap}
}

func (s *staleStore) GetAppointment(_ context.Context, conversationID, appointmentID string) (model.Appointment, error) {
	appt, ok := s.snapshot[appointmentID]
	if !ok || appt.ConversationID != conversationID {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func pendingReschedule() model.Appointment {
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
		Suggested:      &model.SuggestedTime{Date: "2026-03-16", Time: "14:00"},
	}
}

func newTestService(store Store) *Service {
	return NewService(store, auth.NewHS256Verifier(testSecret), testLogger())
}

func TestTransition_AcceptSuggestedTime(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)

	appt, err := svc.Transition(context.Background(), tokenFor(t, "customer-1"), Request{
		ConversationID: "conv-1",
		AppointmentID:  "appt-1",
		Target:         "confirmed",
		PreferredDate:  "2026-03-16",
		PreferredTime:  "14:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %q", appt.Status)
	}
	if !appt.WasRescheduled {
		t.Fatal("expected WasRescheduled after accepting a suggestion")
	}
	if appt.Suggested != nil {
		t.Fatal("suggestion must be cleared on acceptance")
	}
	if len(store.intents) != 1 || store.intents[0].EventType != notify.EventRescheduleAccepted {
		t.Fatalf("expected one reschedule.accepted intent, got %+v", store.intents)
	}
}

func TestTransition_RepeatAcceptIsIdempotent(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)

	req := Request{
		ConversationID:   "conv-1",
		AppointmentID:    "appt-1",
		Target:           "confirmed",
		PreferredDate:    "2026-03-16",
		PreferredTime:    "14:00",
		AcceptSuggestion: true,
	}
	token := tokenFor(t, "customer-1")

	first, err := svc.Transition(context.Background(), token, req)
	if err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	second, err := svc.Transition(context.Background(), token, req)
	if err != nil {
		t.Fatalf("repeat accept must succeed: %v", err)
	}
	if second.Status != first.Status || second.WasRescheduled != first.WasRescheduled {
		t.Fatalf("repeat accept changed state: first=%+v second=%+v", first, second)
	}
	if len(store.intents) != 1 {
		t.Fatalf("repeat accept must not duplicate notifications, got %d intents", len(store.intents))
	}
}

func TestTransition_RepeatCancelIsIdempotentConflict(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)
	token := tokenFor(t, "customer-1")

	if _, err := svc.Transition(context.Background(), token, Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "canceled",
	}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// A second cancel reads the terminal record; terminal rejection surfaces
	// as a conflict rather than a validation error.
	_, err := svc.Transition(context.Background(), token, Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "canceled",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(store.intents) != 1 {
		t.Fatalf("repeat cancel must not duplicate notifications, got %d intents", len(store.intents))
	}
}

func TestTransition_TerminalStateLeavesStoreUnchanged(t *testing.T) {
	appt := pendingReschedule()
	appt.Status = model.StatusCanceled
	appt.Suggested = nil
	store := newMemStore(appt)
	svc := newTestService(store)

	_, err := svc.Transition(context.Background(), tokenFor(t, "customer-1"), Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "confirmed",
		PreferredDate: "2026-03-16", PreferredTime: "14:00",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	stored := store.appts["appt-1"]
	if stored.Status != model.StatusCanceled {
		t.Fatalf("terminal record must be untouched, got %q", stored.Status)
	}
	if len(store.intents) != 0 {
		t.Fatal("rejected transition must not enqueue notifications")
	}
}

func TestTransition_ValidationRejectsBeforeWrite(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)

	// Accepting without the agreed time.
	_, err := svc.Transition(context.Background(), tokenFor(t, "customer-1"), Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "confirmed",
	})
	if !errors.Is(err, rules.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// Unknown target status.
	_, err = svc.Transition(context.Background(), tokenFor(t, "customer-1"), Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "rescheduled",
	})
	if !errors.Is(err, rules.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}

	if store.appts["appt-1"].Status != model.StatusRescheduleRequested {
		t.Fatal("validation failures must not write")
	}
}

func TestTransition_AuthGate(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)
	req := Request{ConversationID: "conv-1", AppointmentID: "appt-1", Target: "confirmed"}

	if _, err := svc.Transition(context.Background(), "", req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for missing token, got %v", err)
	}
	if _, err := svc.Transition(context.Background(), "not.a.jwt", req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for garbage token, got %v", err)
	}
}

func TestTransition_OwnershipMismatchReadsAsAbsence(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)

	_, err := svc.Transition(context.Background(), tokenFor(t, "customer-2"), Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "canceled",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("ownership mismatch must not leak as an auth error")
	}
}

func TestTransition_LosesRaceToConcurrentUpdate(t *testing.T) {
	live := newMemStore(pendingReschedule())
	stale := newStaleStore(live)
	token := tokenFor(t, "customer-1")

	// The accept lands first against live state.
	if _, err := newTestService(live).Transition(context.Background(), token, Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "confirmed",
		PreferredDate: "2026-03-16", PreferredTime: "14:00",
	}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// The cancel raced it: read before the accept, write after.
	_, err := newTestService(stale).Transition(context.Background(), token, Request{
		ConversationID: "conv-1", AppointmentID: "appt-1", Target: "canceled",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for the losing writer, got %v", err)
	}
	if live.appts["appt-1"].Status != model.StatusConfirmed {
		t.Fatal("losing writer must not override the winner")
	}
	if len(live.intents) != 1 {
		t.Fatalf("only the winner's intent may be recorded, got %d", len(live.intents))
	}
}

func TestGet_RequiresOwnership(t *testing.T) {
	store := newMemStore(pendingReschedule())
	svc := newTestService(store)

	appt, err := svc.Get(context.Background(), tokenFor(t, "customer-1"), "conv-1", "appt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Suggested == nil || appt.Suggested.Date != "2026-03-16" {
		t.Fatalf("expected suggested time in read, got %+v", appt.Suggested)
	}

	if _, err := svc.Get(context.Background(), tokenFor(t, "customer-2"), "conv-1", "appt-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "", "conv-1", "appt-1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
