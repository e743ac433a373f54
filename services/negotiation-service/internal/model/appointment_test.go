package model

import "testing"

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"requested", "confirmed", "reschedule_requested", "canceled"} {
		status, ok := ParseStatus(raw)
		if !ok {
			t.Fatalf("expected %q to parse", raw)
		}
		if string(status) != raw {
			t.Fatalf("expected %q, got %q", raw, status)
		}
	}

	for _, raw := range []string{"", "cancelled", "CONFIRMED", "pending", "reschedule"} {
		if _, ok := ParseStatus(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusCanceled.Terminal() {
		t.Fatal("canceled must be terminal")
	}
	for _, s := range []Status{StatusRequested, StatusConfirmed, StatusRescheduleRequested} {
		if s.Terminal() {
			t.Fatalf("%q must not be terminal", s)
		}
	}
}
