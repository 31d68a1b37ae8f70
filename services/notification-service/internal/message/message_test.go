package message

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"table","booking_id":"res-1","status":"confirmed","previous_status":"pending","contact":{"name":"Ada","phone":"1"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Transition() != "pending->confirmed" || ev.Contact.Name != "Ada" {
		t.Fatalf("unexpected event %+v", ev)
	}

	for _, raw := range []string{`not json`, `{"kind":"table","status":"pending"}`, `{"kind":"boat","booking_id":"x","status":"pending"}`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: expected ErrInvalidEvent, got %v", raw, err)
		}
	}
}

func TestRender(t *testing.T) {
	start := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	date := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		ev      Event
		subject string
		body    []string
	}{
		{
			name:    "new table request",
			ev:      Event{Kind: "table", Status: "pending", TableNumber: 4, Start: &start, DurationHours: 2, PartySize: 5, Contact: Contact{Name: "Ada"}},
			subject: "Reservation request received",
			body:    []string{"Hi Ada,", "table 4 on Sun Jun 1 18:00 UTC for 2 hours, party of 5"},
		},
		{
			name:    "cancelled with reason",
			ev:      Event{Kind: "table", Status: "cancelled", PreviousStatus: "confirmed", TableNumber: 1, DurationHours: 1, Reason: "closed for repairs"},
			subject: "Booking cancelled",
			body:    []string{"Hi,", "for 1 hour", "Reason: closed for repairs."},
		},
		{
			name:    "event booked",
			ev:      Event{Kind: "event", Status: "confirmed", ShopName: "Dice Den", EventName: "Friday Draft", EventDate: &date, EventTime: "7:00 PM", Participants: 1},
			subject: "[Dice Den] You're booked",
			body:    []string{"Friday Draft on Fri Jun 6 at 7:00 PM (1 participant)"},
		},
		{
			name:    "completed",
			ev:      Event{Kind: "event", Status: "completed"},
			subject: "Thanks for visiting",
			body:    []string{"the event"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := Render(tc.ev)
			if msg.Subject != tc.subject {
				t.Fatalf("expected subject %q, got %q", tc.subject, msg.Subject)
			}
			for _, part := range tc.body {
				if !strings.Contains(msg.Body, part) {
					t.Fatalf("expected %q in body %q", part, msg.Body)
				}
			}
		})
	}
}
