package model

import (
	"fmt"
	"strings"
)

// Kind discriminates the two booking collections.
type Kind string

const (
	KindTable Kind = "table"
	KindEvent Kind = "event"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTable:
		return KindTable, nil
	case KindEvent:
		return KindEvent, nil
	}
	return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown booking kind %q", s)}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a table.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// When selects one side of "now" in per-user listings.
type When string

const (
	WhenPast     When = "past"
	WhenUpcoming When = "upcoming"
)

func ParseWhen(s string) (When, error) {
	switch When(strings.ToLower(strings.TrimSpace(s))) {
	case "", WhenUpcoming:
		return WhenUpcoming, nil
	case WhenPast:
		return WhenPast, nil
	}
	return "", &ValidationError{Field: "when", Reason: "must be past or upcoming"}
}
