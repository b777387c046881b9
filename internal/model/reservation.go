package model

import (
	"time"

	"github.com/google/uuid"
)

// ReservationType distinguishes private bookings from team bookings.
type ReservationType string

// Reservation types.
const (
	ReservationTypePrivate ReservationType = "private"
	ReservationTypeTeam    ReservationType = "team"
)

// Valid reports whether t is a known reservation type.
func (t ReservationType) Valid() bool {
	return t == ReservationTypePrivate || t == ReservationTypeTeam
}

// ReservationState is the aggregate state of a reservation.
type ReservationState string

// Reservation states.
const (
	ReservationReserved ReservationState = "reserved"
	ReservationTaken    ReservationState = "taken"
	ReservationReturned ReservationState = "returned"
)

// ItemReservationState is the state of one item within a reservation.
type ItemReservationState string

// Item reservation states.
const (
	ItemReserved      ItemReservationState = "reserved"
	ItemTaken         ItemReservationState = "taken"
	ItemReturned      ItemReservationState = "returned"
	ItemReturnProblem ItemReservationState = "return-problem"
)

// Terminal reports whether no further action may target the allocation.
func (s ItemReservationState) Terminal() bool {
	return s == ItemReturned || s == ItemReturnProblem
}

// Allocating reports whether the allocation still claims its item for its
// date range.
func (s ItemReservationState) Allocating() bool {
	return s == ItemReserved || s == ItemTaken
}

// Reservation is a booking of one or more items for a date range.
type Reservation struct {
	ID      uuid.UUID        `json:"id"`
	Type    ReservationType  `json:"type"`
	Code    string           `json:"code"`
	State   ReservationState `json:"state"`
	Active  bool             `json:"active"`
	Name    string           `json:"name"`
	Start   Day              `json:"start"`
	End     Day              `json:"end"`
	UserID  string           `json:"user_id"`
	TeamID  *string          `json:"team_id,omitempty"`
	Contact string           `json:"contact"`

	CreatedAt time.Time `json:"created_at"`

	// Items is populated by lookups that join the allocations.
	Items []ItemReservation `json:"items,omitempty"`
}

// ItemReservation allocates one item to one reservation.
type ItemReservation struct {
	ID            uuid.UUID            `json:"id"`
	ReservationID uuid.UUID            `json:"reservation_id"`
	ItemID        uuid.UUID            `json:"item_id"`
	State         ItemReservationState `json:"state"`
	Start         Day                  `json:"start"`
	End           Day                  `json:"end"`
}

// Action is a lifecycle action applied to one item of a reservation.
type Action string

// Reservation actions.
const (
	ActionTake    Action = "take"
	ActionReturn  Action = "return"
	ActionRemove  Action = "remove"
	ActionBroken  Action = "broken"
	ActionMissing Action = "missing"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionTake, ActionReturn, ActionRemove, ActionBroken, ActionMissing:
		return true
	}
	return false
}

// IsProblem reports whether the action reports a damaged or lost item.
func (a Action) IsProblem() bool {
	return a == ActionBroken || a == ActionMissing
}

// ItemAction is one entry of an action batch.
type ItemAction struct {
	ItemID  uuid.UUID `json:"item_id"`
	Action  Action    `json:"action"`
	Comment *string   `json:"comment,omitempty"`
}
