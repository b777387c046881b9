package reservation

import "github.com/erazemk/izposoja/internal/model"

// DeriveState returns the aggregate state of a reservation from the states of
// its allocations: taken if any is taken, else reserved if any is reserved,
// else returned. A reservation without allocations is returned.
func DeriveState(states []model.ItemReservationState) model.ReservationState {
	reserved := false
	for _, s := range states {
		if s == model.ItemTaken {
			return model.ReservationTaken
		}
		if s.Allocating() {
			reserved = true
		}
	}
	if reserved {
		return model.ReservationReserved
	}
	return model.ReservationReturned
}

// transition returns the state an allocation in state s moves to under
// action a. removed reports that the allocation is deleted instead; ok is
// false when the action is not allowed in s.
func transition(s model.ItemReservationState, a model.Action) (next model.ItemReservationState, removed, ok bool) {
	if s.Terminal() {
		return "", false, false
	}
	switch s {
	case model.ItemReserved:
		switch a {
		case model.ActionTake:
			return model.ItemTaken, false, true
		case model.ActionReturn:
			return model.ItemReturned, false, true
		case model.ActionRemove, model.ActionBroken, model.ActionMissing:
			// Never picked up, nothing to report as a problem.
			return "", true, true
		}
	case model.ItemTaken:
		switch a {
		case model.ActionReturn:
			return model.ItemReturned, false, true
		case model.ActionBroken, model.ActionMissing:
			return model.ItemReturnProblem, false, true
		}
	}
	return "", false, false
}

// settle applies the aggregate state to r. A returned reservation becomes
// inactive and no longer claims days after today.
func settle(r *model.Reservation, state model.ReservationState, today model.Day) {
	r.State = state
	r.Active = state != model.ReservationReturned
	if state != model.ReservationReturned {
		return
	}
	if r.End > today {
		r.End = today
	}
	if r.Start > r.End {
		r.Start = r.End
	}
}

func statesOf(irs []model.ItemReservation) []model.ItemReservationState {
	states := make([]model.ItemReservationState, len(irs))
	for i, ir := range irs {
		states[i] = ir.State
	}
	return states
}
