package reservation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
)

// ReminderDays are the days after its end on which a reservation that was
// not returned gets a reminder.
var ReminderDays = []int{1, 7}

// ApplyAction applies a batch of item actions to a reservation. Every
// transition is validated before any is applied and the batch persists in
// one transaction. Problem reports are published after the commit.
func (e *Engine) ApplyAction(ctx context.Context, p model.Principal, id uuid.UUID, actions []model.ItemAction) (err error) {
	ctx, span := e.start(ctx, "ApplyAction",
		attribute.String("reservation", id.String()),
		attribute.Int("actions", len(actions)),
	)
	defer func() { finish(span, err) }()

	if len(actions) == 0 {
		return apperr.InvalidArgument("no actions given")
	}
	ids := make([]uuid.UUID, len(actions))
	for i, a := range actions {
		if !a.Action.Valid() {
			return apperr.InvalidArgument("unknown action %q", a.Action).WithItems([]uuid.UUID{a.ItemID})
		}
		ids[i] = a.ItemID
	}
	if dup := duplicates(ids); len(dup) > 0 {
		return apperr.InvalidArgument("duplicate items in action batch").WithItems(dup)
	}

	var reports []notify.Event
	err = e.store.Atomic(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.NotFound("reservation %s not found", id)
		}
		if !p.CanAccess(r) {
			return apperr.Forbidden("cannot act on reservation %s", id)
		}
		irs, err := tx.ListItemReservations(ctx, id)
		if err != nil {
			return err
		}
		reports, err = e.apply(ctx, tx, p, r, irs, actions)
		return err
	})
	if err != nil {
		return err
	}

	for _, ev := range reports {
		e.publish(ev)
	}
	return nil
}

// apply validates and persists actions of actor against the allocations irs
// of r, returning the problem reports to publish once the caller commits.
func (e *Engine) apply(ctx context.Context, tx Store, actor model.Principal, r *model.Reservation, irs []model.ItemReservation, actions []model.ItemAction) ([]notify.Event, error) {
	byItem := make(map[uuid.UUID]int, len(irs))
	for i, ir := range irs {
		byItem[ir.ItemID] = i
	}
	var missing []uuid.UUID
	for _, a := range actions {
		if _, ok := byItem[a.ItemID]; !ok {
			missing = append(missing, a.ItemID)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NotFound("items are not part of reservation %s", r.ID).WithItems(missing)
	}

	today := e.today()
	next := make([]model.ItemReservation, len(irs))
	copy(next, irs)
	removed := make([]bool, len(irs))
	var taken, released []uuid.UUID

	for _, a := range actions {
		i := byItem[a.ItemID]
		ir := next[i]
		state, remove, ok := transition(ir.State, a.Action)
		if !ok {
			return nil, apperr.InvalidTransition(ir.ItemID, string(a.Action), string(ir.State))
		}
		if remove {
			removed[i] = true
			continue
		}
		switch state {
		case model.ItemTaken:
			taken = append(taken, ir.ItemID)
		case model.ItemReturned, model.ItemReturnProblem:
			// A finished allocation stops claiming the days after today.
			ir.End = max(ir.Start, min(ir.End, today))
			if ir.State == model.ItemTaken {
				released = append(released, ir.ItemID)
			}
		}
		ir.State = state
		next[i] = ir
	}

	// An item still held by another reservation cannot be handed out again.
	var held []uuid.UUID
	for _, itemID := range taken {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if item != nil && item.ReservationID != nil && *item.ReservationID != r.ID {
			held = append(held, itemID)
		}
	}
	if len(held) > 0 {
		return nil, apperr.Conflict(held)
	}

	var updated, remaining []model.ItemReservation
	var deleted []uuid.UUID
	for i, ir := range next {
		switch {
		case removed[i]:
			deleted = append(deleted, ir.ID)
		default:
			remaining = append(remaining, ir)
			if ir != irs[i] {
				updated = append(updated, ir)
			}
		}
	}
	settle(r, DeriveState(statesOf(remaining)), today)

	if err := tx.UpdateItemReservations(ctx, updated); err != nil {
		return nil, err
	}
	if err := tx.DeleteItemReservations(ctx, deleted); err != nil {
		return nil, err
	}
	if err := tx.SetItemsReservation(ctx, taken, r.ID); err != nil {
		return nil, err
	}
	if err := tx.ClearItemsReservation(ctx, released, r.ID); err != nil {
		return nil, err
	}
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}

	slog.Info("reservation actions applied", "reservation", r.ID, "actor", actor.UserID,
		"actions", len(actions), "state", r.State)

	var reports []notify.Event
	for _, a := range actions {
		if !a.Action.IsProblem() && a.Comment == nil {
			continue
		}
		ev := eventFor(notify.KindProblemReport, r)
		ev.ActorID = actor.UserID
		itemID := a.ItemID
		ev.ItemID = &itemID
		if a.Action.IsProblem() {
			ev.Action = a.Action
		}
		ev.Comment = a.Comment
		reports = append(reports, ev)
	}
	return reports, nil
}

// AutoReturnExpired returns every still reserved item of reserved
// reservations whose end has passed. Each reservation is handled in its own
// transaction; failures are logged and joined into the returned error.
func (e *Engine) AutoReturnExpired(ctx context.Context) (n int, err error) {
	ctx, span := e.start(ctx, "AutoReturnExpired")
	defer func() { finish(span, err) }()

	today := e.today()
	expired, err := e.store.ListReservationsEndedBefore(ctx, model.ReservationReserved, today)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, candidate := range expired {
		var reports []notify.Event
		done := false
		err := e.store.Atomic(ctx, func(tx Store) error {
			r, err := tx.GetReservation(ctx, candidate.ID)
			if err != nil || r == nil || r.State != model.ReservationReserved || r.End >= today {
				return err
			}
			irs, err := tx.ListItemReservations(ctx, r.ID)
			if err != nil {
				return err
			}
			var actions []model.ItemAction
			for _, ir := range irs {
				if ir.State == model.ItemReserved {
					actions = append(actions, model.ItemAction{ItemID: ir.ItemID, Action: model.ActionReturn})
				}
			}
			if len(actions) == 0 {
				return nil
			}
			reports, err = e.apply(ctx, tx, model.SystemPrincipal, r, irs, actions)
			done = err == nil
			return err
		})
		if err != nil {
			slog.Error("automatic return failed", "reservation", candidate.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, ev := range reports {
			e.publish(ev)
		}
		if done {
			n++
		}
	}

	if n > 0 {
		slog.Info("reservations returned automatically", "count", n)
	}
	return n, errors.Join(errs...)
}

// RemindOverdue publishes a reminder for every taken reservation whose end
// was one of ReminderDays ago.
func (e *Engine) RemindOverdue(ctx context.Context) (n int, err error) {
	ctx, span := e.start(ctx, "RemindOverdue")
	defer func() { finish(span, err) }()

	today := e.today()
	days := make([]model.Day, len(ReminderDays))
	for i, d := range ReminderDays {
		days[i] = today.AddDays(-d)
	}

	overdue, err := e.store.ListReservationsEndingOn(ctx, model.ReservationTaken, days)
	if err != nil {
		return 0, err
	}
	for _, r := range overdue {
		ev := eventFor(notify.KindReturnReminder, &r)
		end := r.End
		ev.End = &end
		ev.DaysOverdue = int(today - r.End)
		e.publish(ev)
		n++
	}
	return n, nil
}
