package reservation

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
)

// Withdraw drops an item that is leaving the depot from every reserved
// allocation that has not ended, and re-derives the state of the affected
// reservations. It fails with Conflict while the item is taken, even by a
// reservation that is past its end. Withdraw runs
// against s so callers can include it in the transaction that marks the
// item gone; publish the result with AnnounceWithdrawal after committing.
func (e *Engine) Withdraw(ctx context.Context, s Store, itemID uuid.UUID) ([]model.Reservation, error) {
	today := e.today()
	open, err := s.OpenAllocationsOf(ctx, itemID, today)
	if err != nil {
		return nil, err
	}
	for _, ir := range open {
		if ir.State == model.ItemTaken {
			return nil, apperr.Conflict([]uuid.UUID{itemID})
		}
	}

	var affected []model.Reservation
	for _, ir := range open {
		r, err := s.GetReservation(ctx, ir.ReservationID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		if err := s.DeleteItemReservations(ctx, []uuid.UUID{ir.ID}); err != nil {
			return nil, err
		}
		remaining, err := s.ListItemReservations(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		settle(r, DeriveState(statesOf(remaining)), today)
		if err := s.UpdateReservation(ctx, r); err != nil {
			return nil, err
		}
		affected = append(affected, *r)
	}

	if len(affected) > 0 {
		slog.Info("item withdrawn from reservations", "item", itemID, "reservations", len(affected))
	}
	return affected, nil
}

// AnnounceWithdrawal publishes an item_removed event per reservation.
func (e *Engine) AnnounceWithdrawal(itemID uuid.UUID, affected []model.Reservation) {
	for _, r := range affected {
		ev := eventFor(notify.KindItemRemoved, &r)
		id := itemID
		ev.ItemID = &id
		ev.Action = model.ActionRemove
		e.publish(ev)
	}
}
